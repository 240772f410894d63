// command iaproxy
// is a caching read-only proxy for a single
// Internet Archive item.
//
// The iaproxy server makes it practical to serve
// static content out of an archive.org item. The
// server understands HTTP semantics like CORS,
// ETag, and conditional requests, so sticking an
// HTTP cache in front of iaproxy should "just
// work."
//
// Downloads from archive.org have large
// time-to-first-byte latencies and are throttled
// per connection, so you will likely want to put
// a proper caching HTTP server in front of
// iaproxy.
//
// In order to handle HEAD requests and CORS
// preflights without touching the archive,
// iaproxy always holds the metadata for every
// file in the item in memory. It periodically
// re-synchronizes its metadata cache against the
// item's actual file listing, so the server
// effectively serves a snapshot of the item from
// the last time it inspected it.
//
// The iaproxy server is configured using a JSON
// config file identified with the '-c'
// command-line flag. (Run 'go doc iaproxy.Config'
// for documentation on the necessary
// configuration.)
package main
