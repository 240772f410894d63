// package iars
// is a synchronous client library for the
// Internet Archive's public APIs.
//
// The library wraps the IAS3 ("S3-like") API
// for reading and writing the files that make
// up an archive.org item, the item metadata
// API, and the catalog tasks API.
//
// Although the IAS3 API is modeled after
// Amazon S3, it is not compatible with real
// S3 client libraries: authorization uses a
// "LOW access:secret" header rather than
// request signing, and most behavior is
// controlled through custom x-archive-*
// headers. This library papers over those
// idiosyncracies instead of trying to force
// an S3 SDK to cooperate.
//
// Calls are mediated through the iars.Item
// type, which holds a validated item
// identifier and (optionally) a set of API
// credentials:
//
//	item, err := iars.NewItem("my-item")
//	if err != nil {
//	  // identifier didn't satisfy archive.org's rules
//	}
//	item.WithCredentials(&iars.Credentials{Access: "AK", Secret: "SK"})
//
// Credentials can be produced at
// https://archive.org/account/s3.php, and are
// only required for operations that write to
// an item. Reads of public items work without
// them.
//
// Every operation is a single blocking HTTP
// round trip on the calling goroutine. The
// library holds no shared state and performs
// no retries; callers that want concurrency
// or retry policies layer them on top.
package iars
