package iars

import "errors"

// ErrMissingCredentials is returned by operations that require
// authentication when the Item has no credentials attached.
var ErrMissingCredentials = errors.New("iars: operation requires credentials")

// ErrNotFound is returned when a file or task does not exist on
// the remote side (HTTP 404). Use errors.Is to test for it.
var ErrNotFound = errors.New("iars: not found")
