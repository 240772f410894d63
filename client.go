package iars

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
)

// DefaultUserAgent is the User-Agent header value
// sent with every request unless the caller
// overrides it.
const DefaultUserAgent = "iars <https://github.com/bigbass1997/iars>"

// API endpoints. The IAS3 endpoint handles file
// reads and writes; downloads and metadata are
// served from archive.org proper, and task logs
// from the catalog server.
const (
	s3URL       = "https://s3.us.archive.org"
	downloadURL = "https://archive.org/download"
	metadataURL = "https://archive.org/metadata"
	tasksURL    = "https://archive.org/services/tasks.php"
	taskLogURL  = "https://catalogd.archive.org/services/tasks.php"
)

// Credentials holds the access/secret key pair
// used by archive.org's S3-like authorization
// scheme. Keys can be produced at
// https://archive.org/account/s3.php.
type Credentials struct {
	Access string
	Secret string
}

// AuthorizationHeader produces the value of the
// Authorization header for these credentials,
// in archive.org's "LOW access:secret" form.
func (c *Credentials) AuthorizationHeader() string {
	return "LOW " + c.Access + ":" + c.Secret
}

// CredentialsFromEnv loads credentials from the
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY
// environment variables (the same variables used
// by the rest of the S3 ecosystem). ok is false
// if either variable is unset or empty.
func CredentialsFromEnv() (creds Credentials, ok bool) {
	creds.Access = os.Getenv("AWS_ACCESS_KEY_ID")
	creds.Secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	return creds, creds.Access != "" && creds.Secret != ""
}

// Error represents an error returned by an
// Internet Archive API endpoint.
type Error struct {
	Op       string `json:"-" xml:"-"` // the operation that failed, e.g. "upload"
	Status   int    `json:"-" xml:"-"` // HTTP status code
	Code     string `xml:"Code"`       // machine-readable code, e.g. "NoSuchBucket"
	Message  string `xml:"Message"`    // human-readable message from the server
	Resource string `xml:"Resource"`   // resource the error refers to, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("iars %s: %s (status %d, %q)", e.Op, e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("iars %s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Forbidden reports whether the error was a
// 403 response, which almost always means the
// request needed (different) credentials.
func (e *Error) Forbidden() bool {
	return e.Status == http.StatusForbidden
}

// s3Error decodes the XML error document the
// IAS3 endpoint attaches to non-success
// responses. The body may be empty or garbage;
// the status code alone is still an error.
func s3Error(op string, res *http.Response) *Error {
	e := &Error{Op: op, Status: res.StatusCode}
	xml.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(e)
	res.Body.Close()
	if e.Message == "" {
		e.Message = http.StatusText(res.StatusCode)
	}
	return e
}

// tasksError decodes the JSON envelope the tasks
// API uses for failures: {"success":false,"error":"..."}.
func tasksError(op string, res *http.Response) *Error {
	e := &Error{Op: op, Status: res.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body)
	res.Body.Close()
	e.Message = body.Error
	if e.Message == "" {
		e.Message = http.StatusText(res.StatusCode)
	}
	return e
}

func success(code int) bool {
	return code >= 200 && code < 300
}
