package iars

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

// transport lets a test function stand in for the remote API
type transport func(*http.Request) (*http.Response, error)

func (t transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t(req)
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func fakeClient(rt transport) *http.Client {
	return &http.Client{Transport: rt}
}

func TestAuthorizationHeader(t *testing.T) {
	creds := &Credentials{Access: "AK", Secret: "SK"}
	if got := creds.AuthorizationHeader(); got != "LOW AK:SK" {
		t.Errorf("want %q, got %q", "LOW AK:SK", got)
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	creds, ok := CredentialsFromEnv()
	if !ok {
		t.Fatal("expected credentials from env")
	}
	if creds.Access != "env-access" || creds.Secret != "env-secret" {
		t.Errorf("bad credentials %+v", creds)
	}

	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	if _, ok := CredentialsFromEnv(); ok {
		t.Error("expected ok=false with empty secret")
	}
}

func TestS3ErrorParsing(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>NoSuchBucket</Code>
  <Message>The specified bucket does not exist.</Message>
  <Resource>does-not-exist</Resource>
  <RequestId>ec2bc5e8-8ecb-4b25-9fbf-a3097a4d24ea</RequestId>
</Error>`
	err := s3Error("list", respond(404, body, nil))
	if err.Code != "NoSuchBucket" {
		t.Errorf("bad code %q", err.Code)
	}
	if err.Message != "The specified bucket does not exist." {
		t.Errorf("bad message %q", err.Message)
	}
	if err.Resource != "does-not-exist" {
		t.Errorf("bad resource %q", err.Resource)
	}
	if err.Status != 404 {
		t.Errorf("bad status %d", err.Status)
	}
	if !strings.Contains(err.Error(), "NoSuchBucket") {
		t.Errorf("error text %q should mention the code", err.Error())
	}
}

func TestS3ErrorGarbageBody(t *testing.T) {
	err := s3Error("upload", respond(503, "Slow Down", nil))
	if err.Status != 503 {
		t.Errorf("bad status %d", err.Status)
	}
	if err.Message != http.StatusText(503) {
		t.Errorf("bad fallback message %q", err.Message)
	}
}

func TestTasksErrorParsing(t *testing.T) {
	err := tasksError("task search", respond(400, `{"success":false,"error":"invalid parameter"}`, nil))
	if err.Message != "invalid parameter" {
		t.Errorf("bad message %q", err.Message)
	}
	if err.Forbidden() {
		t.Error("400 is not forbidden")
	}
	forbidden := tasksError("task log", respond(403, `{}`, nil))
	if !forbidden.Forbidden() {
		t.Error("403 should report Forbidden")
	}
	if forbidden.Message != http.StatusText(403) {
		t.Errorf("bad fallback message %q", forbidden.Message)
	}
}

// sanity-check the helper the tests themselves rely on
func TestRespondContentLength(t *testing.T) {
	r := respond(200, "abcde", nil)
	if r.ContentLength != 5 {
		t.Errorf("bad content length %s", strconv.FormatInt(r.ContentLength, 10))
	}
}
