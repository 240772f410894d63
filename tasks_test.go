package iars

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
)

const searchFixture = `{
	"success": true,
	"value": {
		"summary": {"queued": 1, "running": 2, "error": 0, "paused": 0},
		"catalog": [
			{
				"identifier": "test_item",
				"task_id": 101,
				"server": "ia600501.us.archive.org",
				"cmd": "derive.php",
				"args": {"remove_derived": "*"},
				"submitter": "someone@example.org",
				"submittime": "2024-05-06 01:02:03",
				"priority": 0,
				"status": "running"
			},
			{
				"identifier": "test_item",
				"task_id": 102,
				"cmd": "bup.php",
				"args": {},
				"submitter": "someone@example.org",
				"submittime": "2024-05-06 01:05:00",
				"priority": -1,
				"status": "queued"
			}
		],
		"history": [
			{
				"identifier": "test_item",
				"task_id": 99,
				"server": "ia600501.us.archive.org",
				"cmd": "archive.php",
				"args": {},
				"submitter": "someone@example.org",
				"submittime": "2024-05-01 12:00:00",
				"priority": 0,
				"finished": 1714571000
			}
		],
		"cursor": "next-page-token"
	}
}`

func TestSearchTasks(t *testing.T) {
	search := SearchTasks().
		WithCredentials(&Credentials{Access: "AK", Secret: "SK"}).
		WithCategories(true, true, true).
		WithLimit(1000). // clamped to the server maximum
		ForIdentifier("test_item").
		ForStatus(TaskRunning)

	search.Client = fakeClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "archive.org" || req.URL.Path != "/services/tasks.php" {
			t.Errorf("unexpected request %s%s", req.URL.Host, req.URL.Path)
		}
		if auth := req.Header.Get("Authorization"); auth != "LOW AK:SK" {
			t.Errorf("bad authorization %q", auth)
		}
		q := req.URL.Query()
		want := map[string]string{
			"identifier": "test_item",
			"wait_admin": "1",
			"summary":    "1",
			"catalog":    "1",
			"history":    "1",
			"limit":      "500",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}
		if q.Has("cursor") {
			t.Error("first page should not carry a cursor")
		}
		return respond(200, searchFixture, nil), nil
	})

	page, err := search.Do("")
	if err != nil {
		t.Fatalf("search: %s", err)
	}

	if page.Summary == nil || page.Summary.Running != 2 {
		t.Errorf("bad summary %+v", page.Summary)
	}
	if len(page.Catalog) != 2 {
		t.Fatalf("expected 2 catalog tasks, got %d", len(page.Catalog))
	}
	for i := range page.Catalog {
		if page.Catalog[i].TaskID == 0 {
			t.Errorf("catalog task %d has empty task id", i)
		}
	}
	first := page.Catalog[0]
	if first.Cmd != "derive.php" || first.Status != TaskRunning {
		t.Errorf("bad catalog entry %+v", first)
	}
	if first.Args["remove_derived"] != "*" {
		t.Errorf("bad args %v", first.Args)
	}
	if len(page.History) != 1 || page.History[0].Finished != 1714571000 {
		t.Errorf("bad history %+v", page.History)
	}
	if page.Cursor != "next-page-token" {
		t.Errorf("bad cursor %q", page.Cursor)
	}
}

func TestSearchTasksCursor(t *testing.T) {
	search := SearchTasks()
	search.Client = fakeClient(func(req *http.Request) (*http.Response, error) {
		if got := req.URL.Query().Get("cursor"); got != "abc" {
			t.Errorf("cursor = %q, want %q", got, "abc")
		}
		return respond(200, `{"success":true,"value":{}}`, nil), nil
	})
	page, err := search.Do("abc")
	if err != nil {
		t.Fatal(err)
	}
	if page.Cursor != "" {
		t.Errorf("expected empty cursor, got %q", page.Cursor)
	}
	if len(page.Catalog) != 0 || len(page.History) != 0 || page.Summary != nil {
		t.Errorf("expected empty page, got %+v", page)
	}
}

func TestSearchTasksAPIError(t *testing.T) {
	search := SearchTasks().WithCategories(false, false, true)
	search.Client = fakeClient(func(req *http.Request) (*http.Response, error) {
		return respond(400, `{"success":false,"error":"history requires an identifier or task_id"}`, nil), nil
	})
	_, err := search.Do("")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if apiErr.Status != 400 || apiErr.Message != "history requires an identifier or task_id" {
		t.Errorf("bad error %+v", apiErr)
	}
}

func TestTaskStatusJSON(t *testing.T) {
	tbl := []struct {
		status TaskStatus
		name   string
		color  string
	}{
		{TaskQueued, "queued", "green"},
		{TaskRunning, "running", "blue"},
		{TaskError, "error", "red"},
		{TaskPaused, "paused", "brown"},
	}
	for _, tc := range tbl {
		if tc.status.String() != tc.name {
			t.Errorf("String() = %q, want %q", tc.status.String(), tc.name)
		}
		if tc.status.Color() != tc.color {
			t.Errorf("Color() = %q, want %q", tc.status.Color(), tc.color)
		}
		buf, err := json.Marshal(tc.status)
		if err != nil {
			t.Fatal(err)
		}
		var back TaskStatus
		if err := json.Unmarshal(buf, &back); err != nil {
			t.Fatal(err)
		}
		if back != tc.status {
			t.Errorf("round trip of %v produced %v", tc.status, back)
		}
	}

	var s TaskStatus
	if err := json.Unmarshal([]byte(`"exploded"`), &s); err == nil {
		t.Error("expected an error for an unknown status name")
	}
}

func withDefaultTransport(t *testing.T, rt transport) {
	t.Helper()
	prev := http.DefaultClient.Transport
	http.DefaultClient.Transport = rt
	t.Cleanup(func() { http.DefaultClient.Transport = prev })
}

func TestTaskLog(t *testing.T) {
	const logText = "[2024-05-06 01:02:03] executing derive.php\ndone\n"
	withDefaultTransport(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "catalogd.archive.org" {
			t.Errorf("bad host %q", req.URL.Host)
		}
		if got := req.URL.Query().Get("task_log"); got != "101" {
			t.Errorf("task_log = %q", got)
		}
		if auth := req.Header.Get("Authorization"); auth != "LOW AK:SK" {
			t.Errorf("bad authorization %q", auth)
		}
		return respond(200, logText, nil), nil
	})

	log, err := TaskLog(101, &Credentials{Access: "AK", Secret: "SK"})
	if err != nil {
		t.Fatalf("task log: %s", err)
	}
	if log != logText {
		t.Errorf("bad log %q", log)
	}
}

func TestTaskLogNotFound(t *testing.T) {
	withDefaultTransport(t, func(req *http.Request) (*http.Response, error) {
		return respond(404, "no such task", nil), nil
	})
	_, err := TaskLog(4242, &Credentials{Access: "AK", Secret: "SK"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommands(t *testing.T) {
	tbl := []struct {
		cmd  Command
		name string
		args map[string]string
	}{
		{DeriveCommand("*.jpg"), "derive.php", map[string]string{"remove_derived": "*.jpg"}},
		{DeriveCommand(""), "derive.php", nil},
		{BupCommand(), "bup.php", nil},
		{DeleteCommand(), "delete.php", nil},
		{MakeDarkCommand("copyright"), "make_dark.php", map[string]string{"comment": "copyright"}},
		{MakeUndarkCommand("resolved"), "make_undark.php", map[string]string{"comment": "resolved"}},
		{RenameCommand("new_name"), "rename.php", map[string]string{"new_identifier": "new_name"}},
		{CustomCommand("fixer.php", map[string]string{"noop": "1"}), "fixer.php", map[string]string{"noop": "1"}},
	}
	for _, tc := range tbl {
		if tc.cmd.Name != tc.name {
			t.Errorf("command name %q, want %q", tc.cmd.Name, tc.name)
		}
		if len(tc.cmd.Args) != len(tc.args) {
			t.Errorf("%s: args %v, want %v", tc.name, tc.cmd.Args, tc.args)
			continue
		}
		for k, v := range tc.args {
			if tc.cmd.Args[k] != v {
				t.Errorf("%s: arg %s = %q, want %q", tc.name, k, tc.cmd.Args[k], v)
			}
		}
	}
}

func TestSubmitTask(t *testing.T) {
	withDefaultTransport(t, func(req *http.Request) (*http.Response, error) {
		if req.Method != "POST" {
			t.Errorf("unexpected method %q", req.Method)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("bad content type %q", ct)
		}
		body, _ := io.ReadAll(req.Body)
		var payload struct {
			Identifier string            `json:"identifier"`
			Cmd        string            `json:"cmd"`
			Args       map[string]string `json:"args"`
			Priority   int               `json:"priority"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("bad payload %q: %s", body, err)
		}
		if payload.Identifier != "test_item" || payload.Cmd != "derive.php" {
			t.Errorf("bad payload %+v", payload)
		}
		if payload.Priority != -3 {
			t.Errorf("bad priority %d", payload.Priority)
		}
		return respond(200, `{"success":true,"value":{"task_id":555}}`, nil), nil
	})

	id, err := SubmitTask("test_item", DeriveCommand(""), -3, &Credentials{Access: "AK", Secret: "SK"})
	if err != nil {
		t.Fatalf("submit: %s", err)
	}
	if id != 555 {
		t.Errorf("bad task id %d", id)
	}
}

func TestSubmitTaskValidation(t *testing.T) {
	if _, err := SubmitTask("bad ident", BupCommand(), 0, &Credentials{Access: "AK", Secret: "SK"}); err == nil {
		t.Error("expected identifier validation error")
	}
	if _, err := SubmitTask("test_item", BupCommand(), 0, nil); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}
