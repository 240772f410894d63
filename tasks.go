package iars

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// TaskStatus is the current state of a catalog task. The numeric
// values are the archive's wait_admin codes.
type TaskStatus int

const (
	TaskQueued  TaskStatus = 0
	TaskRunning TaskStatus = 1
	TaskError   TaskStatus = 2
	TaskPaused  TaskStatus = 9
)

var statusNames = map[TaskStatus]string{
	TaskQueued:  "queued",
	TaskRunning: "running",
	TaskError:   "error",
	TaskPaused:  "paused",
}

// String implements fmt.Stringer
func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "(unknown)"
}

// Color returns the color the archive's catalog UI associates
// with this status (green, blue, red, or brown).
func (s TaskStatus) Color() string {
	switch s {
	case TaskQueued:
		return "green"
	case TaskRunning:
		return "blue"
	case TaskError:
		return "red"
	case TaskPaused:
		return "brown"
	}
	return ""
}

// MarshalJSON implements json.Marshaler
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unrecognized task status %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *TaskStatus) UnmarshalJSON(buf []byte) error {
	var name string
	if err := json.Unmarshal(buf, &name); err != nil {
		return err
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unrecognized task status %q", name)
}

// CatalogTask is a single active (queued, running, errored, or
// paused) task returned by a search.
type CatalogTask struct {
	TaskID     int64             `json:"task_id"`
	Identifier string            `json:"identifier"`
	Cmd        string            `json:"cmd"`
	Args       map[string]string `json:"args"`
	Priority   int               `json:"priority"`
	Server     string            `json:"server"`
	Submitter  string            `json:"submitter"`
	SubmitTime string            `json:"submittime"`
	Status     TaskStatus        `json:"status"`
}

// HistoryTask is a single completed task returned by a search.
type HistoryTask struct {
	TaskID     int64             `json:"task_id"`
	Identifier string            `json:"identifier"`
	Cmd        string            `json:"cmd"`
	Args       map[string]string `json:"args"`
	Priority   int               `json:"priority"`
	Server     string            `json:"server"`
	Submitter  string            `json:"submitter"`
	SubmitTime string            `json:"submittime"`
	Finished   int64             `json:"finished"`
}

// TaskSummary counts the active tasks matched by a search,
// bucketed by status. Completed tasks are not counted.
type TaskSummary struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Error   int `json:"error"`
	Paused  int `json:"paused"`
}

// TaskPage is one page of task search results.
type TaskPage struct {
	Catalog []CatalogTask
	History []HistoryTask
	Summary *TaskSummary

	// Cursor is the archive's pagination token. Non-empty means
	// more results match the search; pass it to the next Do
	// call on the same TaskSearch.
	Cursor string
}

// TaskSearch is a builder for queries against the catalog tasks
// endpoint. The zero value is not useful; start from SearchTasks.
//
// All filters are ANDed together by the server. Wildcards (* or %)
// are accepted in the identifier, server, command, and submitter
// filters.
type TaskSearch struct {
	creds     *Credentials
	userAgent string
	filters   url.Values
	summary   bool
	catalog   bool
	history   bool
	limit     int

	// Client is the http.Client used to make requests.
	// If Client is nil, then http.DefaultClient is used.
	Client *http.Client
}

// SearchTasks creates a task search with the server defaults:
// summary category only, page size 50, no filters.
func SearchTasks() *TaskSearch {
	return &TaskSearch{
		userAgent: DefaultUserAgent,
		filters:   make(url.Values),
		summary:   true,
		limit:     50,
	}
}

// WithCredentials attaches credentials to the search. Passing nil
// clears them. Unprivileged searches only see tasks on items the
// keys own.
func (ts *TaskSearch) WithCredentials(creds *Credentials) *TaskSearch {
	ts.creds = creds
	return ts
}

// WithUserAgent sets the User-Agent header for the search. An
// empty string restores DefaultUserAgent.
func (ts *TaskSearch) WithUserAgent(ua string) *TaskSearch {
	if ua == "" {
		ua = DefaultUserAgent
	}
	ts.userAgent = ua
	return ts
}

// WithCategories selects which result categories the server
// returns. History results require an identifier or task-id
// filter, and the identifier filter must not contain wildcards;
// the server rejects the request otherwise.
func (ts *TaskSearch) WithCategories(summary, catalog, history bool) *TaskSearch {
	ts.summary = summary
	ts.catalog = catalog
	ts.history = history
	return ts
}

// WithLimit caps the combined number of catalog and history rows
// per page. The server maximum is 500; larger values are clamped.
// The summary category is unaffected.
func (ts *TaskSearch) WithLimit(limit int) *TaskSearch {
	if limit > 500 {
		limit = 500
	}
	if limit < 0 {
		limit = 0
	}
	ts.limit = limit
	return ts
}

// ForIdentifier filters on item identifier.
func (ts *TaskSearch) ForIdentifier(identifier string) *TaskSearch {
	ts.filters.Set("identifier", identifier)
	return ts
}

// ForTask filters on a single task id.
func (ts *TaskSearch) ForTask(id int64) *TaskSearch {
	ts.filters.Set("task_id", strconv.FormatInt(id, 10))
	return ts
}

// ForServer filters on the archive server the task ran or will
// run on (e.g. "ia600501.us.archive.org", "ia*.us.*").
func (ts *TaskSearch) ForServer(server string) *TaskSearch {
	ts.filters.Set("server", server)
	return ts
}

// ForCommand filters on the task command name (e.g. "derive.php").
func (ts *TaskSearch) ForCommand(cmd string) *TaskSearch {
	ts.filters.Set("cmd", cmd)
	return ts
}

// ForSubmitter filters on the email address of the submitting
// user.
func (ts *TaskSearch) ForSubmitter(submitter string) *TaskSearch {
	ts.filters.Set("submitter", submitter)
	return ts
}

// ForPriority filters on task priority, typically -10 through 10.
func (ts *TaskSearch) ForPriority(priority int) *TaskSearch {
	ts.filters.Set("priority", strconv.Itoa(priority))
	return ts
}

// ForStatus filters on task state.
func (ts *TaskSearch) ForStatus(status TaskStatus) *TaskSearch {
	ts.filters.Set("wait_admin", strconv.Itoa(int(status)))
	return ts
}

// SubmittedAfter restricts results to tasks submitted strictly
// after the given date/time, in the format the archive expects
// (e.g. "2024-01-02" or "2024-01-02 15:04:05").
func (ts *TaskSearch) SubmittedAfter(datetime string) *TaskSearch {
	ts.filters.Set("submittime>", datetime)
	return ts
}

// SubmittedBefore restricts results to tasks submitted strictly
// before the given date/time.
func (ts *TaskSearch) SubmittedBefore(datetime string) *TaskSearch {
	ts.filters.Set("submittime<", datetime)
	return ts
}

func (ts *TaskSearch) http() *http.Client {
	if ts.Client == nil {
		return http.DefaultClient
	}
	return ts.Client
}

// Do performs one search request. An empty cursor fetches the
// first page; to fetch subsequent pages, pass the Cursor of the
// previous page without changing any other parameter.
func (ts *TaskSearch) Do(cursor string) (*TaskPage, error) {
	query := make(url.Values, len(ts.filters)+5)
	for k, v := range ts.filters {
		query[k] = v
	}
	query.Set("summary", boolHeader(ts.summary))
	query.Set("catalog", boolHeader(ts.catalog))
	query.Set("history", boolHeader(ts.history))
	query.Set("limit", strconv.Itoa(ts.limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	req, err := http.NewRequest("GET", tasksURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("iars task search: %w", err)
	}
	req.Header.Set("User-Agent", ts.userAgent)
	if ts.creds != nil {
		req.Header.Set("Authorization", ts.creds.AuthorizationHeader())
	}

	res, err := ts.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("iars task search: %w", err)
	}
	if !success(res.StatusCode) {
		return nil, tasksError("task search", res)
	}
	defer res.Body.Close()

	var body struct {
		Success bool `json:"success"`
		Value   struct {
			Catalog []CatalogTask `json:"catalog"`
			History []HistoryTask `json:"history"`
			Summary *TaskSummary  `json:"summary"`
			Cursor  string        `json:"cursor"`
		} `json:"value"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("iars task search: %w", err)
	}

	return &TaskPage{
		Catalog: body.Value.Catalog,
		History: body.Value.History,
		Summary: body.Value.Summary,
		Cursor:  body.Value.Cursor,
	}, nil
}

// TaskLog retrieves the plaintext log of a single task.
//
// Logs are only visible to the owner of the item the task ran
// against, or to privileged users, so credentials are effectively
// mandatory; passing nil produces a 403 from the server. An
// unknown task id yields an error satisfying
// errors.Is(err, ErrNotFound).
func TaskLog(taskID int64, creds *Credentials) (string, error) {
	req, err := http.NewRequest("GET", taskLogURL+"?task_log="+strconv.FormatInt(taskID, 10), nil)
	if err != nil {
		return "", fmt.Errorf("iars task log %d: %w", taskID, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	if creds != nil {
		req.Header.Set("Authorization", creds.AuthorizationHeader())
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("iars task log %d: %w", taskID, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, res.Body)
		return "", fmt.Errorf("iars task log %d: %w", taskID, ErrNotFound)
	}
	if !success(res.StatusCode) {
		return "", tasksError("task log", res)
	}

	log, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("iars task log %d: %w", taskID, err)
	}
	return string(log), nil
}

// Command names a catalog task to run and its arguments. Use the
// constructors below for the known commands, or CustomCommand for
// anything else.
type Command struct {
	Name string
	Args map[string]string
}

// DeriveCommand queues a derive on an item. removeDerived, if
// non-empty, names previously derived files to remove first;
// wildcards are permitted (e.g. "*", "*.jpg"). Files originally
// uploaded to the item are never removed.
func DeriveCommand(removeDerived string) Command {
	cmd := Command{Name: "derive.php"}
	if removeDerived != "" {
		cmd.Args = map[string]string{"remove_derived": removeDerived}
	}
	return cmd
}

// BupCommand backs up the item's primary copy to its secondary
// server. Rarely needed; every task performs this backup when it
// finishes.
func BupCommand() Command {
	return Command{Name: "bup.php"}
}

// DeleteCommand deletes the item and all of its files. This
// cannot be reversed.
func DeleteCommand() Command {
	return Command{Name: "delete.php"}
}

// FixerCommand runs a miscellaneous repair operation with the
// given arguments.
func FixerCommand(args map[string]string) Command {
	return Command{Name: "fixer.php", Args: args}
}

// MakeDarkCommand hides the item from all users, including its
// owner and the archive's own subsystems. comment should explain
// why.
func MakeDarkCommand(comment string) Command {
	return Command{Name: "make_dark.php", Args: map[string]string{"comment": comment}}
}

// MakeUndarkCommand makes a previously darked item available
// again. comment should explain why.
func MakeUndarkCommand(comment string) Command {
	return Command{Name: "make_undark.php", Args: map[string]string{"comment": comment}}
}

// RenameCommand renames the item's identifier. The server answers
// 409 Conflict if the new identifier is already taken.
func RenameCommand(newIdentifier string) Command {
	return Command{Name: "rename.php", Args: map[string]string{"new_identifier": newIdentifier}}
}

// CustomCommand constructs a command the library doesn't know
// about.
func CustomCommand(name string, args map[string]string) Command {
	return Command{Name: name, Args: args}
}

// SubmitTask queues a task against an item. Credentials are
// required. On success it returns the id assigned to the new
// task.
func SubmitTask(identifier string, cmd Command, priority int, creds *Credentials) (int64, error) {
	if !ValidateIdentifier(identifier) {
		return 0, InvalidIdentifierError(identifier)
	}
	if creds == nil {
		return 0, ErrMissingCredentials
	}

	payload := struct {
		Identifier string            `json:"identifier"`
		Cmd        string            `json:"cmd"`
		Args       map[string]string `json:"args,omitempty"`
		Priority   int               `json:"priority,omitempty"`
	}{identifier, cmd.Name, cmd.Args, priority}

	buf, err := json.Marshal(&payload)
	if err != nil {
		return 0, fmt.Errorf("iars task submit: %w", err)
	}

	req, err := http.NewRequest("POST", tasksURL, bytes.NewReader(buf))
	if err != nil {
		return 0, fmt.Errorf("iars task submit: %w", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", creds.AuthorizationHeader())

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("iars task submit: %w", err)
	}
	if !success(res.StatusCode) {
		return 0, tasksError("task submit", res)
	}
	defer res.Body.Close()

	var body struct {
		Success bool `json:"success"`
		Value   struct {
			TaskID int64 `json:"task_id"`
		} `json:"value"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("iars task submit: %w", err)
	}
	return body.Value.TaskID, nil
}
