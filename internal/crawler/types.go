// Shared task and page types.
package crawler

import (
	"errors"
	"time"
)

// TaskState represents the lifecycle state of an ingestion task.
type TaskState string

// Task states in pipeline order. Error may follow any non-terminal state.
const (
	TaskStateCrawling             TaskState = "crawling"
	TaskStateProcessing           TaskState = "processing"
	TaskStateGeneratingEmbeddings TaskState = "generating_embeddings"
	TaskStateStoring              TaskState = "storing"
	TaskStateCompleted            TaskState = "completed"
	TaskStateError                TaskState = "error"
)

// ErrTaskNotFound is returned when a task id is unknown to the requesting user.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskExists is returned when a task id is registered twice.
var ErrTaskExists = errors.New("task already exists")

// Terminal reports whether no further transitions are allowed.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateError
}

// Rank orders the success path; unknown states and error rank -1.
func (s TaskState) Rank() int {
	switch s {
	case TaskStateCrawling:
		return 0
	case TaskStateProcessing:
		return 1
	case TaskStateGeneratingEmbeddings:
		return 2
	case TaskStateStoring:
		return 3
	case TaskStateCompleted:
		return 4
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next keeps the state machine monotonic.
func (s TaskState) CanTransition(next TaskState) bool {
	if s.Terminal() {
		return false
	}
	if next == TaskStateError {
		return true
	}
	return next.Rank() >= s.Rank()
}

// TaskResult summarizes a completed ingestion.
type TaskResult struct {
	CollectionName string `json:"collection_name"`
	PagesScraped   int    `json:"pages_scraped"`
	ChunksCreated  int    `json:"chunks_created"`
}

// Task is the snapshot polled by callers for one crawl-and-ingest run.
type Task struct {
	ID            string      `json:"task_id"`
	UserID        string      `json:"-"`
	URL           string      `json:"url"`
	MaxPages      int         `json:"max_pages,omitempty"`
	State         TaskState   `json:"status"`
	StartedAt     time.Time   `json:"start_time"`
	LastUpdate    time.Time   `json:"last_update"`
	PagesScraped  int         `json:"pages_scraped"`
	ChunksCreated int         `json:"chunks_created"`
	Error         string      `json:"error,omitempty"`
	IsCompleted   bool        `json:"is_completed"`
	Result        *TaskResult `json:"result,omitempty"`
}

// TaskPatch carries the fields merged by a progress update. Nil pointers leave
// the stored value untouched.
type TaskPatch struct {
	State         TaskState
	PagesScraped  *int
	ChunksCreated *int
	Error         *string
	Result        *TaskResult
}

// Apply merges the patch into t and returns the updated copy.
func (p TaskPatch) Apply(t Task) Task {
	if p.State != "" {
		t.State = p.State
	}
	if p.PagesScraped != nil {
		t.PagesScraped = *p.PagesScraped
	}
	if p.ChunksCreated != nil {
		t.ChunksCreated = *p.ChunksCreated
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	if p.Result != nil {
		res := *p.Result
		t.Result = &res
	}
	if t.State.Terminal() {
		t.IsCompleted = true
	}
	return t
}

// TaskEvent is published once a task reaches a terminal state.
type TaskEvent struct {
	TaskID        string    `json:"task_id"`
	UserID        string    `json:"user_id"`
	URL           string    `json:"url"`
	State         TaskState `json:"status"`
	PagesScraped  int       `json:"pages_scraped"`
	ChunksCreated int       `json:"chunks_created"`
	Error         string    `json:"error,omitempty"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Page is one fetched document. Body is empty when the fetch failed.
type Page struct {
	URL        string
	StatusCode int
	Body       string
}

// Empty reports whether the fetch produced no content.
func (p Page) Empty() bool {
	return p.Body == ""
}

// Int returns a pointer to v for use in TaskPatch.
func Int(v int) *int {
	return &v
}

// String returns a pointer to v for use in TaskPatch.
func String(v string) *string {
	return &v
}
