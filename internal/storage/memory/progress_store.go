package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

// ProgressStore keeps task snapshots in memory, partitioned by user.
type ProgressStore struct {
	mu    sync.RWMutex
	tasks map[string]map[string]crawler.Task
	now   func() time.Time
}

// NewProgressStore constructs a ProgressStore. clock may be nil.
func NewProgressStore(clock crawler.Clock) *ProgressStore {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &ProgressStore{
		tasks: make(map[string]map[string]crawler.Task),
		now:   now,
	}
}

// Create stores a new task snapshot.
func (s *ProgressStore) Create(_ context.Context, task crawler.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	userTasks, ok := s.tasks[task.UserID]
	if !ok {
		userTasks = make(map[string]crawler.Task)
		s.tasks[task.UserID] = userTasks
	}
	if _, exists := userTasks[task.ID]; exists {
		return fmt.Errorf("create %s: %w", task.ID, crawler.ErrTaskExists)
	}
	if task.LastUpdate.IsZero() {
		task.LastUpdate = s.now()
	}
	task.IsCompleted = task.State.Terminal()
	userTasks[task.ID] = cloneTask(task)
	return nil
}

// Get returns a copy of the task owned by userID.
func (s *ProgressStore) Get(_ context.Context, userID, taskID string) (crawler.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[userID][taskID]
	if !ok {
		return crawler.Task{}, crawler.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Update merges patch into the stored snapshot. Unknown tasks and tasks that
// already reached a terminal state are left untouched.
func (s *ProgressStore) Update(_ context.Context, userID, taskID string, patch crawler.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[userID][taskID]
	if !ok || task.State.Terminal() {
		return nil
	}
	if patch.State != "" && !task.State.CanTransition(patch.State) {
		patch.State = ""
	}
	task = patch.Apply(task)
	task.LastUpdate = s.now()
	s.tasks[userID][taskID] = task
	return nil
}

// List returns the user's tasks ordered by start time.
func (s *ProgressStore) List(_ context.Context, userID string) ([]crawler.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Task, 0, len(s.tasks[userID]))
	for _, task := range s.tasks[userID] {
		out = append(out, cloneTask(task))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func cloneTask(t crawler.Task) crawler.Task {
	if t.Result != nil {
		res := *t.Result
		t.Result = &res
	}
	return t
}
