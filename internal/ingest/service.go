// Package ingest admits crawl-and-ingest requests, enforces the per-user
// concurrency ceiling and launches each task in the background.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/crawler"
)

// DefaultMaxConcurrentTasks is the per-user ceiling on running tasks.
const DefaultMaxConcurrentTasks = 3

// Runner executes one task to completion. *worker.Worker satisfies it.
type Runner interface {
	Run(ctx context.Context, task crawler.Task) error
}

// Launcher schedules background work without blocking. *dispatcher.Dispatcher
// satisfies it.
type Launcher interface {
	Submit(fn func()) error
	Release(ctx context.Context) error
}

// Config controls admission.
type Config struct {
	MaxConcurrentTasks int
}

// Service is the task orchestrator. One instance is shared by every caller.
type Service struct {
	progress crawler.ProgressStore
	runner   Runner
	launcher Launcher
	idGen    crawler.IDGenerator
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger

	// ctx outlives any request; background runs are canceled only on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]map[string]struct{}
}

// NewService constructs a Service.
func NewService(
	progress crawler.ProgressStore,
	runner Runner,
	launcher Launcher,
	idGen crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		progress: progress,
		runner:   runner,
		launcher: launcher,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("ingest"),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]map[string]struct{}),
	}
}

// MaxConcurrentTasks reports the per-user ceiling.
func (s *Service) MaxConcurrentTasks() int {
	return s.cfg.MaxConcurrentTasks
}

// StartCrawl admits a new task for userID and returns its id immediately.
// maxPages <= 0 crawls without a page cap.
func (s *Service) StartCrawl(ctx context.Context, userID, rawURL string, maxPages int) (string, error) {
	start, err := crawler.ParseStartURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active[userID]) >= s.cfg.MaxConcurrentTasks {
		s.logger.Info("task rejected",
			zap.String("user_id", userID),
			zap.Int("active", len(s.active[userID])),
		)
		return "", &AdmissionError{UserID: userID, Limit: s.cfg.MaxConcurrentTasks}
	}

	taskID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	now := s.clock.Now()
	task := crawler.Task{
		ID:         taskID,
		UserID:     userID,
		URL:        start.String(),
		MaxPages:   maxPages,
		State:      crawler.TaskStateCrawling,
		StartedAt:  now,
		LastUpdate: now,
	}
	if err := s.progress.Create(ctx, task); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	s.addActive(userID, taskID)

	if err := s.launcher.Submit(func() { s.run(task) }); err != nil {
		s.removeActive(userID, taskID)
		msg := "service busy, try again later"
		if uerr := s.progress.Update(ctx, userID, taskID, crawler.TaskPatch{
			State: crawler.TaskStateError,
			Error: &msg,
		}); uerr != nil {
			s.logger.Warn("mark rejected task failed", zap.String("task_id", taskID), zap.Error(uerr))
		}
		return "", fmt.Errorf("%w: %v", ErrServiceBusy, err)
	}

	s.logger.Info("task admitted",
		zap.String("task_id", taskID),
		zap.String("user_id", userID),
		zap.String("url", task.URL),
	)
	return taskID, nil
}

func (s *Service) run(task crawler.Task) {
	// The slot is held until Run returns, after the terminal state and event
	// are written. A caller that sees completed may briefly still be at the cap.
	defer func() {
		s.mu.Lock()
		s.removeActive(task.UserID, task.ID)
		s.mu.Unlock()
	}()
	if err := s.runner.Run(s.ctx, task); err != nil {
		s.logger.Debug("task ended with error", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// Task returns the current snapshot of a task owned by userID.
func (s *Service) Task(ctx context.Context, userID, taskID string) (crawler.Task, error) {
	task, err := s.progress.Get(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, crawler.ErrTaskNotFound) {
			return crawler.Task{}, crawler.ErrTaskNotFound
		}
		return crawler.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns every task owned by userID ordered by start time.
func (s *Service) ListTasks(ctx context.Context, userID string) ([]crawler.Task, error) {
	tasks, err := s.progress.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ActiveCount reports how many tasks userID currently has running.
func (s *Service) ActiveCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active[userID])
}

// Close waits for running tasks until ctx ends, then cancels whatever is left.
func (s *Service) Close(ctx context.Context) error {
	defer s.cancel()
	if err := s.launcher.Release(ctx); err != nil {
		return fmt.Errorf("release launcher: %w", err)
	}
	return nil
}

// addActive and removeActive require s.mu.
func (s *Service) addActive(userID, taskID string) {
	set, ok := s.active[userID]
	if !ok {
		set = make(map[string]struct{})
		s.active[userID] = set
	}
	set[taskID] = struct{}{}
}

func (s *Service) removeActive(userID, taskID string) {
	set := s.active[userID]
	delete(set, taskID)
	if len(set) == 0 {
		delete(s.active, userID)
	}
}
