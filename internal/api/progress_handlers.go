package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/crawler"
	"github.com/JakeFAU/siteingest/internal/ingest"
)

const (
	defaultTaskLimit = 50
	maxTaskLimit     = 500
)

type startCrawlRequest struct {
	URL      string `json:"url"`
	MaxPages *int   `json:"max_pages"`
}

type startCrawlResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// startCrawl handles POST /v1/crawls. It returns 202 with the new task id,
// 400 for a malformed body or URL, 429 when the caller is at the concurrency
// ceiling, or 503 when the background pool is full.
func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	maxPages := s.cfg.Crawler.MaxPagesDefault
	if req.MaxPages != nil {
		if *req.MaxPages < 0 {
			writeError(w, http.StatusBadRequest, "max_pages must be >= 0")
			return
		}
		maxPages = *req.MaxPages
	}

	taskID, err := s.svc.StartCrawl(r.Context(), userFrom(r.Context()), req.URL, maxPages)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ingest.ErrTooManyTasks):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, ingest.ErrServiceBusy):
			writeError(w, http.StatusServiceUnavailable, "service busy, try again later")
		default:
			s.logger.Error("start crawl failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start crawl")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, startCrawlResponse{TaskID: taskID, Status: "started"})
}

// getCrawl handles GET /v1/crawls/{task_id}. Polls of a running task inside
// the debounce window receive the snapshot served last.
func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	userID := userFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	task, err := s.svc.Task(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, crawler.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		s.logger.Error("get task failed", zap.String("task_id", taskID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(s.polls.serve(userID, task)))
}

// listCrawls handles GET /v1/crawls?state=&limit=&offset=. It returns
// {"tasks": [...]} ordered by start time.
func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultTaskLimit, maxTaskLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var state crawler.TaskState
	if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
		state, err = parseState(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	tasks, err := s.svc.ListTasks(ctx, userFrom(r.Context()))
	if err != nil {
		s.logger.Error("list tasks failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	out := make([]taskDTO, 0, len(tasks))
	for _, task := range tasks {
		if state != "" && task.State != state {
			continue
		}
		out = append(out, toTaskDTO(task))
	}
	if offset >= len(out) {
		out = out[:0]
	} else {
		out = out[offset:min(len(out), offset+limit)]
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseState(input string) (crawler.TaskState, error) {
	switch state := crawler.TaskState(strings.ToLower(input)); state {
	case crawler.TaskStateCrawling, crawler.TaskStateProcessing, crawler.TaskStateGeneratingEmbeddings,
		crawler.TaskStateStoring, crawler.TaskStateCompleted, crawler.TaskStateError:
		return state, nil
	default:
		return "", errors.New("invalid state")
	}
}

type taskDTO struct {
	TaskID        string     `json:"task_id"`
	URL           string     `json:"url"`
	Status        string     `json:"status"`
	PagesScraped  int        `json:"pages_scraped"`
	ChunksCreated int        `json:"chunks_created"`
	MaxPages      int        `json:"max_pages,omitempty"`
	Error         *string    `json:"error"`
	IsCompleted   bool       `json:"is_completed"`
	StartTime     time.Time  `json:"start_time"`
	LastUpdate    time.Time  `json:"last_update"`
	Result        *resultDTO `json:"result,omitempty"`
}

type resultDTO struct {
	CollectionName string `json:"collection_name"`
	PagesScraped   int    `json:"pages_scraped"`
	ChunksCreated  int    `json:"chunks_created"`
}

func toTaskDTO(task crawler.Task) taskDTO {
	dto := taskDTO{
		TaskID:        task.ID,
		URL:           task.URL,
		Status:        string(task.State),
		PagesScraped:  task.PagesScraped,
		ChunksCreated: task.ChunksCreated,
		MaxPages:      task.MaxPages,
		IsCompleted:   task.IsCompleted,
		StartTime:     task.StartedAt,
		LastUpdate:    task.LastUpdate,
	}
	if task.Error != "" {
		msg := task.Error
		dto.Error = &msg
	}
	if task.Result != nil {
		dto.Result = &resultDTO{
			CollectionName: task.Result.CollectionName,
			PagesScraped:   task.Result.PagesScraped,
			ChunksCreated:  task.Result.ChunksCreated,
		}
	}
	return dto
}
