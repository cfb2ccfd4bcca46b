// Package app ties the core components together behind the task-facing
// service the API layer calls.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/downloader"
	"github.com/danielmtz/newslearn/internal/logger"
	"github.com/danielmtz/newslearn/internal/quota"
	"github.com/danielmtz/newslearn/internal/sources"
	"github.com/danielmtz/newslearn/internal/store"
)

// queueDepthFactor sizes the soft admission cap as a multiple of the
// concurrency limit. The pool bounds simultaneous execution; this bounds the
// backlog behind it.
const queueDepthFactor = 2

var (
	// ErrQueueFull signals the soft queue-depth cap was hit; the caller
	// should retry later rather than treat this as a hard failure.
	ErrQueueFull = errors.New("too many pending tasks, try again later")
	// ErrUnknownSource is returned for a missing or disabled source id.
	ErrUnknownSource = errors.New("unknown or disabled source")
	// ErrVideoUnavailable is returned when the URL cannot be resolved to a
	// video.
	ErrVideoUnavailable = errors.New("video could not be resolved")
	// ErrInvalidMode is returned for an unrecognized processing mode.
	ErrInvalidMode = errors.New("invalid processing mode")
	// ErrTaskActive is returned when deleting a task that has not finished.
	ErrTaskActive = errors.New("task is still active, cancel it first")
	// ErrNotCancellable is returned when cancelling an already-finished task.
	ErrNotCancellable = errors.New("task already finished")
)

// QuotaError carries the full quota decision for a denied creation.
type QuotaError struct {
	Result domain.QuotaResult
}

func (e *QuotaError) Error() string { return e.Result.Reason }

// TaskService implements task creation, inspection and lifecycle on behalf of
// the API layer. Creation is synchronous up to the PENDING record; the
// coordinator picks the task up from there.
type TaskService struct {
	db            *store.DB
	ledger        *quota.Ledger
	catalog       *sources.Catalog
	dl            downloader.Downloader
	maxConcurrent int
	defaultFormat string
	log           *logger.Logger
}

func NewTaskService(db *store.DB, ledger *quota.Ledger, catalog *sources.Catalog, dl downloader.Downloader, maxConcurrent int, defaultFormat string, log *logger.Logger) *TaskService {
	return &TaskService{
		db:            db,
		ledger:        ledger,
		catalog:       catalog,
		dl:            dl,
		maxConcurrent: maxConcurrent,
		defaultFormat: defaultFormat,
		log:           log.WithComponent("tasks"),
	}
}

// CreateTask admits and records a new task. Order: mode and source
// validation, quota check, soft queue-depth cap, video resolution, insert.
// Denials are typed so the API layer can map them to status codes.
func (s *TaskService) CreateTask(ctx context.Context, userID, sourceID, videoURL string, mode domain.ProcessingMode, resolution string) (*domain.Task, error) {
	if !domain.ValidMode(mode) {
		return nil, ErrInvalidMode
	}
	src := s.catalog.Get(sourceID)
	if src == nil || !src.Enabled {
		return nil, ErrUnknownSource
	}
	if resolution == "" {
		resolution = s.defaultFormat
	}

	result := s.ledger.CheckQuota(userID, mode, resolution)
	if !result.Allowed {
		return nil, &QuotaError{Result: result}
	}

	active, err := s.db.CountActiveTasks()
	if err != nil {
		return nil, fmt.Errorf("failed to count active tasks: %w", err)
	}
	if active >= s.maxConcurrent*queueDepthFactor {
		return nil, ErrQueueFull
	}

	info, err := s.dl.GetVideoInfo(ctx, videoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve video: %w", err)
	}
	if info == nil {
		return nil, ErrVideoUnavailable
	}

	task, err := s.db.CreateTask(userID, sourceID, info.ID, videoURL, info.Title, mode)
	if err != nil {
		return nil, err
	}

	meta := domain.MetadataMap{
		"format":     resolution,
		"duration":   info.Duration,
		"uploader":   info.Uploader,
		"resolution": resolution,
	}
	if updated, err := s.db.UpdateTask(task.ID, store.TaskUpdate{Metadata: meta}); err == nil {
		task = updated
	}

	s.log.WithUser(userID).Info("Task created",
		"task_id", task.ID, "video_id", task.VideoID, "mode", mode, "remaining_today", result.RemainingToday)
	return task, nil
}

// GetTask returns the task if it exists and belongs to the user.
func (s *TaskService) GetTask(userID, taskID string) (*domain.Task, error) {
	task, err := s.db.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns the user's tasks, newest first.
func (s *TaskService) ListTasks(userID string, status *domain.TaskStatus, limit int) ([]*domain.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.db.ListUserTasks(userID, status, limit)
}

// CancelTask marks an active task CANCELLED. The running collaborator call is
// not interrupted; the worker notices the lost guard on its next update.
func (s *TaskService) CancelTask(userID, taskID string) (*domain.Task, error) {
	if _, err := s.GetTask(userID, taskID); err != nil {
		return nil, err
	}

	cancelled := domain.TaskStatusCancelled
	task, err := s.db.UpdateTask(taskID, store.TaskUpdate{
		Status:       &cancelled,
		ExpectStatus: domain.ActiveStatuses,
	})
	if err == store.ErrStaleTransition {
		return nil, ErrNotCancellable
	}
	if err != nil {
		return nil, err
	}

	s.log.WithUser(userID).Info("Task cancelled", "task_id", taskID)
	return task, nil
}

// DeleteTask removes a finished task and its files. Active tasks must be
// cancelled first.
func (s *TaskService) DeleteTask(userID, taskID string) error {
	task, err := s.GetTask(userID, taskID)
	if err != nil {
		return err
	}
	if !task.Status.IsTerminal() {
		return ErrTaskActive
	}

	deleted, err := s.db.DeleteTask(taskID)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrTaskNotFound
	}

	s.log.WithUser(userID).Info("Task deleted", "task_id", taskID)
	return nil
}

// CleanupFinishedTasks removes completed and failed tasks past the retention
// window. Wired to the periodic maintenance schedule.
func (s *TaskService) CleanupFinishedTasks(retention time.Duration) (int, error) {
	count, err := s.db.CleanupOlderThan(retention)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("Removed finished tasks past retention", "count", count)
	}
	return count, nil
}
