// Package worker drives admitted tasks through the download and processing
// pipeline with a bounded pool.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danielmtz/newslearn/internal/cache"
	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/downloader"
	"github.com/danielmtz/newslearn/internal/logger"
	"github.com/danielmtz/newslearn/internal/mediatag"
	"github.com/danielmtz/newslearn/internal/processor"
	"github.com/danielmtz/newslearn/internal/quota"
	"github.com/danielmtz/newslearn/internal/storage"
	"github.com/danielmtz/newslearn/internal/store"
)

// Options configures the coordinator.
type Options struct {
	MaxConcurrent int
	PollInterval  time.Duration
	DefaultFormat string
	WhisperModel  string
}

// Coordinator polls for pending tasks and runs each through download and
// transform, bounded by a counting semaphore. Every status transition is
// guarded on the expected pre-state so an externally cancelled task is never
// overwritten by a stale worker.
type Coordinator struct {
	db      *store.DB
	ledger  *quota.Ledger
	index   *cache.Index
	storage *storage.Manager
	dl      downloader.Downloader
	proc    processor.Processor
	opts    Options
	log     *logger.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCoordinator(db *store.DB, ledger *quota.Ledger, index *cache.Index, sm *storage.Manager, dl downloader.Downloader, proc processor.Processor, opts Options, log *logger.Logger) *Coordinator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		db:      db,
		ledger:  ledger,
		index:   index,
		storage: sm,
		dl:      dl,
		proc:    proc,
		opts:    opts,
		log:     log.WithComponent("worker"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start resets tasks stranded by a previous run and begins the polling loop.
func (c *Coordinator) Start() {
	c.log.Info("Starting coordinator", "max_concurrent", c.opts.MaxConcurrent)

	if n, err := c.db.ResetStuckTasks(); err != nil {
		c.log.Warn("Failed to reset stuck tasks", "error", err)
	} else if n > 0 {
		c.log.Info("Reset stuck tasks to pending", "count", n)
	}

	c.wg.Add(1)
	go c.poll()
}

// Stop cancels in-flight work and waits for workers to drain.
func (c *Coordinator) Stop() {
	c.log.Info("Stopping coordinator")
	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) poll() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, c.opts.MaxConcurrent)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pending, err := c.db.ListPendingTasks(c.opts.MaxConcurrent)
			if err != nil {
				c.log.Error("Failed to list pending tasks", "error", err)
				continue
			}

			for _, task := range pending {
				select {
				case sem <- struct{}{}:
				default:
					// Pool is full; the next tick will retry.
					continue
				}
				c.wg.Add(1)
				go func(t *domain.Task) {
					defer c.wg.Done()
					defer func() { <-sem }()
					c.runTask(c.ctx, t)
				}(task)
			}
		}
	}
}

// runTask drives a single task through the pipeline. No step is retried; the
// first failure marks the task FAILED and stops.
func (c *Coordinator) runTask(ctx context.Context, task *domain.Task) {
	log := c.log.WithTask(task.ID, task.VideoID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while running task", "panic", r)
			c.markFailed(task.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	formatID := c.opts.DefaultFormat
	if f, ok := task.Metadata["format"].(string); ok && f != "" {
		formatID = f
	}

	// Claim the task. Losing the guard means someone cancelled it first.
	if _, err := c.db.UpdateTask(task.ID, store.TaskUpdate{
		Status:       statusPtr(domain.TaskStatusDownloading),
		Progress:     intPtr(10),
		ExpectStatus: []domain.TaskStatus{domain.TaskStatusPending},
	}); err != nil {
		if err != store.ErrStaleTransition {
			log.Error("Failed to claim task", "error", err)
		}
		return
	}

	inputPath, subtitlePath, fromCache, err := c.obtainVideo(ctx, task, formatID, log)
	if err != nil {
		c.markFailed(task.ID, err.Error())
		return
	}

	upd := store.TaskUpdate{
		Progress:     intPtr(40),
		ExpectStatus: []domain.TaskStatus{domain.TaskStatusDownloading},
	}
	if subtitlePath != "" {
		upd.SubtitleFile = &subtitlePath
	}
	if _, err := c.db.UpdateTask(task.ID, upd); err != nil {
		log.Info("Task no longer downloading, stopping", "error", err)
		return
	}

	if _, err := c.db.UpdateTask(task.ID, store.TaskUpdate{
		Status:       statusPtr(domain.TaskStatusProcessing),
		Progress:     intPtr(50),
		ExpectStatus: []domain.TaskStatus{domain.TaskStatusDownloading},
	}); err != nil {
		log.Info("Task no longer downloading, stopping", "error", err)
		return
	}

	outputPath := filepath.Join(c.storage.ProcessedDir(),
		fmt.Sprintf("%s_processed%s", task.ID, filepath.Ext(inputPath)))

	// In-flight collaborator calls are not interrupted on cancellation, but
	// a lost progress guard tells us the task was concluded externally.
	taskCtx, stop := context.WithCancel(ctx)
	defer stop()

	lastProgress := 50
	onProgress := func(cur, total int) {
		if total <= 0 {
			return
		}
		p := 50 + cur*40/total
		if p > 90 {
			p = 90
		}
		if p <= lastProgress {
			return
		}
		lastProgress = p
		if _, err := c.db.UpdateTask(task.ID, store.TaskUpdate{
			Progress:     intPtr(p),
			ExpectStatus: []domain.TaskStatus{domain.TaskStatusProcessing},
		}); err == store.ErrStaleTransition {
			stop()
		}
	}

	procOpts := processor.Options{
		SubtitlePath: subtitlePath,
		WhisperModel: c.opts.WhisperModel,
		SourceURL:    task.VideoURL,
	}
	producedPath, err := c.proc.Process(taskCtx, inputPath, outputPath, task.ProcessingMode, procOpts, onProgress)
	if err != nil {
		if taskCtx.Err() != nil && ctx.Err() == nil {
			log.Info("Task concluded externally during processing")
			return
		}
		c.markFailed(task.ID, fmt.Sprintf("processing failed: %v", err))
		return
	}

	// Cached originals stay for reuse under the cache lifecycle; anything
	// else is an unmanaged temp download and gets removed here.
	if !fromCache && producedPath != inputPath {
		if c.index.Lookup(task.VideoID, task.SourceID, formatID) == nil {
			_ = os.Remove(inputPath)
		}
	}

	if err := mediatag.TagAudioOutput(producedPath, task, nil); err != nil {
		log.Warn("Failed to tag audio output", "error", err)
	}

	var outputSize int64
	if info, statErr := os.Stat(producedPath); statErr == nil {
		outputSize = info.Size()
	}

	if _, err := c.db.UpdateTask(task.ID, store.TaskUpdate{
		Status:       statusPtr(domain.TaskStatusCompleted),
		Progress:     intPtr(100),
		OutputFile:   &producedPath,
		ExpectStatus: []domain.TaskStatus{domain.TaskStatusProcessing},
	}); err != nil {
		if err != store.ErrStaleTransition {
			log.Error("Failed to complete task", "error", err)
		}
		return
	}

	c.ledger.RecordTask(task.UserID, outputSize)
	c.storage.SyncToRemote(producedPath)

	log.Info("Task completed", "output", producedPath, "cached_input", fromCache)
}

// obtainVideo serves the input file from the cache when possible, otherwise
// downloads it and registers the fresh artifact for reuse.
func (c *Coordinator) obtainVideo(ctx context.Context, task *domain.Task, formatID string, log *logger.Logger) (inputPath, subtitlePath string, fromCache bool, err error) {
	if cached := c.index.Lookup(task.VideoID, task.SourceID, formatID); cached != nil {
		log.Info("Serving download from cache", "path", cached.FilePath)
		return cached.FilePath, cached.SubtitlePath, true, nil
	}

	res, err := c.dl.Download(ctx, task.VideoURL, formatID, c.storage.CacheDir())
	if err != nil {
		return "", "", false, fmt.Errorf("download failed: %w", err)
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "download failed"
		}
		return "", "", false, fmt.Errorf("%s", msg)
	}

	if _, err := c.index.Insert(task.VideoID, task.SourceID, formatID,
		res.FilePath, res.SubtitlePath != "", res.SubtitlePath); err != nil {
		log.Warn("Failed to register download in cache", "error", err)
	}
	return res.FilePath, res.SubtitlePath, false, nil
}

// markFailed records a terminal failure unless the task already reached a
// terminal state by other means.
func (c *Coordinator) markFailed(taskID, message string) {
	if _, err := c.db.UpdateTask(taskID, store.TaskUpdate{
		Status:       statusPtr(domain.TaskStatusFailed),
		ErrorMessage: &message,
		ExpectStatus: domain.ActiveStatuses,
	}); err != nil && err != store.ErrStaleTransition {
		c.log.Error("Failed to mark task failed", "task_id", taskID, "error", err)
	}
}

func statusPtr(s domain.TaskStatus) *domain.TaskStatus { return &s }
func intPtr(v int) *int                                { return &v }
