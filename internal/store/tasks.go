package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielmtz/newslearn/internal/domain"
)

var (
	// ErrTaskNotFound is returned when the referenced task does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrStaleTransition is returned when a guarded update finds the task
	// no longer in one of the expected states.
	ErrStaleTransition = errors.New("task not in expected state")
)

// CreateTask inserts a new pending task and returns it.
func (db *DB) CreateTask(userID, sourceID, videoID, videoURL, videoTitle string, mode domain.ProcessingMode) (*domain.Task, error) {
	now := time.Now()
	task := &domain.Task{
		ID:             uuid.New().String(),
		UserID:         userID,
		SourceID:       sourceID,
		VideoID:        videoID,
		VideoURL:       videoURL,
		VideoTitle:     videoTitle,
		Status:         domain.TaskStatusPending,
		ProcessingMode: mode,
		Progress:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `INSERT INTO tasks (
		id, user_id, source_id, video_id, video_url, video_title,
		status, processing_mode, progress, created_at, updated_at, metadata
	) VALUES (
		:id, :user_id, :source_id, :video_id, :video_url, :video_title,
		:status, :processing_mode, :progress, :created_at, :updated_at, :metadata
	)`

	if _, err := db.NamedExec(query, task); err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return task, nil
}

// GetTask returns the task with the given id, or ErrTaskNotFound.
func (db *DB) GetTask(id string) (*domain.Task, error) {
	query := `SELECT * FROM tasks WHERE id = ?`

	task := &domain.Task{}
	err := db.Get(task, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListUserTasks returns a user's tasks, newest first, optionally filtered by
// status, capped at limit.
func (db *DB) ListUserTasks(userID string, status *domain.TaskStatus, limit int) ([]*domain.Task, error) {
	var tasks []*domain.Task
	var err error

	if status != nil {
		query := `SELECT * FROM tasks WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT ?`
		err = db.Select(&tasks, query, userID, *status, limit)
	} else {
		query := `SELECT * FROM tasks WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`
		err = db.Select(&tasks, query, userID, limit)
	}
	return tasks, err
}

// TaskUpdate is a partial update: only non-nil fields are written.
// ExpectStatus, when non-empty, guards the update so it only applies while
// the task is still in one of the listed states. That keeps a slow worker
// from overwriting a cancellation with a stale completion.
type TaskUpdate struct {
	Status       *domain.TaskStatus
	Progress     *int
	OutputFile   *string
	SubtitleFile *string
	ErrorMessage *string
	Metadata     domain.MetadataMap
	ExpectStatus []domain.TaskStatus
}

// UpdateTask applies a partial update as a single UPDATE statement and
// returns the task as stored afterwards. updated_at always refreshes;
// completed_at is stamped the first time status moves to a terminal state.
func (db *DB) UpdateTask(id string, upd TaskUpdate) (*domain.Task, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
		if upd.Status.IsTerminal() {
			sets = append(sets, "completed_at = COALESCE(completed_at, ?)")
			args = append(args, time.Now())
		}
	}
	if upd.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *upd.Progress)
	}
	if upd.OutputFile != nil {
		sets = append(sets, "output_file = ?")
		args = append(args, *upd.OutputFile)
	}
	if upd.SubtitleFile != nil {
		sets = append(sets, "subtitle_file = ?")
		args = append(args, *upd.SubtitleFile)
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *upd.ErrorMessage)
	}
	if upd.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, upd.Metadata)
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	args = append(args, id)

	if len(upd.ExpectStatus) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(upd.ExpectStatus)), ", ")
		query += fmt.Sprintf(" AND status IN (%s)", placeholders)
		for _, s := range upd.ExpectStatus {
			args = append(args, s)
		}
	}

	res, err := db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Distinguish a missing task from a guarded update that lost.
		if _, getErr := db.GetTask(id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleTransition
	}

	return db.GetTask(id)
}

// DeleteTask removes the task row and unlinks any referenced files. Returns
// false if the task did not exist. Already-missing files are not an error.
func (db *DB) DeleteTask(id string) (bool, error) {
	task, err := db.GetTask(id)
	if err == ErrTaskNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	removeTaskFiles(task)

	if _, err := db.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return true, nil
}

// CleanupOlderThan deletes completed and failed tasks whose completion time
// is older than the retention window, together with their files. Returns the
// number of tasks removed.
func (db *DB) CleanupOlderThan(retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	var old []*domain.Task
	query := `SELECT * FROM tasks WHERE status IN (?, ?) AND completed_at < ?`
	if err := db.Select(&old, query, domain.TaskStatusCompleted, domain.TaskStatusFailed, cutoff); err != nil {
		return 0, err
	}

	for _, task := range old {
		removeTaskFiles(task)
	}

	del := `DELETE FROM tasks WHERE status IN (?, ?) AND completed_at < ?`
	if _, err := db.Exec(del, domain.TaskStatusCompleted, domain.TaskStatusFailed, cutoff); err != nil {
		return 0, err
	}
	return len(old), nil
}

// ListPendingTasks returns pending tasks oldest first, capped at limit.
func (db *DB) ListPendingTasks(limit int) ([]*domain.Task, error) {
	var tasks []*domain.Task
	query := `SELECT * FROM tasks WHERE status = ? ORDER BY created_at ASC LIMIT ?`
	err := db.Select(&tasks, query, domain.TaskStatusPending, limit)
	return tasks, err
}

// ResetStuckTasks returns tasks left mid-flight by a previous process run to
// the pending state so the coordinator picks them up again.
func (db *DB) ResetStuckTasks() (int, error) {
	query := `UPDATE tasks SET status = ?, progress = 0, updated_at = ? WHERE status IN (?, ?)`
	res, err := db.Exec(query,
		domain.TaskStatusPending, time.Now(),
		domain.TaskStatusDownloading, domain.TaskStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// CountActiveTasks counts tasks that are pending, downloading or processing.
func (db *DB) CountActiveTasks() (int, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE status IN (?, ?, ?)`
	var count int
	err := db.Get(&count, query,
		domain.TaskStatusPending, domain.TaskStatusDownloading, domain.TaskStatusProcessing)
	return count, err
}

func removeTaskFiles(task *domain.Task) {
	if task.OutputFile != nil {
		_ = os.Remove(*task.OutputFile)
	}
	if task.SubtitleFile != nil {
		_ = os.Remove(*task.SubtitleFile)
	}
}
