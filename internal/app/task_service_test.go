package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/downloader"
	"github.com/danielmtz/newslearn/internal/logger"
	"github.com/danielmtz/newslearn/internal/quota"
	"github.com/danielmtz/newslearn/internal/sources"
	"github.com/danielmtz/newslearn/internal/store"
)

type serviceEnv struct {
	svc    *TaskService
	db     *store.DB
	ledger *quota.Ledger
	dl     *downloader.Mock
}

func setupService(t *testing.T) *serviceEnv {
	t.Helper()
	dataDir := t.TempDir()
	log := logger.Default()

	db, err := store.NewSQLiteDB(filepath.Join(dataDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tiers := quota.NewTierConfig(filepath.Join(dataDir, "no-tiers.json"), log)
	ledger, err := quota.NewLedger(dataDir, tiers, log)
	require.NoError(t, err)

	sourcesPath := filepath.Join(dataDir, "sources.json")
	catalogData := map[string]interface{}{
		"sources": map[string]interface{}{
			"bbc-news": map[string]interface{}{"name": "BBC News", "channel_url": "https://example.com/bbc", "enabled": true},
			"retired":  map[string]interface{}{"name": "Retired", "channel_url": "https://example.com/old", "enabled": false},
		},
	}
	data, err := json.Marshal(catalogData)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sourcesPath, data, 0644))
	catalog := sources.NewCatalog(sourcesPath, log)

	dl := &downloader.Mock{}
	svc := NewTaskService(db, ledger, catalog, dl, 2, "720p", log)
	return &serviceEnv{svc: svc, db: db, ledger: ledger, dl: dl}
}

func TestCreateTask(t *testing.T) {
	env := setupService(t)

	task, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/watch?v=abc", domain.ModeOriginal, "")
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, "u1", task.UserID)
	assert.Equal(t, "mock-video", task.VideoID)
	assert.Equal(t, "Mock Video", task.VideoTitle)
	assert.Equal(t, "720p", task.Metadata["format"])
}

func TestCreateTaskInvalidMode(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ProcessingMode("backwards"), "")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestCreateTaskUnknownOrDisabledSource(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.CreateTask(context.Background(), "u1", "nope",
		"https://example.com/v", domain.ModeOriginal, "")
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = env.svc.CreateTask(context.Background(), "u1", "retired",
		"https://example.com/v", domain.ModeOriginal, "")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestCreateTaskQuotaDenied(t *testing.T) {
	env := setupService(t)

	// Free tier caps resolution at 480p.
	_, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "1080p")

	var quotaErr *QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.False(t, quotaErr.Result.Allowed)
	assert.Equal(t, domain.TierFree, quotaErr.Result.Tier)
}

func TestCreateTaskQueueFull(t *testing.T) {
	env := setupService(t)
	env.ledger.SetTier("u1", domain.TierPremium)

	// Soft cap is maxConcurrent*2 = 4 active tasks.
	for i := 0; i < 4; i++ {
		_, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
			"https://example.com/v", domain.ModeOriginal, "480p")
		require.NoError(t, err)
	}

	_, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "480p")
	assert.ErrorIs(t, err, ErrQueueFull)

	// A second caller at the cap is rejected the same way, and neither
	// rejection leaves a task behind.
	_, err = env.svc.CreateTask(context.Background(), "u2", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "480p")
	assert.ErrorIs(t, err, ErrQueueFull)

	count, err := env.db.CountActiveTasks()
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestCreateTaskVideoUnavailable(t *testing.T) {
	env := setupService(t)
	env.dl.InfoFunc = func(url string) *domain.VideoInfo { return nil }

	_, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "")
	assert.ErrorIs(t, err, ErrVideoUnavailable)
}

func TestCreateTaskDoesNotConsumeQuota(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "")
	require.NoError(t, err)

	// Quota is consumed on completion, not on creation.
	assert.Equal(t, 0, env.ledger.GetUserStats("u1").DailyTasksUsed)
}

func TestGetTaskEnforcesOwnership(t *testing.T) {
	env := setupService(t)

	task, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "")
	require.NoError(t, err)

	_, err = env.svc.GetTask("u1", task.ID)
	assert.NoError(t, err)

	_, err = env.svc.GetTask("u2", task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestCancelTask(t *testing.T) {
	env := setupService(t)

	task, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "")
	require.NoError(t, err)

	cancelled, err := env.svc.CancelTask("u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)

	// Cancelling again is a conflict, not a silent success.
	_, err = env.svc.CancelTask("u1", task.ID)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestDeleteTaskRequiresTerminalState(t *testing.T) {
	env := setupService(t)

	task, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "")
	require.NoError(t, err)

	err = env.svc.DeleteTask("u1", task.ID)
	assert.ErrorIs(t, err, ErrTaskActive)

	_, err = env.svc.CancelTask("u1", task.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteTask("u1", task.ID))
	_, err = env.svc.GetTask("u1", task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestListTasksLimitDefaults(t *testing.T) {
	env := setupService(t)
	env.ledger.SetTier("u1", domain.TierPremium)

	for i := 0; i < 3; i++ {
		_, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
			"https://example.com/v", domain.ModeOriginal, "480p")
		require.NoError(t, err)
	}

	tasks, err := env.svc.ListTasks("u1", nil, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	tasks, err = env.svc.ListTasks("u1", nil, 2)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestCleanupFinishedTasks(t *testing.T) {
	env := setupService(t)

	task, err := env.svc.CreateTask(context.Background(), "u1", "bbc-news",
		"https://example.com/v", domain.ModeOriginal, "")
	require.NoError(t, err)

	completed := domain.TaskStatusCompleted
	_, err = env.db.UpdateTask(task.ID, store.TaskUpdate{Status: &completed})
	require.NoError(t, err)
	_, err = env.db.Exec("UPDATE tasks SET completed_at = ? WHERE id = ?",
		time.Now().Add(-48*time.Hour), task.ID)
	require.NoError(t, err)

	count, err := env.svc.CleanupFinishedTasks(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
