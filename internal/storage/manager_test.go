package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmtz/newslearn/internal/cache"
	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/logger"
)

type fixture struct {
	manager *Manager
	index   *cache.Index
	dataDir string
}

// seedEntry describes one pre-existing cached artifact for a test.
type seedEntry struct {
	videoID      string
	size         int
	lastAccessed time.Time
}

func setupManager(t *testing.T, quotaBytes int64, ttl time.Duration, seeds []seedEntry) fixture {
	t.Helper()
	dataDir := t.TempDir()
	localPath := t.TempDir()
	cacheDir := filepath.Join(localPath, "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0755))

	entries := make(map[string]*domain.CachedArtifact)
	for _, s := range seeds {
		path := filepath.Join(cacheDir, s.videoID+".mp4")
		require.NoError(t, os.WriteFile(path, make([]byte, s.size), 0644))
		entries[cache.Key(s.videoID, "bbc", "720p")] = &domain.CachedArtifact{
			VideoID:      s.videoID,
			SourceID:     "bbc",
			FormatID:     "720p",
			FilePath:     path,
			FileSize:     int64(s.size),
			CreatedAt:    s.lastAccessed,
			LastAccessed: s.lastAccessed,
			AccessCount:  1,
		}
	}
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "cache_index.json"), data, 0644))

	idx, err := cache.NewIndex(dataDir, logger.Default())
	require.NoError(t, err)

	m, err := NewManager(Options{
		LocalPath:  localPath,
		QuotaBytes: quotaBytes,
		CacheTTL:   ttl,
	}, idx, logger.Default())
	require.NoError(t, err)

	return fixture{manager: m, index: idx, dataDir: dataDir}
}

func TestStatsEmptyTree(t *testing.T) {
	f := setupManager(t, 1000, time.Hour, nil)

	stats := f.manager.Stats()
	assert.Equal(t, int64(0), stats.TotalSize)
	assert.Equal(t, 0, stats.FileCount)
	assert.Equal(t, float64(0), stats.QuotaUsedPercent)
}

func TestStatsZeroQuotaReportsZeroPercent(t *testing.T) {
	f := setupManager(t, 0, time.Hour, []seedEntry{
		{videoID: "a", size: 500, lastAccessed: time.Now()},
	})

	stats := f.manager.Stats()
	assert.Equal(t, int64(500), stats.TotalSize)
	assert.Equal(t, float64(0), stats.QuotaUsedPercent)
}

func TestStatsCountsAndPercent(t *testing.T) {
	f := setupManager(t, 1000, time.Hour, []seedEntry{
		{videoID: "a", size: 300, lastAccessed: time.Now()},
		{videoID: "b", size: 200, lastAccessed: time.Now()},
	})

	stats := f.manager.Stats()
	assert.Equal(t, int64(500), stats.TotalSize)
	assert.Equal(t, 2, stats.FileCount)
	assert.InDelta(t, 50.0, stats.QuotaUsedPercent, 0.01)
}

func TestCleanupExpired(t *testing.T) {
	now := time.Now()
	f := setupManager(t, 0, 24*time.Hour, []seedEntry{
		{videoID: "old", size: 100, lastAccessed: now.Add(-25 * time.Hour)},
		{videoID: "fresh", size: 100, lastAccessed: now.Add(-1 * time.Hour)},
	})

	removed, freed := f.manager.CleanupExpired()
	assert.Equal(t, 1, removed)
	assert.Equal(t, int64(100), freed)

	assert.Nil(t, f.index.Lookup("old", "bbc", "720p"))
	assert.NotNil(t, f.index.Lookup("fresh", "bbc", "720p"))
}

func TestCleanupExpiredSweepsOrphanOutputs(t *testing.T) {
	f := setupManager(t, 0, 24*time.Hour, nil)

	orphan := filepath.Join(f.manager.ProcessedDir(), "t1_processed.mp4")
	require.NoError(t, os.WriteFile(orphan, make([]byte, 64), 0644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(orphan, old, old))

	recent := filepath.Join(f.manager.ProcessedDir(), "t2_processed.mp4")
	require.NoError(t, os.WriteFile(recent, make([]byte, 64), 0644))

	removed, freed := f.manager.CleanupExpired()
	assert.Equal(t, 1, removed)
	assert.Equal(t, int64(64), freed)

	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
}

func TestCleanupToQuotaNoopWithinQuota(t *testing.T) {
	f := setupManager(t, 1000, time.Hour, []seedEntry{
		{videoID: "a", size: 400, lastAccessed: time.Now()},
	})

	removed, freed := f.manager.CleanupToQuota()
	assert.Equal(t, 0, removed)
	assert.Equal(t, int64(0), freed)
}

func TestCleanupToQuotaEvictsLRUToTarget(t *testing.T) {
	now := time.Now()
	f := setupManager(t, 1000, time.Hour, []seedEntry{
		{videoID: "a", size: 300, lastAccessed: now.Add(-3 * time.Hour)},
		{videoID: "b", size: 300, lastAccessed: now.Add(-2 * time.Hour)},
		{videoID: "c", size: 300, lastAccessed: now.Add(-1 * time.Hour)},
		{videoID: "d", size: 300, lastAccessed: now},
	})

	// 1200 bytes against a 1000-byte quota cleans down to the 800-byte
	// target, oldest access first.
	removed, freed := f.manager.CleanupToQuota()
	assert.Equal(t, 2, removed)
	assert.Equal(t, int64(600), freed)

	assert.Nil(t, f.index.Lookup("a", "bbc", "720p"))
	assert.Nil(t, f.index.Lookup("b", "bbc", "720p"))
	assert.NotNil(t, f.index.Lookup("c", "bbc", "720p"))
	assert.NotNil(t, f.index.Lookup("d", "bbc", "720p"))

	stats := f.manager.Stats()
	assert.LessOrEqual(t, stats.TotalSize, int64(800))
}

func TestRunMaintenanceOrder(t *testing.T) {
	now := time.Now()
	// The expired entry alone brings usage back under quota, so the quota
	// phase has nothing left to do.
	f := setupManager(t, 1000, 24*time.Hour, []seedEntry{
		{videoID: "expired", size: 600, lastAccessed: now.Add(-48 * time.Hour)},
		{videoID: "live", size: 600, lastAccessed: now},
	})

	report := f.manager.RunMaintenance()
	assert.Equal(t, 1, report.ExpiredFiles)
	assert.Equal(t, int64(600), report.ExpiredBytes)
	assert.Equal(t, 0, report.QuotaFiles)
	assert.Equal(t, int64(1200), report.StorageBefore.TotalSize)
	assert.Equal(t, int64(600), report.StorageAfter.TotalSize)

	assert.NotNil(t, f.index.Lookup("live", "bbc", "720p"))
}

func TestRemoveArtifactDeletesSubtitle(t *testing.T) {
	f := setupManager(t, 0, time.Hour, nil)

	video := filepath.Join(f.manager.CacheDir(), "v.mp4")
	sub := filepath.Join(f.manager.CacheDir(), "v.srt")
	require.NoError(t, os.WriteFile(video, make([]byte, 10), 0644))
	require.NoError(t, os.WriteFile(sub, []byte("subs"), 0644))

	freed := f.manager.removeArtifact(&domain.CachedArtifact{
		FilePath:     video,
		SubtitlePath: sub,
	})
	assert.Equal(t, int64(10), freed)

	_, err := os.Stat(video)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sub)
	assert.True(t, os.IsNotExist(err))
}

func TestIsManagedPath(t *testing.T) {
	f := setupManager(t, 0, time.Hour, nil)

	assert.True(t, f.manager.IsManagedPath(filepath.Join(f.manager.CacheDir(), "x.mp4")))
	assert.False(t, f.manager.IsManagedPath("/etc/passwd"))
}
