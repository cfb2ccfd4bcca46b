// Package storage enforces retention and quota policy over the cache index
// and the file tree it references.
package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielmtz/newslearn/internal/cache"
	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/logger"
)

// quotaTarget is the fraction of quota to clean down to, leaving headroom so
// the next small write does not immediately re-trigger cleanup.
const quotaTarget = 0.8

// Manager owns the storage tree under localPath (cache/ and processed/
// subdirectories) and the eviction policy over the cache index.
type Manager struct {
	localPath  string
	cacheDir   string
	processDir string
	quotaBytes int64
	cacheTTL   time.Duration
	index      *cache.Index
	remote     *RemoteSync
	log        *logger.Logger
}

type Options struct {
	LocalPath  string
	QuotaBytes int64
	CacheTTL   time.Duration
	// Optional rclone remote, e.g. "onedrive:videos". Empty disables sync.
	RcloneRemote string
}

func NewManager(opts Options, index *cache.Index, log *logger.Logger) (*Manager, error) {
	m := &Manager{
		localPath:  opts.LocalPath,
		cacheDir:   filepath.Join(opts.LocalPath, "cache"),
		processDir: filepath.Join(opts.LocalPath, "processed"),
		quotaBytes: opts.QuotaBytes,
		cacheTTL:   opts.CacheTTL,
		index:      index,
		log:        log.WithComponent("storage"),
	}
	if opts.RcloneRemote != "" {
		m.remote = NewRemoteSync(opts.RcloneRemote, m.log)
	}

	for _, dir := range []string{m.cacheDir, m.processDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir: %w", err)
		}
	}

	m.log.Info("Storage manager initialized", "path", opts.LocalPath,
		"quota", humanize.Bytes(uint64(opts.QuotaBytes)), "cache_ttl", opts.CacheTTL)
	return m, nil
}

// CacheDir returns the directory where reusable downloads live.
func (m *Manager) CacheDir() string { return m.cacheDir }

// ProcessedDir returns the directory where final outputs live.
func (m *Manager) ProcessedDir() string { return m.processDir }

// Stats walks the managed tree and reports usage. With a zero quota the used
// percentage is reported as zero.
func (m *Manager) Stats() domain.StorageStats {
	var stats domain.StorageStats
	var oldest, newest time.Time

	for _, dir := range []string{m.cacheDir, m.processDir} {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			stats.FileCount++
			stats.TotalSize += info.Size()
			mtime := info.ModTime()
			if oldest.IsZero() || mtime.Before(oldest) {
				oldest = mtime
				stats.OldestFile = path
			}
			if newest.IsZero() || mtime.After(newest) {
				newest = mtime
				stats.NewestFile = path
			}
			return nil
		})
	}

	if m.quotaBytes > 0 {
		stats.QuotaUsedPercent = float64(stats.TotalSize) / float64(m.quotaBytes) * 100
	}
	return stats
}

// CleanupExpired removes every cached artifact whose last access is older
// than the cache TTL, plus orphaned processed outputs past the same cutoff
// that the index no longer knows about. Returns files removed and bytes freed.
func (m *Manager) CleanupExpired() (int, int64) {
	cutoff := time.Now().Add(-m.cacheTTL)
	filesRemoved := 0
	var bytesFreed int64

	for _, entry := range m.index.Entries() {
		if !entry.LastAccessed.Before(cutoff) {
			continue
		}
		freed := m.removeArtifact(entry)
		if freed > 0 {
			filesRemoved++
			bytesFreed += freed
			m.log.Info("Removed expired artifact", "path", filepath.Base(entry.FilePath))
		}
		m.index.Remove(entry.VideoID, entry.SourceID, entry.FormatID)
	}

	// Defensive sweep for outputs that drifted out of the index.
	matches, _ := filepath.Glob(filepath.Join(m.processDir, "*_processed.*"))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			filesRemoved++
			bytesFreed += info.Size()
			m.log.Info("Removed orphan output", "path", filepath.Base(path))
		}
	}

	if filesRemoved > 0 {
		m.log.Info("Expiry cleanup done", "files", filesRemoved, "freed", humanize.Bytes(uint64(bytesFreed)))
	}
	return filesRemoved, bytesFreed
}

// CleanupToQuota evicts least-recently-accessed artifacts until usage drops
// to 80% of quota. A tree already within quota is left untouched.
func (m *Manager) CleanupToQuota() (int, int64) {
	stats := m.Stats()
	if m.quotaBytes <= 0 || stats.TotalSize <= m.quotaBytes {
		return 0, 0
	}

	target := int64(float64(m.quotaBytes) * quotaTarget)
	entries := m.index.Entries()
	sortByLastAccessed(entries)

	filesRemoved := 0
	var bytesFreed int64
	currentSize := stats.TotalSize

	for _, entry := range entries {
		if currentSize <= target {
			break
		}
		freed := m.removeArtifact(entry)
		if freed > 0 {
			filesRemoved++
			bytesFreed += freed
			currentSize -= freed
			m.log.Info("Quota cleanup removed", "path", filepath.Base(entry.FilePath))
		}
		m.index.Remove(entry.VideoID, entry.SourceID, entry.FormatID)
	}

	if filesRemoved > 0 {
		m.log.Info("Quota cleanup done", "files", filesRemoved, "freed", humanize.Bytes(uint64(bytesFreed)))
	}
	return filesRemoved, bytesFreed
}

// removeArtifact deletes the artifact's file and subtitle, returning the
// bytes freed from the main file. Missing files free nothing.
func (m *Manager) removeArtifact(entry *domain.CachedArtifact) int64 {
	var freed int64
	if info, err := os.Stat(entry.FilePath); err == nil {
		if err := os.Remove(entry.FilePath); err == nil {
			freed = info.Size()
		}
	}
	if entry.SubtitlePath != "" {
		_ = os.Remove(entry.SubtitlePath)
	}
	return freed
}

// CleanupReport captures one maintenance run.
type CleanupReport struct {
	Timestamp      time.Time           `json:"timestamp"`
	ExpiredFiles   int                 `json:"expired_files"`
	ExpiredBytes   int64               `json:"expired_bytes"`
	QuotaFiles     int                 `json:"quota_files"`
	QuotaBytes     int64               `json:"quota_bytes"`
	StorageBefore  domain.StorageStats `json:"storage_before"`
	StorageAfter   domain.StorageStats `json:"storage_after"`
}

// RunMaintenance performs the full cycle: expiry cleanup first (stale data is
// free to drop regardless of space pressure), then quota cleanup over what
// remains.
func (m *Manager) RunMaintenance() CleanupReport {
	report := CleanupReport{
		Timestamp:     time.Now(),
		StorageBefore: m.Stats(),
	}

	report.ExpiredFiles, report.ExpiredBytes = m.CleanupExpired()
	report.QuotaFiles, report.QuotaBytes = m.CleanupToQuota()

	report.StorageAfter = m.Stats()
	m.log.Info("Maintenance complete",
		"expired_files", report.ExpiredFiles,
		"quota_files", report.QuotaFiles,
		"usage", fmt.Sprintf("%.1f%%", report.StorageAfter.QuotaUsedPercent))
	return report
}

// SyncToRemote copies a file to the configured rclone remote. Best effort:
// failures are logged and do not affect local lifecycle.
func (m *Manager) SyncToRemote(filePath string) (string, bool) {
	if m.remote == nil {
		return "", false
	}
	return m.remote.Copy(filePath)
}

// RemoteUsage reports bytes used on the remote, when configured.
func (m *Manager) RemoteUsage() (int64, bool) {
	if m.remote == nil {
		return 0, false
	}
	return m.remote.Usage()
}

// sortByLastAccessed orders entries oldest access first, true LRU order.
func sortByLastAccessed(entries []*domain.CachedArtifact) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccessed.Before(entries[j].LastAccessed)
	})
}

// IsManagedPath reports whether a path sits inside the managed tree.
func (m *Manager) IsManagedPath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	root, err := filepath.Abs(m.localPath)
	if err != nil {
		return false
	}
	return strings.HasPrefix(abs, root+string(filepath.Separator)) || abs == root
}
