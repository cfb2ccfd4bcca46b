// Package cache maps (source, video, format) to downloaded artifacts so the
// same video is never fetched twice while its file survives.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/logger"
)

const indexFileName = "cache_index.json"

// Index is the cache index. Entries live in memory and are snapshotted to a
// JSON file on every mutation. Removal deletes the index entry only; file
// deletion is the caller's responsibility (the storage manager combines both).
type Index struct {
	mu      sync.Mutex
	entries map[string]*domain.CachedArtifact
	path    string
	log     *logger.Logger
}

// Key builds the composite cache key for an artifact.
func Key(videoID, sourceID, formatID string) string {
	return fmt.Sprintf("%s_%s_%s", sourceID, videoID, formatID)
}

// NewIndex loads the index snapshot from dataDir, starting empty when the
// snapshot is missing or unreadable.
func NewIndex(dataDir string, log *logger.Logger) (*Index, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	idx := &Index{
		entries: make(map[string]*domain.CachedArtifact),
		path:    filepath.Join(dataDir, indexFileName),
		log:     log.WithComponent("cache"),
	}
	idx.load()
	return idx, nil
}

func (idx *Index) load() {
	data, err := os.ReadFile(idx.path)
	if err != nil {
		if !os.IsNotExist(err) {
			idx.log.Warn("Failed to load cache index", "error", err)
		}
		return
	}
	var entries map[string]*domain.CachedArtifact
	if err := json.Unmarshal(data, &entries); err != nil {
		idx.log.Warn("Failed to parse cache index, starting empty", "error", err)
		return
	}
	idx.entries = entries
}

// save rewrites the whole snapshot. Caller holds idx.mu.
func (idx *Index) save() {
	data, err := json.MarshalIndent(idx.entries, "", "  ")
	if err != nil {
		idx.log.Error("Failed to encode cache index", "error", err)
		return
	}
	if err := os.WriteFile(idx.path, data, 0644); err != nil {
		idx.log.Error("Failed to save cache index", "error", err)
	}
}

// Lookup returns the cached artifact for the key, or nil on a miss. A hit
// whose backing file has gone away is evicted and reported as a miss. Genuine
// hits touch the access stats before returning.
func (idx *Index) Lookup(videoID, sourceID, formatID string) *domain.CachedArtifact {
	key := Key(videoID, sourceID, formatID)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cached, ok := idx.entries[key]
	if !ok {
		return nil
	}

	if _, err := os.Stat(cached.FilePath); err != nil {
		delete(idx.entries, key)
		idx.save()
		idx.log.Warn("Cache file missing, entry evicted", "key", key, "path", cached.FilePath)
		return nil
	}

	cached.LastAccessed = time.Now()
	cached.AccessCount++
	idx.save()
	idx.log.Info("Cache hit", "key", key, "access_count", cached.AccessCount)

	copied := *cached
	return &copied
}

// Insert registers a freshly produced artifact, reading its size from disk.
func (idx *Index) Insert(videoID, sourceID, formatID, filePath string, hasSubtitle bool, subtitlePath string) (*domain.CachedArtifact, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	now := time.Now()
	cached := &domain.CachedArtifact{
		VideoID:      videoID,
		SourceID:     sourceID,
		FormatID:     formatID,
		FilePath:     filePath,
		FileSize:     info.Size(),
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
		HasSubtitle:  hasSubtitle,
		SubtitlePath: subtitlePath,
	}

	key := Key(videoID, sourceID, formatID)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[key] = cached
	idx.save()
	idx.log.Info("Added to cache", "key", key, "size", cached.FileSize)

	copied := *cached
	return &copied, nil
}

// Entries returns a copy of all index entries for reporting and sweeps.
func (idx *Index) Entries() []*domain.CachedArtifact {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]*domain.CachedArtifact, 0, len(idx.entries))
	for _, cached := range idx.entries {
		copied := *cached
		out = append(out, &copied)
	}
	return out
}

// Remove drops the index entry for the key, if present.
func (idx *Index) Remove(videoID, sourceID, formatID string) {
	key := Key(videoID, sourceID, formatID)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.entries[key]; ok {
		delete(idx.entries, key)
		idx.save()
	}
}

// Len returns the number of index entries.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}
