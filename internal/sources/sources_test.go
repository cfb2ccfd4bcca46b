package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmtz/newslearn/internal/logger"
)

func TestCatalogDefaultsWhenFileMissing(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "missing.json"), logger.Default())

	src := c.Get("bbc-news")
	require.NotNil(t, src)
	assert.Equal(t, "BBC News", src.Name)
	assert.True(t, src.Enabled)

	assert.Nil(t, c.Get("nonexistent"))
}

func TestCatalogLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	content := `{
		"sources": {
			"nhk": {"name": "NHK World", "channel_url": "https://example.com/nhk", "language": "en", "enabled": true},
			"old": {"name": "Old Channel", "channel_url": "https://example.com/old", "enabled": false}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c := NewCatalog(path, logger.Default())

	src := c.Get("nhk")
	require.NotNil(t, src)
	assert.Equal(t, "nhk", src.ID)
	assert.Equal(t, "NHK World", src.Name)

	// The built-in catalog is fully replaced by the file.
	assert.Nil(t, c.Get("bbc-news"))
}

func TestCatalogListFiltersDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	content := `{
		"sources": {
			"a": {"name": "A", "channel_url": "https://example.com/a", "enabled": true},
			"b": {"name": "B", "channel_url": "https://example.com/b", "enabled": false},
			"c": {"name": "C", "channel_url": "https://example.com/c", "enabled": true}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c := NewCatalog(path, logger.Default())

	enabled := c.List(false)
	require.Len(t, enabled, 2)
	assert.Equal(t, "a", enabled[0].ID)
	assert.Equal(t, "c", enabled[1].ID)

	assert.Len(t, c.List(true), 3)
}

func TestCatalogReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"sources": {"a": {"name": "A", "channel_url": "https://example.com/a", "enabled": true}}}`), 0644))

	c := NewCatalog(path, logger.Default())
	require.NotNil(t, c.Get("a"))

	require.NoError(t, os.WriteFile(path,
		[]byte(`{"sources": {"b": {"name": "B", "channel_url": "https://example.com/b", "enabled": true}}}`), 0644))
	c.Reload()

	assert.Nil(t, c.Get("a"))
	assert.NotNil(t, c.Get("b"))
}

func TestCatalogBadFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	c := NewCatalog(path, logger.Default())
	assert.NotNil(t, c.Get("bbc-news"))
}
