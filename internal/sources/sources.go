// Package sources serves the catalog of video channels users may request
// downloads from. The catalog lives in a JSON file so operators can edit it
// without a redeploy.
package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/logger"
)

// defaultSources is the compiled-in fallback catalog.
var defaultSources = map[string]domain.Source{
	"bbc-news": {
		ID:          "bbc-news",
		Name:        "BBC News",
		ChannelURL:  "https://www.youtube.com/@BBCNews",
		Language:    "en",
		Description: "British English news reports",
		Enabled:     true,
	},
	"cnn": {
		ID:          "cnn",
		Name:        "CNN",
		ChannelURL:  "https://www.youtube.com/@CNN",
		Language:    "en",
		Description: "American English news reports",
		Enabled:     true,
	},
}

type catalogSnapshot struct {
	Sources map[string]domain.Source
}

type sourcesFile struct {
	Sources map[string]domain.Source `json:"sources"`
}

// Catalog serves sources from a JSON file with the built-in table as
// fallback. Reload is atomic from the reader's perspective.
type Catalog struct {
	path    string
	log     *logger.Logger
	current atomic.Pointer[catalogSnapshot]
}

func NewCatalog(path string, log *logger.Logger) *Catalog {
	c := &Catalog{
		path: path,
		log:  log.WithComponent("sources"),
	}
	c.Reload()
	return c
}

// Reload re-reads the sources file. On any failure the built-in catalog is
// installed instead, never a partially parsed one.
func (c *Catalog) Reload() {
	snap, err := loadSourcesFile(c.path)
	if err != nil {
		c.log.Warn("Failed to load source catalog, using defaults", "path", c.path, "error", err)
		snap = &catalogSnapshot{Sources: defaultSources}
	} else {
		c.log.Info("Loaded source catalog", "path", c.path, "sources", len(snap.Sources))
	}
	c.current.Store(snap)
}

func loadSourcesFile(path string) (*catalogSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed sourcesFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	if len(parsed.Sources) == 0 {
		return nil, fmt.Errorf("sources file defines no sources")
	}

	snap := &catalogSnapshot{Sources: make(map[string]domain.Source, len(parsed.Sources))}
	for id, src := range parsed.Sources {
		src.ID = id
		snap.Sources[id] = src
	}
	return snap, nil
}

// Get returns the source with the given ID, nil when unknown.
func (c *Catalog) Get(id string) *domain.Source {
	snap := c.current.Load()
	if src, ok := snap.Sources[id]; ok {
		return &src
	}
	return nil
}

// List returns the enabled sources sorted by ID. With includeDisabled it
// returns the whole catalog.
func (c *Catalog) List(includeDisabled bool) []domain.Source {
	snap := c.current.Load()
	out := make([]domain.Source, 0, len(snap.Sources))
	for _, src := range snap.Sources {
		if !src.Enabled && !includeDisabled {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
