// Package quota enforces per-user usage limits and tier permissions.
package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/logger"
)

// defaultTierLimits is the compiled-in fallback used when no tiers file is
// available. The file-backed configuration is authoritative when present.
var defaultTierLimits = map[domain.UserTier]domain.TierLimits{
	domain.TierFree: {
		DailyTasks:      3,
		MaxResolution:   "480p",
		AllowedModes:    []domain.ProcessingMode{domain.ModeOriginal, domain.ModeWithSubtitle},
		Priority:        1,
		AISubtitle:      false,
		ConcurrentTasks: 1,
		Name:            "Free",
		Description:     "Basic access",
	},
	domain.TierBasic: {
		DailyTasks:      15,
		MaxResolution:   "720p",
		AllowedModes:    []domain.ProcessingMode{domain.ModeOriginal, domain.ModeWithSubtitle, domain.ModeRepeatTwice},
		Priority:        5,
		AISubtitle:      true,
		ConcurrentTasks: 2,
		Name:            "Basic",
		Description:     "For regular learners",
	},
	domain.TierPremium: {
		DailyTasks:      domain.UnlimitedDaily,
		MaxResolution:   "1080p",
		AllowedModes:    []domain.ProcessingMode{domain.ModeOriginal, domain.ModeWithSubtitle, domain.ModeRepeatTwice, domain.ModeSlow},
		Priority:        10,
		AISubtitle:      true,
		ConcurrentTasks: 5,
		Name:            "Premium",
		Description:     "Unlimited access",
	},
}

// tierSnapshot is one immutable loaded configuration. Readers always go
// through Current(), so Reload swaps the whole snapshot at once.
type tierSnapshot struct {
	Tiers       map[domain.UserTier]domain.TierLimits
	Resolutions []string
}

type tiersFile struct {
	Tiers       map[string]domain.TierLimits `json:"tiers"`
	Resolutions []string                     `json:"resolutions"`
}

// TierConfig serves tier limits from a JSON file with the built-in table as
// fallback. Reload is atomic from the reader's perspective.
type TierConfig struct {
	path    string
	log     *logger.Logger
	current atomic.Pointer[tierSnapshot]
}

func NewTierConfig(path string, log *logger.Logger) *TierConfig {
	tc := &TierConfig{
		path: path,
		log:  log.WithComponent("tiers"),
	}
	tc.Reload()
	return tc
}

// Reload re-reads the tiers file. On any failure the built-in defaults are
// installed instead, never a partially parsed table.
func (tc *TierConfig) Reload() {
	snap, err := loadTiersFile(tc.path)
	if err != nil {
		tc.log.Warn("Failed to load tier config, using defaults", "path", tc.path, "error", err)
		snap = &tierSnapshot{Tiers: defaultTierLimits, Resolutions: resolutionOrder}
	} else {
		tc.log.Info("Loaded tier config", "path", tc.path, "tiers", len(snap.Tiers))
	}
	tc.current.Store(snap)
}

func loadTiersFile(path string) (*tierSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed tiersFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tiers file: %w", err)
	}
	if len(parsed.Tiers) == 0 {
		return nil, fmt.Errorf("tiers file defines no tiers")
	}

	snap := &tierSnapshot{
		Tiers:       make(map[domain.UserTier]domain.TierLimits, len(parsed.Tiers)),
		Resolutions: parsed.Resolutions,
	}
	for id, limits := range parsed.Tiers {
		snap.Tiers[domain.UserTier(id)] = limits
	}
	if len(snap.Resolutions) == 0 {
		snap.Resolutions = resolutionOrder
	}
	return snap, nil
}

// Limits returns the limits for a tier, falling back to the free tier for
// unknown values.
func (tc *TierConfig) Limits(tier domain.UserTier) domain.TierLimits {
	snap := tc.current.Load()
	if limits, ok := snap.Tiers[tier]; ok {
		return limits
	}
	if limits, ok := snap.Tiers[domain.TierFree]; ok {
		return limits
	}
	return defaultTierLimits[domain.TierFree]
}

// AllTiers returns a copy of the current tier table.
func (tc *TierConfig) AllTiers() map[domain.UserTier]domain.TierLimits {
	snap := tc.current.Load()
	out := make(map[domain.UserTier]domain.TierLimits, len(snap.Tiers))
	for k, v := range snap.Tiers {
		out[k] = v
	}
	return out
}

// resolutionOrder ranks resolutions lowest to highest. Unrecognized values
// rank lowest.
var resolutionOrder = []string{"360p", "480p", "720p", "1080p"}

func resolutionRank(res string) int {
	for i, r := range resolutionOrder {
		if r == res {
			return i
		}
	}
	return 0
}
