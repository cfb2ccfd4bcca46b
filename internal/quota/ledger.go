package quota

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

const usageFileName = "user_usage.json"

// Ledger tracks per-user usage and gates task creation against tier limits.
// State is held in memory and snapshotted to disk on every mutation; a failed
// save is logged and memory stays authoritative until the next save succeeds.
type Ledger struct {
	mu    sync.Mutex
	users map[string]*domain.UserUsage
	path  string
	tiers *TierConfig
	log   *logger.Logger
}

// NewLedger loads the usage snapshot from dataDir. A missing or unreadable
// snapshot starts an empty ledger rather than failing.
func NewLedger(dataDir string, tiers *TierConfig, log *logger.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	l := &Ledger{
		users: make(map[string]*domain.UserUsage),
		path:  filepath.Join(dataDir, usageFileName),
		tiers: tiers,
		log:   log.WithComponent("quota"),
	}
	l.load()
	l.log.Info("Quota ledger initialized", "users", len(l.users))
	return l, nil
}

func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.Warn("Failed to load usage data", "error", err)
		}
		return
	}
	var users map[string]*domain.UserUsage
	if err := json.Unmarshal(data, &users); err != nil {
		l.log.Warn("Failed to parse usage data, starting empty", "error", err)
		return
	}
	l.users = users
}

// save rewrites the whole snapshot. Caller holds l.mu.
func (l *Ledger) save() {
	data, err := json.MarshalIndent(l.users, "", "  ")
	if err != nil {
		l.log.Error("Failed to encode usage data", "error", err)
		return
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		l.log.Error("Failed to save usage data", "error", err)
	}
}

// getUser returns the usage record, creating it on first sight.
// Caller holds l.mu.
func (l *Ledger) getUser(userID string) *domain.UserUsage {
	if user, ok := l.users[userID]; ok {
		return user
	}
	now := time.Now()
	user := &domain.UserUsage{
		UserID:    userID,
		Tier:      domain.TierFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.users[userID] = user
	l.save()
	l.log.Info("Created new user", "user_id", userID)
	return user
}

// resetIfNewDay zeroes the daily counter the first time the user is touched
// on a new date. Caller holds l.mu.
func resetIfNewDay(user *domain.UserUsage, today string) {
	if user.LastTaskDate != today {
		user.DailyTaskCount = 0
		user.LastTaskDate = today
	}
}

// CheckQuota decides whether the user may create a task with the requested
// processing mode and resolution. Checks run in order: daily cap, allowed
// mode, resolution rank.
func (l *Ledger) CheckQuota(userID string, mode domain.ProcessingMode, resolution string) domain.QuotaResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	user := l.getUser(userID)
	tier := user.Tier.Normalize()
	limits := l.tiers.Limits(tier)
	resetIfNewDay(user, today())

	remaining := domain.UnlimitedDaily
	if limits.DailyTasks != domain.UnlimitedDaily {
		remaining = limits.DailyTasks - user.DailyTaskCount
		if remaining < 0 {
			remaining = 0
		}
	}

	if limits.DailyTasks != domain.UnlimitedDaily && user.DailyTaskCount >= limits.DailyTasks {
		return domain.QuotaResult{
			Allowed:        false,
			Reason:         fmt.Sprintf("daily limit reached (%d tasks/day for %s tier)", limits.DailyTasks, tier),
			RemainingToday: 0,
			Tier:           tier,
			Limits:         limits,
		}
	}

	if !limits.AllowsMode(mode) {
		return domain.QuotaResult{
			Allowed:        false,
			Reason:         fmt.Sprintf("processing mode %q not available for %s tier", mode, tier),
			RemainingToday: remaining,
			Tier:           tier,
			Limits:         limits,
		}
	}

	if resolutionRank(resolution) > resolutionRank(limits.MaxResolution) {
		return domain.QuotaResult{
			Allowed:        false,
			Reason:         fmt.Sprintf("resolution %q not available for %s tier (max %s)", resolution, tier, limits.MaxResolution),
			RemainingToday: remaining,
			Tier:           tier,
			Limits:         limits,
		}
	}

	return domain.QuotaResult{
		Allowed:        true,
		RemainingToday: remaining,
		Tier:           tier,
		Limits:         limits,
	}
}

// RecordTask counts one completed task against the user's quota. The
// coordinator calls this on the COMPLETED transition only, so failed
// downloads never consume quota.
func (l *Ledger) RecordTask(userID string, bytesProcessed int64) *domain.UserUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	user := l.getUser(userID)
	resetIfNewDay(user, today())

	user.DailyTaskCount++
	user.TotalTasks++
	user.TotalBytesProcessed += bytesProcessed
	user.UpdatedAt = time.Now()
	l.save()

	l.log.Info("Recorded task usage", "user_id", userID,
		"daily", user.DailyTaskCount, "total", user.TotalTasks)

	copied := *user
	return &copied
}

// SetTier applies an admin tier override and persists it immediately.
func (l *Ledger) SetTier(userID string, tier domain.UserTier) *domain.UserUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	user := l.getUser(userID)
	old := user.Tier
	user.Tier = tier.Normalize()
	user.UpdatedAt = time.Now()
	l.save()

	l.log.Info("User tier changed", "user_id", userID, "from", old, "to", user.Tier)

	copied := *user
	return &copied
}

// UserStats is the read-only projection of a user's quota position.
type UserStats struct {
	UserID              string                  `json:"user_id"`
	Tier                domain.UserTier         `json:"tier"`
	DailyTasksUsed      int                     `json:"daily_tasks_used"`
	DailyTasksLimit     int                     `json:"daily_tasks_limit"`
	DailyTasksRemaining int                     `json:"daily_tasks_remaining"`
	TotalTasks          int                     `json:"total_tasks"`
	TotalBytesProcessed int64                   `json:"total_bytes_processed"`
	MaxResolution       string                  `json:"max_resolution"`
	AllowedModes        []domain.ProcessingMode `json:"allowed_modes"`
	AISubtitle          bool                    `json:"ai_subtitle"`
	MemberSince         time.Time               `json:"member_since"`
}

// GetUserStats returns display statistics for a user. The stored daily
// counter is reported as zero when it belongs to a previous day.
func (l *Ledger) GetUserStats(userID string) UserStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	user := l.getUser(userID)
	limits := l.tiers.Limits(user.Tier.Normalize())

	daily := user.DailyTaskCount
	if user.LastTaskDate != today() {
		daily = 0
	}

	remaining := domain.UnlimitedDaily
	if limits.DailyTasks != domain.UnlimitedDaily {
		remaining = limits.DailyTasks - daily
		if remaining < 0 {
			remaining = 0
		}
	}

	return UserStats{
		UserID:              userID,
		Tier:                user.Tier.Normalize(),
		DailyTasksUsed:      daily,
		DailyTasksLimit:     limits.DailyTasks,
		DailyTasksRemaining: remaining,
		TotalTasks:          user.TotalTasks,
		TotalBytesProcessed: user.TotalBytesProcessed,
		MaxResolution:       limits.MaxResolution,
		AllowedModes:        limits.AllowedModes,
		AISubtitle:          limits.AISubtitle,
		MemberSince:         user.CreatedAt,
	}
}

// AllUserStats returns stats for every known user.
func (l *Ledger) AllUserStats() []UserStats {
	l.mu.Lock()
	ids := make([]string, 0, len(l.users))
	for id := range l.users {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	stats := make([]UserStats, 0, len(ids))
	for _, id := range ids {
		stats = append(stats, l.GetUserStats(id))
	}
	return stats
}

func today() string {
	return time.Now().Format("2006-01-02")
}
