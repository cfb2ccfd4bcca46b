package domain

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusProcessing  TaskStatus = "processing"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
	TaskStatusCancelled   TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// ActiveStatuses are the states that count against the concurrency backlog.
var ActiveStatuses = []TaskStatus{TaskStatusPending, TaskStatusDownloading, TaskStatusProcessing}

type ProcessingMode string

const (
	ModeOriginal     ProcessingMode = "original"
	ModeWithSubtitle ProcessingMode = "with_subtitle"
	ModeRepeatTwice  ProcessingMode = "repeat_twice"
	ModeSlow         ProcessingMode = "slow"
)

// ValidMode reports whether m is one of the known processing modes.
func ValidMode(m ProcessingMode) bool {
	switch m {
	case ModeOriginal, ModeWithSubtitle, ModeRepeatTwice, ModeSlow:
		return true
	}
	return false
}

// Task represents one video download-and-process request.
type Task struct {
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	OutputFile     *string        `json:"output_file,omitempty" db:"output_file"`
	SubtitleFile   *string        `json:"subtitle_file,omitempty" db:"subtitle_file"`
	ErrorMessage   *string        `json:"error_message,omitempty" db:"error_message"`
	Metadata       MetadataMap    `json:"metadata,omitempty" db:"metadata"`
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"user_id" db:"user_id"`
	SourceID       string         `json:"source_id" db:"source_id"`
	VideoID        string         `json:"video_id" db:"video_id"`
	VideoURL       string         `json:"video_url" db:"video_url"`
	VideoTitle     string         `json:"video_title" db:"video_title"`
	Status         TaskStatus     `json:"status" db:"status"`
	ProcessingMode ProcessingMode `json:"processing_mode" db:"processing_mode"`
	Progress       int            `json:"progress" db:"progress"`
}

type UserTier string

const (
	TierFree    UserTier = "free"
	TierBasic   UserTier = "basic"
	TierPremium UserTier = "premium"
)

// Normalize maps unknown tier values to the free tier.
func (t UserTier) Normalize() UserTier {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return t
	}
	return TierFree
}

// UserUsage tracks per-user quota consumption. Records accumulate forever;
// daily counters reset lazily on the first check of a new day.
type UserUsage struct {
	UserID              string    `json:"user_id"`
	Tier                UserTier  `json:"tier"`
	DailyTaskCount      int       `json:"daily_task_count"`
	LastTaskDate        string    `json:"last_task_date"`
	TotalTasks          int       `json:"total_tasks"`
	TotalBytesProcessed int64     `json:"total_bytes_processed"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// UnlimitedDaily marks a tier with no daily task cap.
const UnlimitedDaily = -1

// TierLimits bounds what a subscription tier may do.
type TierLimits struct {
	DailyTasks      int              `json:"daily_tasks"`
	MaxResolution   string           `json:"max_resolution"`
	AllowedModes    []ProcessingMode `json:"allowed_modes"`
	Priority        int              `json:"priority"`
	AISubtitle      bool             `json:"ai_subtitle"`
	ConcurrentTasks int              `json:"concurrent_tasks"`
	Name            string           `json:"name,omitempty"`
	Description     string           `json:"description,omitempty"`
	PriceMonthly    string           `json:"price_monthly,omitempty"`
	PriceYearly     string           `json:"price_yearly,omitempty"`
}

// AllowsMode reports whether the tier may request the given processing mode.
func (l TierLimits) AllowsMode(mode ProcessingMode) bool {
	for _, m := range l.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// QuotaResult is the outcome of a quota check. RemainingToday is
// UnlimitedDaily for uncapped tiers, never conflated with zero.
type QuotaResult struct {
	Allowed        bool       `json:"allowed"`
	Reason         string     `json:"reason,omitempty"`
	RemainingToday int        `json:"remaining_today"`
	Tier           UserTier   `json:"tier"`
	Limits         TierLimits `json:"limits"`
}

// CachedArtifact is one entry in the cache index. The composite key
// source_video_format identifies it; the entry is only valid while the
// backing file exists.
type CachedArtifact struct {
	VideoID      string    `json:"video_id"`
	SourceID     string    `json:"source_id"`
	FormatID     string    `json:"format_id"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`
	HasSubtitle  bool      `json:"has_subtitle"`
	SubtitlePath string    `json:"subtitle_path,omitempty"`
}

// StorageStats summarizes the managed storage tree.
type StorageStats struct {
	TotalSize        int64   `json:"total_size"`
	FileCount        int     `json:"file_count"`
	OldestFile       string  `json:"oldest_file,omitempty"`
	NewestFile       string  `json:"newest_file,omitempty"`
	QuotaUsedPercent float64 `json:"quota_used_percent"`
}

// VideoInfo is the metadata the download collaborator reports for a URL.
type VideoInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Duration   int    `json:"duration"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Uploader   string `json:"uploader,omitempty"`
	UploadDate string `json:"upload_date,omitempty"`
}

// Source describes one configured news channel.
type Source struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ChannelURL  string `json:"channel_url"`
	Language    string `json:"language,omitempty"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}
