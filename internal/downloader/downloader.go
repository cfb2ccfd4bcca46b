// Package downloader wraps the external video extractor behind a small
// interface the coordinator can call.
package downloader

import (
	"context"

	"github.com/danielmtz/newslearn/internal/domain"
)

// Result is the outcome of one download attempt.
type Result struct {
	Success      bool
	VideoID      string
	Title        string
	FilePath     string
	SubtitlePath string
	FileSize     int64
	Error        string
}

// Downloader fetches videos and their metadata.
type Downloader interface {
	// GetVideoInfo resolves a URL to video metadata without downloading.
	// A nil VideoInfo with nil error means the URL could not be resolved.
	GetVideoInfo(ctx context.Context, url string) (*domain.VideoInfo, error)

	// Download fetches the video at the requested format into the output
	// directory. A failed download is reported in Result.Error, not err;
	// err is reserved for the extractor being unusable at all.
	Download(ctx context.Context, url, formatID, outputDir string) (Result, error)
}
