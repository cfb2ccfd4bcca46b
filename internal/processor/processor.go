// Package processor wraps the external media tool that turns a downloaded
// video into a learning-mode output.
package processor

import (
	"context"

	"github.com/danielmtz/newslearn/internal/domain"
)

// ProgressFunc reports collaborator-local progress as (current, total).
// total may be zero when the collaborator cannot estimate it.
type ProgressFunc func(current, total int)

// Options carries per-task processing inputs beyond the media paths.
type Options struct {
	// SubtitlePath points at a subtitle file downloaded alongside the
	// video, when one exists. Empty means the processor must obtain one
	// itself (or fall back to the plain video for subtitle modes).
	SubtitlePath string
	// WhisperModel hints which speech-to-text model to use when a
	// subtitle has to be generated.
	WhisperModel string
	// SourceURL is the original video URL, for subtitle retrieval.
	SourceURL string
}

// Processor applies a processing mode to a video file.
type Processor interface {
	// Process transforms inputPath into outputPath according to mode and
	// returns the path of the produced file. Progress callbacks are
	// optional and best effort.
	Process(ctx context.Context, inputPath, outputPath string, mode domain.ProcessingMode, opts Options, onProgress ProgressFunc) (string, error)
}
