// Package mediatag writes metadata tags on audio-only task outputs.
package mediatag

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"

	"github.com/danielmtz/newslearn/internal/domain"
)

// TagAudioOutput writes ID3 tags on an mp3 artifact produced for an
// audio-only task: video title, source channel as artist, upload year.
// Non-mp3 outputs are left untouched.
func TagAudioOutput(filePath string, task *domain.Task, info *domain.VideoInfo) error {
	if strings.ToLower(filepath.Ext(filePath)) != ".mp3" {
		return nil
	}

	tag, err := id3v2.Open(filePath, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open mp3 for tagging: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)

	if task.VideoTitle != "" {
		tag.SetTitle(task.VideoTitle)
	}
	if task.SourceID != "" {
		tag.SetArtist(task.SourceID)
	}
	if info != nil {
		if info.Uploader != "" {
			tag.SetArtist(info.Uploader)
		}
		// Upload dates arrive as YYYYMMDD.
		if len(info.UploadDate) >= 4 {
			tag.SetYear(info.UploadDate[:4])
		}
	}
	tag.SetGenre("News")

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save mp3 tags: %w", err)
	}
	return nil
}
