package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/logger"
)

// formatStrings maps a format id to the extractor's selector expression.
var formatStrings = map[string]string{
	"360p":       "best[height<=360]",
	"480p":       "best[height<=480]",
	"720p":       "best[height<=720]",
	"1080p":      "best[height<=1080]",
	"audio_only": "bestaudio",
}

// FormatString returns the extractor selector for a format id, defaulting
// to 720p for unknown ids.
func FormatString(formatID string) string {
	if s, ok := formatStrings[formatID]; ok {
		return s
	}
	return formatStrings["720p"]
}

// YtdlpDownloader shells out to yt-dlp.
type YtdlpDownloader struct {
	binPath string
	log     *logger.Logger
}

func NewYtdlp(binPath string, log *logger.Logger) *YtdlpDownloader {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &YtdlpDownloader{
		binPath: binPath,
		log:     log.WithComponent("downloader"),
	}
}

type ytdlpInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	WebpageURL string `json:"webpage_url"`
	Duration   int    `json:"duration"`
	Thumbnail  string `json:"thumbnail"`
	Uploader   string `json:"uploader"`
	UploadDate string `json:"upload_date"`
}

func (d *YtdlpDownloader) GetVideoInfo(ctx context.Context, url string) (*domain.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, d.binPath,
		"--dump-json", "--no-warnings", "--skip-download", url)

	out, err := cmd.Output()
	if err != nil {
		d.log.Warn("Failed to resolve video info", "url", url, "error", err)
		return nil, nil
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to parse extractor output: %w", err)
	}

	resolved := &domain.VideoInfo{
		ID:         info.ID,
		Title:      info.Title,
		URL:        info.WebpageURL,
		Duration:   info.Duration,
		Thumbnail:  info.Thumbnail,
		Uploader:   info.Uploader,
		UploadDate: info.UploadDate,
	}
	if resolved.URL == "" {
		resolved.URL = url
	}
	return resolved, nil
}

func (d *YtdlpDownloader) Download(ctx context.Context, url, formatID, outputDir string) (Result, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	info, err := d.GetVideoInfo(ctx, url)
	if err != nil {
		return Result{}, err
	}
	if info == nil {
		return Result{Error: "could not resolve video information"}, nil
	}

	outTmpl := filepath.Join(outputDir, "%(id)s.%(ext)s")
	cmd := exec.CommandContext(ctx, d.binPath,
		"--format", FormatString(formatID),
		"--output", outTmpl,
		"--no-warnings", "--no-progress",
		"--write-subs", "--write-auto-subs",
		"--sub-langs", "en", "--sub-format", "srt/vtt/best",
		url)

	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		d.log.Warn("Download failed", "url", url, "error", err)
		return Result{VideoID: info.ID, Title: info.Title, Error: msg}, nil
	}

	filePath, err := d.findDownloadedFile(outputDir, info.ID)
	if err != nil {
		return Result{VideoID: info.ID, Title: info.Title, Error: err.Error()}, nil
	}

	res := Result{
		Success:  true,
		VideoID:  info.ID,
		Title:    info.Title,
		FilePath: filePath,
	}
	if fi, err := os.Stat(filePath); err == nil {
		res.FileSize = fi.Size()
	}
	if sub := d.findSubtitleFile(outputDir, info.ID); sub != "" {
		res.SubtitlePath = sub
	}

	d.log.Info("Download completed", "video_id", info.ID, "path", filePath)
	return res, nil
}

// findDownloadedFile locates the media file yt-dlp wrote for the video id.
// The extension depends on the selected format, so match on the id stem.
func (d *YtdlpDownloader) findDownloadedFile(outputDir, videoID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, videoID+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		ext := strings.ToLower(filepath.Ext(m))
		if ext == ".srt" || ext == ".vtt" {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("downloaded file for %s not found", videoID)
}

func (d *YtdlpDownloader) findSubtitleFile(outputDir, videoID string) string {
	for _, ext := range []string{".en.srt", ".en.vtt", ".srt", ".vtt"} {
		candidate := filepath.Join(outputDir, videoID+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
