package downloader

import (
	"context"

	"github.com/danielmtz/newslearn/internal/domain"
)

// Mock is a configurable Downloader for tests.
type Mock struct {
	InfoFunc     func(url string) *domain.VideoInfo
	DownloadFunc func(url, formatID, outputDir string) Result

	InfoCalls     []string
	DownloadCalls []string
}

func (m *Mock) GetVideoInfo(_ context.Context, url string) (*domain.VideoInfo, error) {
	m.InfoCalls = append(m.InfoCalls, url)
	if m.InfoFunc != nil {
		return m.InfoFunc(url), nil
	}
	return &domain.VideoInfo{ID: "mock-video", Title: "Mock Video", URL: url}, nil
}

func (m *Mock) Download(_ context.Context, url, formatID, outputDir string) (Result, error) {
	m.DownloadCalls = append(m.DownloadCalls, url)
	if m.DownloadFunc != nil {
		return m.DownloadFunc(url, formatID, outputDir), nil
	}
	return Result{Success: true, VideoID: "mock-video", Title: "Mock Video"}, nil
}
