package processor

import (
	"context"
	"errors"
	"os"

	"github.com/danielmtz/newslearn/internal/domain"
)

// Mock is a configurable Processor for tests. By default it writes a small
// file at outputPath and reports progress in four steps.
type Mock struct {
	Err          error
	ProgressPlan [][2]int // (current, total) pairs to emit before finishing

	Calls []domain.ProcessingMode
}

func (m *Mock) Process(_ context.Context, inputPath, outputPath string, mode domain.ProcessingMode, _ Options, onProgress ProgressFunc) (string, error) {
	m.Calls = append(m.Calls, mode)
	if m.Err != nil {
		return "", m.Err
	}

	plan := m.ProgressPlan
	if plan == nil {
		plan = [][2]int{{25, 100}, {50, 100}, {75, 100}, {100, 100}}
	}
	if onProgress != nil {
		for _, p := range plan {
			onProgress(p[0], p[1])
		}
	}

	if inputPath == "" {
		return "", errors.New("no input path")
	}
	if err := os.WriteFile(outputPath, []byte("processed"), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}
