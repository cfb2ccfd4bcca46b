package processor

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeField(t *testing.T) {
	tests := []struct {
		name string
		line string
		want int
		ok   bool
	}{
		{"typical status line", "frame= 100 fps=25 time=00:01:30.50 bitrate=1000k", 90, true},
		{"time at line start", "time=01:00:05.00 speed=1x", 3605, true},
		{"no time field", "frame= 100 fps=25", 0, false},
		{"malformed time", "time=9999", 0, false},
		{"empty line", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTimeField(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanLinesAndCR(t *testing.T) {
	input := "line1\rline2\nline3"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanLinesAndCR)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"line1", "line2", "line3"}, lines)
}

func TestSubtitleFilterEscaping(t *testing.T) {
	assert.Equal(t, "subtitles='/tmp/video.srt'", subtitleFilter("/tmp/video.srt"))
	assert.Equal(t, `subtitles='C\:\\subs\\a.srt'`, subtitleFilter(`C:\subs\a.srt`))
	assert.Equal(t, `subtitles='/tmp/it\'s.srt'`, subtitleFilter("/tmp/it's.srt"))
}
