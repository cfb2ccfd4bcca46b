package processor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/logger"
)

// slowFactor is the playback rate for slow mode.
const slowFactor = 0.75

// FFmpegProcessor shells out to ffmpeg/ffprobe to realize the learning modes.
type FFmpegProcessor struct {
	binPath string
	log     *logger.Logger
}

func NewFFmpeg(binPath string, log *logger.Logger) *FFmpegProcessor {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegProcessor{
		binPath: binPath,
		log:     log.WithComponent("processor"),
	}
}

func (p *FFmpegProcessor) Process(ctx context.Context, inputPath, outputPath string, mode domain.ProcessingMode, opts Options, onProgress ProgressFunc) (string, error) {
	total := p.probeDuration(ctx, inputPath)

	var args []string
	switch mode {
	case domain.ModeOriginal:
		args = []string{"-i", inputPath, "-c", "copy", "-y", outputPath}

	case domain.ModeWithSubtitle:
		if opts.SubtitlePath == "" {
			// No subtitle available; fall back to a plain remux rather
			// than failing the whole task.
			p.log.Warn("No subtitle available, producing original video", "input", inputPath)
			args = []string{"-i", inputPath, "-c", "copy", "-y", outputPath}
		} else {
			args = []string{"-i", inputPath,
				"-vf", subtitleFilter(opts.SubtitlePath),
				"-c:a", "copy", "-y", outputPath}
		}

	case domain.ModeRepeatTwice:
		// Plays through twice; the second pass carries the subtitle when
		// one is available.
		filter := "[0:v][0:a][1:v][1:a]concat=n=2:v=1:a=1[v][a]"
		if opts.SubtitlePath != "" {
			filter = fmt.Sprintf("[1:v]%s[sub];[0:v][0:a][sub][1:a]concat=n=2:v=1:a=1[v][a]",
				subtitleFilter(opts.SubtitlePath))
		}
		total *= 2
		args = []string{"-i", inputPath, "-i", inputPath,
			"-filter_complex", filter,
			"-map", "[v]", "-map", "[a]", "-y", outputPath}

	case domain.ModeSlow:
		setpts := fmt.Sprintf("setpts=PTS/%g", slowFactor)
		if opts.SubtitlePath != "" {
			setpts = setpts + "," + subtitleFilter(opts.SubtitlePath)
		}
		atempo := fmt.Sprintf("atempo=%g", slowFactor)
		total = int(float64(total) / slowFactor)
		args = []string{"-i", inputPath,
			"-vf", setpts, "-af", atempo, "-y", outputPath}

	default:
		return "", fmt.Errorf("unknown processing mode: %s", mode)
	}

	if err := p.run(ctx, args, total, onProgress); err != nil {
		return "", err
	}
	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("processing produced no output: %w", err)
	}
	return outputPath, nil
}

// run executes ffmpeg, feeding time= progress lines into onProgress.
func (p *FFmpegProcessor) run(ctx context.Context, args []string, total int, onProgress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, p.binPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var lastLine string
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanLinesAndCR)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lastLine = line
		}
		if onProgress == nil || total <= 0 {
			continue
		}
		if cur, ok := parseTimeField(line); ok {
			if cur > total {
				cur = total
			}
			onProgress(cur, total)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %s: %w", strings.TrimSpace(lastLine), err)
	}
	return nil
}

// probeDuration returns the input duration in whole seconds, 0 when unknown.
func (p *FFmpegProcessor) probeDuration(ctx context.Context, inputPath string) int {
	probe := "ffprobe"
	if dir := filepath.Dir(p.binPath); dir != "." {
		probe = filepath.Join(dir, "ffprobe")
	}

	cmd := exec.CommandContext(ctx, probe,
		"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", inputPath)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0
	}
	return int(secs)
}

// subtitleFilter builds the burn-in filter, escaping the path for ffmpeg's
// filter syntax.
func subtitleFilter(subtitlePath string) string {
	escaped := strings.ReplaceAll(subtitlePath, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, ":", `\:`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return fmt.Sprintf("subtitles='%s'", escaped)
}

// parseTimeField extracts the seconds from an ffmpeg "time=HH:MM:SS.cc"
// status field.
func parseTimeField(line string) (int, bool) {
	i := strings.Index(line, "time=")
	if i < 0 {
		return 0, false
	}
	field := line[i+len("time="):]
	if j := strings.IndexByte(field, ' '); j >= 0 {
		field = field[:j]
	}
	parts := strings.Split(field, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + int(s), true
}

// scanLinesAndCR splits on both \n and \r, since ffmpeg rewrites its status
// line with carriage returns.
func scanLinesAndCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
