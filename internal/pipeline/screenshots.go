package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rescale-labs/taskorc/internal/constants"
	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// ScreenshotsStage generates N screenshots at evenly-spaced timestamps
// into a sibling `<name>_ss/` directory the uploader sends as a media
// group (spec §4.4 item 4).
type ScreenshotsStage struct{}

func (s *ScreenshotsStage) Name() string { return "screenshots" }

func (s *ScreenshotsStage) Enabled(opts models.PipelineOptions) bool { return opts.Screenshots }

func (s *ScreenshotsStage) Run(ctx context.Context, pc *Context) (string, error) {
	count := pc.Listener.Config.Pipeline.ScreenshotCount
	if count <= 0 {
		count = constants.DefaultScreenshotCount
	}

	duration, err := ProbeDuration(ctx, pc.Path)
	if err != nil {
		return "", fmt.Errorf("screenshots: probe duration: %w", err)
	}
	if duration <= 0 {
		return "", fmt.Errorf("screenshots: %s has no measurable duration", pc.Path)
	}

	ssDir := filepath.Join(filepath.Dir(pc.Path), nameWithoutExt(pc.Path)+"_ss")
	if err := os.MkdirAll(ssDir, 0o755); err != nil {
		return "", fmt.Errorf("screenshots: mkdir %s: %w", ssDir, err)
	}

	interval := duration / time.Duration(count+1)
	for i := 1; i <= count; i++ {
		if pc.Listener.IsCancelled() {
			break
		}
		ts := interval * time.Duration(i)
		out := filepath.Join(ssDir, fmt.Sprintf("ss_%02d.jpg", i))
		argv := []string{
			"ffmpeg", "-ss", formatTimestamp(ts), "-i", pc.Path,
			"-vframes", "1", "-q:v", "2", out,
		}
		code, _, err := mediatool.Run(ctx, mediatool.RewriteFFmpegArgv(argv), nil)
		if err != nil {
			return "", fmt.Errorf("screenshots: frame %d: %w", i, err)
		}
		if code != 0 {
			return "", fmt.Errorf("screenshots: frame %d exited %d", i, code)
		}
	}

	return "", nil // screenshots are a sibling artifact; the main path is unchanged
}

func nameWithoutExt(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func formatTimestamp(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, sec, ms)
}

// ProbeDuration shells out to ffprobe to read a media file's duration.
// Shared by ScreenshotsStage, SampleVideoStage, and SplitStage's numeric
// split-count computation (spec §4.4 item 12).
func ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if !scanner.Scan() {
		return 0, fmt.Errorf("ffprobe: no duration output for %s", path)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration %q: %w", scanner.Text(), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
