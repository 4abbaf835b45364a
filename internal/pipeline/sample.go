package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rescale-labs/taskorc/internal/constants"
	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// SampleVideoStage builds a shortened preview by concatenating N
// fixed-length segments sampled at equal intervals (spec §4.4 item 6).
type SampleVideoStage struct{}

func (s *SampleVideoStage) Name() string { return "sample-video" }

func (s *SampleVideoStage) Enabled(opts models.PipelineOptions) bool { return opts.SampleVideo }

func (s *SampleVideoStage) Run(ctx context.Context, pc *Context) (string, error) {
	duration, err := ProbeDuration(ctx, pc.Path)
	if err != nil {
		return "", fmt.Errorf("sample-video: probe duration: %w", err)
	}

	segCount := constants.DefaultSampleVideoSegments
	segLen := constants.DefaultSampleVideoSegmentSeconds
	if duration <= segLen*time.Duration(segCount) {
		return "", nil // source too short to sample meaningfully; skip
	}

	interval := duration / time.Duration(segCount+1)
	listPath := filepath.Join(filepath.Dir(pc.Path), nameWithoutExt(pc.Path)+"_sample_list.txt")
	segDir := filepath.Join(filepath.Dir(pc.Path), nameWithoutExt(pc.Path)+"_samples")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return "", fmt.Errorf("sample-video: mkdir %s: %w", segDir, err)
	}

	var listLines string
	for i := 1; i <= segCount; i++ {
		if pc.Listener.IsCancelled() {
			return "", nil
		}
		start := interval * time.Duration(i)
		segPath := filepath.Join(segDir, fmt.Sprintf("seg_%02d%s", i, extOf(pc.Path)))
		argv := []string{
			"ffmpeg", "-ss", formatTimestamp(start), "-i", pc.Path,
			"-t", formatTimestamp(segLen), "-c", "copy", segPath,
		}
		code, _, err := mediatool.Run(ctx, mediatool.RewriteFFmpegArgv(argv), nil)
		if err != nil {
			return "", fmt.Errorf("sample-video: segment %d: %w", i, err)
		}
		if code != 0 {
			return "", fmt.Errorf("sample-video: segment %d exited %d", i, code)
		}
		listLines += fmt.Sprintf("file '%s'\n", segPath)
	}

	if err := os.WriteFile(listPath, []byte(listLines), 0o644); err != nil {
		return "", fmt.Errorf("sample-video: write concat list: %w", err)
	}

	sampleOut := filepath.Join(filepath.Dir(pc.Path), nameWithoutExt(pc.Path)+"_sample"+extOf(pc.Path))
	argv := []string{
		"ffmpeg", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", sampleOut,
	}
	code, _, err := mediatool.Run(ctx, mediatool.RewriteFFmpegArgv(argv), nil)
	if err != nil {
		return "", fmt.Errorf("sample-video: concat: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("sample-video: concat exited %d", code)
	}

	_ = os.RemoveAll(segDir)
	_ = os.Remove(listPath)

	return sampleOut, nil
}
