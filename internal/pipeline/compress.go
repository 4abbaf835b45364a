package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// CompressStage produces a single archive `{name}.7z` with an optional
// password; the original tree is deleted on success (spec §4.4 item 9).
type CompressStage struct{}

func (s *CompressStage) Name() string { return "compress" }

func (s *CompressStage) Enabled(opts models.PipelineOptions) bool { return opts.Compress }

func (s *CompressStage) Run(ctx context.Context, pc *Context) (string, error) {
	out := pc.Path + ".7z"

	argv := []string{"7z", "a", "-y"}
	if pw := pc.Listener.Config.Pipeline.CompressPassword; pw != "" {
		argv = append(argv, "-p"+pw)
	}
	argv = append(argv, out, pc.Path)

	code, _, err := mediatool.Run(ctx, argv, nil)
	if err != nil {
		return "", fmt.Errorf("compress: 7z: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("compress: 7z exited %d", code)
	}

	if err := os.RemoveAll(pc.Path); err != nil {
		return "", fmt.Errorf("compress: remove original tree %s: %w", pc.Path, err)
	}
	return out, nil
}
