package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// archiveExtensions is the recognized archive extension set (spec §4.4
// item 2).
var archiveExtensions = map[string]bool{
	".zip": true, ".rar": true, ".7z": true, ".tar": true,
	".gz": true, ".bz2": true, ".xz": true, ".iso": true,
}

// ExtractStage extracts an archive payload, forwarding an optional
// password opaquely, and deletes the original on success (spec §4.4
// item 2).
type ExtractStage struct{}

func (s *ExtractStage) Name() string { return "extract" }

func (s *ExtractStage) Enabled(opts models.PipelineOptions) bool { return opts.ExtractArchive }

func isArchive(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if archiveExtensions[ext] {
		return true
	}
	// first-part multi-volume archive: name.7z.001, name.zip.001, ...
	if partRe.MatchString(path) {
		trimmed := path[:len(path)-len(filepath.Ext(path))]
		return archiveExtensions[strings.ToLower(filepath.Ext(trimmed))]
	}
	return false
}

func (s *ExtractStage) Run(ctx context.Context, pc *Context) (string, error) {
	if !isArchive(pc.Path) {
		return "", nil
	}

	destDir := pc.Path + "_extracted"
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("extract: mkdir %s: %w", destDir, err)
	}

	argv := []string{"7z", "x", "-y", fmt.Sprintf("-o%s", destDir)}
	if pw := pc.Listener.Config.Pipeline.ExtractPassword; pw != "" {
		argv = append(argv, "-p"+pw)
	}
	argv = append(argv, pc.Path)

	code, _, err := mediatool.Run(ctx, argv, nil)
	if err != nil {
		return "", fmt.Errorf("extract: 7z: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("extract: 7z exited %d", code)
	}

	if err := os.Remove(pc.Path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("extract: remove original %s: %w", pc.Path, err)
	}
	return destDir, nil
}
