package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale-labs/taskorc/internal/models"
)

// exemptDirs are never walked into for deletion decisions (spec §4.4 item
// 11: "The directory yt-dlp-thumb is exempted").
var exemptDirs = map[string]bool{
	"yt-dlp-thumb": true,
}

// ExtensionFilterStage walks the tree after all transformations and
// deletes files whose extension is excluded, or (if an inclusion set is
// configured) deletes everything not included (spec §4.4 item 11). It
// always runs — there is no dedicated flag — gated instead on whether
// either extension set is non-empty.
type ExtensionFilterStage struct {
	// Included/Excluded are set by whoever builds the stage, since
	// PipelineOptions doesn't carry them (spec §3 TaskConfig.filter sets).
	// New() leaves both empty, so this stage is disabled in the pipeline
	// it builds.
	Included []string
	Excluded []string
}

func (s *ExtensionFilterStage) Name() string { return "extension-filter" }

func (s *ExtensionFilterStage) Enabled(opts models.PipelineOptions) bool {
	return len(s.Included) > 0 || len(s.Excluded) > 0
}

func (s *ExtensionFilterStage) Run(ctx context.Context, pc *Context) (string, error) {
	if len(s.Included) == 0 && len(s.Excluded) == 0 {
		return "", nil
	}

	included := normalizeExtSet(s.Included)
	excluded := normalizeExtSet(s.Excluded)

	info, err := os.Stat(pc.Path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", nil // single-file payloads aren't subject to tree filtering
	}

	err = filepath.WalkDir(pc.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if exemptDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		shouldDelete := false
		if len(included) > 0 {
			shouldDelete = !included[ext]
		} else {
			shouldDelete = excluded[ext]
		}
		if shouldDelete {
			return os.Remove(path)
		}
		return nil
	})
	return "", err
}

func normalizeExtSet(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, e := range exts {
		out[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return out
}
