package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rescale-labs/taskorc/internal/models"
)

// RenameStage applies filename-prefix, `www.`-prefix removal, and an
// optional user-defined regex substitution, then updates the listener's
// name (spec §4.4 item 13). It always runs — renaming at least updates
// the listener's name to the final on-disk basename even with no flags
// set — so Enabled always returns true; individual transformations below
// are each separately gated on their own option.
type RenameStage struct {
	// Prefix/StripWWW are set by whoever builds the stage, not taken from
	// PipelineOptions (spec §3 UserSettings.prefix). New() leaves both
	// unset, so the pipeline it builds applies neither.
	Prefix   string
	StripWWW bool
}

func (s *RenameStage) Name() string { return "rename-substitute" }

func (s *RenameStage) Enabled(opts models.PipelineOptions) bool { return true }

func (s *RenameStage) Run(ctx context.Context, pc *Context) (string, error) {
	dir := filepath.Dir(pc.Path)
	name := filepath.Base(pc.Path)

	if s.StripWWW {
		name = stripWWWPrefix(name)
	}
	if s.Prefix != "" {
		name = s.Prefix + name
	}
	if pat := pc.Listener.Config.Pipeline.NameSubstitution; pat != "" {
		substituted, err := applySubstitution(name, pat)
		if err != nil {
			return "", err
		}
		name = substituted
	}

	newPath := filepath.Join(dir, name)
	if newPath != pc.Path {
		if err := os.Rename(pc.Path, newPath); err != nil {
			return "", err
		}
	}

	pc.Listener.SetName(name)
	return newPath, nil
}

func stripWWWPrefix(name string) string {
	return strings.TrimPrefix(name, "www.")
}

// substitutionRe parses the "pattern/replacement" form used by spec
// §4.7's `-ns <str>` flag.
var substitutionRe = regexp.MustCompile(`^(.*?)/(.*)$`)

// applySubstitution applies a "pattern/replacement" regex substitution.
// Applying the same already-substituted pattern twice is a no-op (spec §8
// idempotence property) because regexp.ReplaceAll only rewrites text that
// still matches pattern.
func applySubstitution(name, pat string) (string, error) {
	m := substitutionRe.FindStringSubmatch(pat)
	if m == nil {
		return name, nil
	}
	re, err := regexp.Compile(m[1])
	if err != nil {
		return "", err
	}
	return re.ReplaceAllString(name, m[2]), nil
}
