package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// partRe matches multi-volume archive parts: name.001, name.002, ... as
// produced by 7z/rar/split. Spec §4.4 stage 1 names the pattern
// `*.002, *.003, ...`; part 001 (or no numeric suffix at all) is the
// first-part trigger checked by ExtractStage instead.
var partRe = regexp.MustCompile(`\.(\d{3})$`)

// JoinStage reassembles a directory of numbered parts into the original
// file via the 7z-equivalent subprocess (spec §4.4 item 1).
type JoinStage struct{}

func (s *JoinStage) Name() string { return "join" }

func (s *JoinStage) Enabled(opts models.PipelineOptions) bool { return opts.Join }

func (s *JoinStage) Run(ctx context.Context, pc *Context) (string, error) {
	info, err := os.Stat(pc.Path)
	if err != nil {
		return "", fmt.Errorf("join: stat %s: %w", pc.Path, err)
	}
	if !info.IsDir() {
		return "", nil // nothing to join
	}

	entries, err := os.ReadDir(pc.Path)
	if err != nil {
		return "", fmt.Errorf("join: read dir %s: %w", pc.Path, err)
	}

	groups := map[string][]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := partRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		base := e.Name()[:len(e.Name())-len(m[0])]
		groups[base] = append(groups[base], filepath.Join(pc.Path, e.Name()))
	}

	if len(groups) == 0 {
		return "", nil // no part series present; pass through unchanged
	}

	var lastOut string
	for base, parts := range groups {
		sort.Strings(parts)
		first := parts[0]
		argv := []string{"7z", "x", "-y", fmt.Sprintf("-o%s", pc.Path), first}
		code, _, err := mediatool.Run(ctx, argv, nil)
		if err != nil {
			return "", fmt.Errorf("join: 7z %s: %w", base, err)
		}
		if code != 0 {
			return "", fmt.Errorf("join: 7z %s exited %d", base, code)
		}
		for _, p := range parts {
			_ = os.Remove(p)
		}
		lastOut = filepath.Join(pc.Path, base)
	}

	if len(groups) == 1 {
		return lastOut, nil
	}
	return "", nil
}
