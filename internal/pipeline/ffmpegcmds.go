package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// FFmpegVars is the variable store user command templates are resolved
// against (spec §4.4 item 3). "{output}" is always auto-generated as a
// sibling of the input with a counter suffix, so a template never has to
// hardcode an output path.
type FFmpegVars struct {
	Input  string
	Output string
	Name   string
	Folder string
}

// resolveTemplate substitutes {input}, {output}, {name}, {folder} tokens
// in a user-supplied command template.
func resolveTemplate(tmpl string, v FFmpegVars) string {
	r := strings.NewReplacer(
		"{input}", v.Input,
		"{output}", v.Output,
		"{name}", v.Name,
		"{folder}", v.Folder,
	)
	return r.Replace(tmpl)
}

// FFmpegCmdsStage runs each user-supplied command template in order;
// each may produce a new output file that replaces the current working
// path (spec §4.4 item 3).
type FFmpegCmdsStage struct{}

func (s *FFmpegCmdsStage) Name() string { return "ffmpeg-cmds" }

func (s *FFmpegCmdsStage) Enabled(opts models.PipelineOptions) bool {
	return len(opts.FFmpegCmds) > 0
}

func (s *FFmpegCmdsStage) Run(ctx context.Context, pc *Context) (string, error) {
	current := pc.Path
	for i, tmpl := range pc.Listener.Config.Pipeline.FFmpegCmds {
		if pc.Listener.IsCancelled() {
			return current, nil
		}
		output := fmt.Sprintf("%s.cmd%d%s", stripExt(current), i, extOf(current))
		vars := FFmpegVars{
			Input:  current,
			Output: output,
			Name:   pc.Listener.Name(),
			Folder: pc.WorkingDir,
		}
		resolved := resolveTemplate(tmpl, vars)
		argv := mediatool.RewriteFFmpegArgv(splitArgv(resolved))

		code, _, err := mediatool.Run(ctx, argv, nil)
		if err != nil {
			return "", fmt.Errorf("ffmpeg-cmds[%d]: %w", i, err)
		}
		if code != 0 {
			return "", fmt.Errorf("ffmpeg-cmds[%d]: exited %d", i, code)
		}
		current = output
	}
	return current, nil
}

// splitArgv does simple whitespace tokenization of a resolved command
// template. Templates are operator-authored (spec §4.7 `-h`-style flags
// feed structured fields, not free text), so this deliberately does not
// implement shell quoting beyond plain space-splitting.
func splitArgv(s string) []string {
	return strings.Fields(s)
}

func stripExt(p string) string {
	ext := extOf(p)
	return p[:len(p)-len(ext)]
}

func extOf(p string) string {
	for i := len(p) - 1; i >= 0 && p[i] != '/'; i-- {
		if p[i] == '.' {
			return p[i:]
		}
	}
	return ""
}
