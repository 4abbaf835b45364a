package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// ConvertStage re-encodes when the source extension differs from the
// requested one (spec §4.4 item 5): convert-audio and convert-video share
// one stage since both follow the same stream-copy-then-retry policy.
type ConvertStage struct{}

func (s *ConvertStage) Name() string { return "convert-audio-video" }

func (s *ConvertStage) Enabled(opts models.PipelineOptions) bool {
	return opts.ConvertAudioExt != "" || opts.ConvertVideoExt != ""
}

func (s *ConvertStage) Run(ctx context.Context, pc *Context) (string, error) {
	opts := pc.Listener.Config.Pipeline
	current := pc.Path

	if opts.ConvertVideoExt != "" && !strings.EqualFold(extOf(current), "."+opts.ConvertVideoExt) {
		out, err := convertOne(ctx, current, opts.ConvertVideoExt, true)
		if err != nil {
			return "", err
		}
		current = out
	}

	if opts.ConvertAudioExt != "" && !strings.EqualFold(extOf(current), "."+opts.ConvertAudioExt) {
		out, err := convertOne(ctx, current, opts.ConvertAudioExt, false)
		if err != nil {
			return "", err
		}
		current = out
	}

	return current, nil
}

// convertOne attempts a stream-copy convert first; on subprocess failure
// it retries once with the explicit codec set named in spec §4.4 item 5:
// H.264/AAC video, `mov_text` subtitles for mp4, `ass` for mkv, `copy`
// otherwise.
func convertOne(ctx context.Context, input, targetExt string, video bool) (string, error) {
	out := stripExt(input) + "." + targetExt

	copyArgv := mediatool.RewriteFFmpegArgv([]string{
		"ffmpeg", "-i", input, "-c", "copy", out,
	})
	code, _, err := mediatool.Run(ctx, copyArgv, nil)
	if err == nil && code == 0 {
		return out, nil
	}

	subCodec := "copy"
	switch strings.ToLower(targetExt) {
	case "mp4":
		subCodec = "mov_text"
	case "mkv":
		subCodec = "ass"
	}

	explicitArgv := []string{"ffmpeg", "-i", input}
	if video {
		explicitArgv = append(explicitArgv, "-c:v", "libx264", "-c:a", "aac", "-c:s", subCodec)
	} else {
		explicitArgv = append(explicitArgv, "-c:a", "aac", "-c:v", "copy")
	}
	explicitArgv = append(explicitArgv, out)

	code, _, err = mediatool.Run(ctx, mediatool.RewriteFFmpegArgv(explicitArgv), nil)
	if err != nil {
		return "", fmt.Errorf("convert: explicit-codec retry for %s: %w", input, err)
	}
	if code != 0 {
		return "", fmt.Errorf("convert: explicit-codec retry for %s exited %d", input, code)
	}
	return out, nil
}
