package pipeline

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// ThumbnailStage attaches an image as a cover; MIME is inferred from
// extension, and the container becomes `.mkv` if not already (spec §4.4
// item 8).
type ThumbnailStage struct{}

func (s *ThumbnailStage) Name() string { return "embed-thumbnail" }

func (s *ThumbnailStage) Enabled(opts models.PipelineOptions) bool {
	return opts.ThumbnailRef != ""
}

func (s *ThumbnailStage) Run(ctx context.Context, pc *Context) (string, error) {
	thumbPath := pc.Listener.Config.Pipeline.ThumbnailRef
	mimeType := mime.TypeByExtension(extOf(thumbPath))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	outExt := ".mkv"
	if strings.EqualFold(extOf(pc.Path), ".mkv") {
		outExt = extOf(pc.Path)
	}
	out := stripExt(pc.Path) + "_thumb" + outExt

	argv := []string{
		"ffmpeg", "-i", pc.Path, "-i", thumbPath,
		"-map", "0", "-map", "1",
		"-c", "copy",
		"-disposition:v:1", "attached_pic",
		"-metadata:s:v:1", "mimetype=" + mimeType,
		out,
	}

	code, _, err := mediatool.Run(ctx, mediatool.RewriteFFmpegArgv(argv), nil)
	if err != nil {
		return "", fmt.Errorf("embed-thumbnail: ffmpeg: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("embed-thumbnail: ffmpeg exited %d", code)
	}
	return out, nil
}
