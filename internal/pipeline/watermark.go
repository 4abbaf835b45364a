package pipeline

import (
	"context"
	"fmt"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"
)

// watermarkPositions maps spec §4.4 item 10's position enum to an ffmpeg
// overlay/drawtext coordinate expression.
var watermarkPositions = map[string]string{
	"Top-Left":     "10:10",
	"Top-Right":    "main_w-overlay_w-10:10",
	"Bottom-Left":  "10:main_h-overlay_h-10",
	"Bottom-Right": "main_w-overlay_w-10:main_h-overlay_h-10",
	"Center":       "(main_w-overlay_w)/2:(main_h-overlay_h)/2",
}

var drawtextPositions = map[string]string{
	"Top-Left":     "x=10:y=10",
	"Top-Right":    "x=w-tw-10:y=10",
	"Bottom-Left":  "x=10:y=h-th-10",
	"Bottom-Right": "x=w-tw-10:y=h-th-10",
	"Center":       "x=(w-tw)/2:y=(h-th)/2",
}

// WatermarkStage overlays either text or an image (spec §4.4 item 10).
// Only the dict-form WatermarkSpec is canonical (spec §9 open question);
// no bare-string form reaches this stage.
type WatermarkStage struct{}

func (s *WatermarkStage) Name() string { return "watermark" }

func (s *WatermarkStage) Enabled(opts models.PipelineOptions) bool { return opts.Watermark.Enabled }

func (s *WatermarkStage) Run(ctx context.Context, pc *Context) (string, error) {
	wm := pc.Listener.Config.Pipeline.Watermark
	out := stripExt(pc.Path) + "_wm" + extOf(pc.Path)

	var argv []string
	if wm.ImageRef != "" {
		pos, ok := watermarkPositions[wm.Position]
		if !ok {
			pos = watermarkPositions["Bottom-Right"]
		}
		argv = []string{
			"ffmpeg", "-i", pc.Path, "-i", wm.ImageRef,
			"-filter_complex", fmt.Sprintf("overlay=%s", pos),
			"-codec:a", "copy", out,
		}
	} else {
		pos, ok := drawtextPositions[wm.Position]
		if !ok {
			pos = drawtextPositions["Bottom-Right"]
		}
		size := wm.Size
		if size <= 0 {
			size = 24
		}
		color := wm.Color
		if color == "" {
			color = "white"
		}
		filter := fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s:%s", wm.Text, size, color, pos)
		argv = []string{
			"ffmpeg", "-i", pc.Path,
			"-vf", filter,
			"-codec:a", "copy", out,
		}
	}

	code, _, err := mediatool.Run(ctx, mediatool.RewriteFFmpegArgv(argv), nil)
	if err != nil {
		return "", fmt.Errorf("watermark: ffmpeg: %w", err)
	}
	if code != 0 {
		return "", fmt.Errorf("watermark: ffmpeg exited %d", code)
	}
	return out, nil
}
