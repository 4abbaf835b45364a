// Package pipeline implements the 13-stage media pipeline (spec §4.4): a
// fixed, ordered sequence of optional transformations applied to the
// downloaded payload between download-complete and upload-start. Each
// stage is skipped unless its flag is set, runs strictly sequentially
// (spec §5), and checks listener.IsCancelled() at every boundary.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rescale-labs/taskorc/internal/cancel"
	"github.com/rescale-labs/taskorc/internal/events"
	"github.com/rescale-labs/taskorc/internal/logging"
	"github.com/rescale-labs/taskorc/internal/models"
	"github.com/rescale-labs/taskorc/internal/taskerr"
)

// Stage is one of the 13 ordered pipeline steps (spec §4.4). Run returns
// a new output path, or "" when the working path is unchanged; Pipeline.Run
// then updates pc.Path. Pipeline.Run only invokes Run on stages whose
// Enabled reports true; most stages do not re-check their flag inside Run.
type Stage interface {
	// Name identifies the stage for logging and PipelineStageEvent.
	Name() string
	// Enabled reports whether opts requests this stage run at all.
	Enabled(opts models.PipelineOptions) bool
	// Run executes the stage against ctx, returning the (possibly
	// replaced) working path on success.
	Run(ctx context.Context, pc *Context) (newPath string, err error)
}

// Context is the per-task state a Stage operates on: the listener (for
// up_path / name / cancellation), the resolved PipelineOptions, and the
// shared collaborators (mediatool runner is invoked directly by stages;
// no separate handle is threaded here since each stage owns its own
// subprocess lifetime).
type Context struct {
	Listener *models.Listener
	Token    *cancel.Token
	Events   *events.EventBus
	Log      *logging.Logger

	// Path is the current working path: a file or a directory tree,
	// depending on the stage. Stages read/write this field via the
	// Pipeline driver, not directly on Listener, so a dry-run or test
	// harness can substitute a Context without a real Listener.
	Path string

	// WorkingDir is the task's acquired working directory (spec §6),
	// used by stages that must write siblings (e.g. `<name>_ss/`).
	WorkingDir string
}

// Pipeline is the ordered, fixed stage list (spec §4.4 items 1-13).
type Pipeline struct {
	stages []Stage
}

// New builds the canonical 13-stage pipeline in contractual order.
func New() *Pipeline {
	return &Pipeline{
		stages: []Stage{
			&JoinStage{},
			&ExtractStage{},
			&FFmpegCmdsStage{},
			&ScreenshotsStage{},
			&ConvertStage{},
			&SampleVideoStage{},
			&MetadataStage{},
			&ThumbnailStage{},
			&CompressStage{},
			&WatermarkStage{},
			&ExtensionFilterStage{},
			&SplitStage{},
			&RenameStage{},
		},
	}
}

// Run executes every enabled stage in order against pc, stopping silently
// (nil error) if the listener is cancelled between stages, and aborting
// with a *taskerr.TaskError of KindPipeline on the first stage failure.
//
// On success, pc.Listener's name and path reflect the final transformed
// output; RenameStage is always last and is the only stage that updates
// listener.name (spec §4.4 item 13).
func (p *Pipeline) Run(ctx context.Context, pc *Context) error {
	for _, stage := range p.stages {
		if pc.Listener.IsCancelled() {
			return nil
		}
		if !stage.Enabled(pc.Listener.Config.Pipeline) {
			continue
		}

		if pc.Events != nil {
			pc.Events.Publish(&events.PipelineStageEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventPipelineStageStart},
				TaskID:    pc.Listener.Config.ID,
				Stage:     stage.Name(),
			})
		}

		newPath, err := stage.Run(ctx, pc)

		if pc.Events != nil {
			pc.Events.Publish(&events.PipelineStageEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventPipelineStageDone},
				TaskID:    pc.Listener.Config.ID,
				Stage:     stage.Name(),
				Err:       err,
			})
		}

		if err != nil {
			reason := fmt.Sprintf("stage %s failed", stage.Name())
			pc.Listener.OnUploadError(reason)
			return taskerr.Pipeline(reason, err)
		}

		if newPath != "" {
			pc.Path = newPath
			pc.Listener.SetCurrentPath(newPath)
		}

		if pc.Listener.IsCancelled() {
			return nil
		}
	}
	return nil
}
