// Package progress renders Status Registry snapshots for the local
// terminal surfaces: a single live bar for the admin CLI's one-shot task
// submission (`cmd/orchestrator submit`), and a one-shot multi-row render
// of the whole queue (`cmd/orchestrator queue`). The chat-facing status
// message (spec §4.9's per-chat aggregator) is the external chat
// transport's concern; this package only drives local terminal output,
// grounded on the teacher's internal/progress bar-rendering package.
package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/rescale-labs/taskorc/internal/models"
)

// Bar wraps a single progressbar/v3 bar tracking one task's Processed/Total
// (spec §4.9 ProgressSnapshot), used while `submit` polls a task to
// completion.
type Bar struct {
	inner *progressbar.ProgressBar
}

// NewBar constructs a bar labeled with name; total is updated lazily via
// Update once the driver reports a known size.
func NewBar(name string) *Bar {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &Bar{inner: bar}
}

// Update applies one StatusEntry snapshot to the bar.
func (b *Bar) Update(entry models.StatusEntry) {
	if entry.Total > 0 {
		b.inner.ChangeMax64(entry.Total)
	}
	_ = b.inner.Set64(entry.Processed)
}

// Finish marks the bar complete and releases the terminal line.
func (b *Bar) Finish() { _ = b.inner.Finish() }

// RenderQueue draws a one-shot mpb multi-bar snapshot of every entry in
// entries (spec §4.2 Snapshot) to out, used by `cmd/orchestrator queue`.
// Each bar is drawn at its current percentage and immediately stopped,
// since this is a point-in-time render rather than a live stream.
func RenderQueue(entries []models.StatusEntry, out io.Writer) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "queue is empty")
		return
	}

	p := mpb.New(mpb.WithOutput(out))
	for _, entry := range entries {
		total := entry.Total
		if total <= 0 {
			total = 1
		}
		name := fmt.Sprintf("%s [%s]", entry.Name, entry.Phase)
		bar := p.AddBar(total,
			mpb.PrependDecorators(decor.Name(name)),
			mpb.AppendDecorators(decor.Percentage()),
		)
		// This is a point-in-time render, not a live stream: set each
		// bar to its recorded position and abort it (without dropping it)
		// so p.Wait() below returns immediately instead of waiting on
		// further progress that will never arrive.
		bar.SetCurrent(entry.Processed)
		bar.Abort(false)
	}
	p.Wait()
}
