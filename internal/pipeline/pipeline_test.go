package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/models"
)

type fakeStage struct {
	name    string
	enabled bool
	calls   *int
	path    string
	err     error
}

func (f *fakeStage) Name() string                                  { return f.name }
func (f *fakeStage) Enabled(opts models.PipelineOptions) bool      { return f.enabled }
func (f *fakeStage) Run(ctx context.Context, pc *Context) (string, error) {
	*f.calls++
	return f.path, f.err
}

func newTestListener(t *testing.T) *models.Listener {
	t.Helper()
	cfg := &models.TaskConfig{ID: "abc1234567"}
	return models.NewListener(cfg)
}

func TestPipelineSkipsDisabledStages(t *testing.T) {
	var calls int
	p := &Pipeline{stages: []Stage{
		&fakeStage{name: "a", enabled: false, calls: &calls},
		&fakeStage{name: "b", enabled: true, calls: &calls, path: "/out/b"},
	}}

	pc := &Context{Listener: newTestListener(t), Path: "/in"}
	err := p.Run(context.Background(), pc)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "/out/b", pc.Path)
}

func TestPipelineStopsOnCancellation(t *testing.T) {
	var calls int
	l := newTestListener(t)
	l.Cancel()

	p := &Pipeline{stages: []Stage{
		&fakeStage{name: "a", enabled: true, calls: &calls},
	}}
	pc := &Context{Listener: l, Path: "/in"}
	err := p.Run(context.Background(), pc)
	require.NoError(t, err)
	require.Equal(t, 0, calls)
}

func TestPipelineAbortsOnStageError(t *testing.T) {
	var calls int
	l := newTestListener(t)
	l.OnUploadError = func(reason string) {}

	p := &Pipeline{stages: []Stage{
		&fakeStage{name: "a", enabled: true, calls: &calls, err: errBoom},
		&fakeStage{name: "b", enabled: true, calls: &calls},
	}}
	pc := &Context{Listener: l, Path: "/in"}
	err := p.Run(context.Background(), pc)
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

var errBoom = errBoomT{}

type errBoomT struct{}

func (errBoomT) Error() string { return "boom" }
