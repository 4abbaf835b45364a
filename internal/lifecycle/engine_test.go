package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/drivers"
	"github.com/rescale-labs/taskorc/internal/events"
	"github.com/rescale-labs/taskorc/internal/logging"
	"github.com/rescale-labs/taskorc/internal/models"
	"github.com/rescale-labs/taskorc/internal/pipeline"
	"github.com/rescale-labs/taskorc/internal/queue"
	"github.com/rescale-labs/taskorc/internal/registry"
	"github.com/rescale-labs/taskorc/internal/workdir"
)

type fakeDriver struct {
	name       string
	fail       bool
	failMsg    string
	cancelled  chan struct{}
}

func (f *fakeDriver) Name() string         { return f.name }
func (f *fakeDriver) SupportsSelect() bool { return false }
func (f *fakeDriver) CommitSelection(drivers.Handle, []int) error { return nil }

func (f *fakeDriver) Begin(ctx context.Context, link, dest string, opts drivers.BeginOptions, listener *models.Listener) (drivers.Handle, error) {
	listener.OnDownloadStart()
	go func() {
		if f.fail {
			listener.OnDownloadError(f.failMsg)
			return
		}
		select {
		case <-ctx.Done():
			if f.cancelled != nil {
				close(f.cancelled)
			}
			listener.OnDownloadError("cancelled")
		case <-time.After(10 * time.Millisecond):
			listener.OnDownloadComplete()
		}
	}()
	return "handle-1", nil
}

func (f *fakeDriver) Cancel(drivers.Handle) error { return nil }

func (f *fakeDriver) Poll(drivers.Handle) (drivers.ProgressSnapshot, error) {
	return drivers.ProgressSnapshot{State: drivers.StateActive}, nil
}

type fakeSink struct {
	fail bool
}

func (f *fakeSink) Name() string { return "fake-sink" }

func (f *fakeSink) Upload(ctx context.Context, path string, opts drivers.UploadOptions, listener *models.Listener) (models.UploadResult, error) {
	if f.fail {
		result := models.UploadResult{}
		listener.OnUploadError("upload failed")
		return result, assertErr
	}
	result := models.UploadResult{Link: "https://example.test/x", Files: 1}
	listener.OnUploadComplete(result)
	return result, nil
}

var assertErr = &uploadFailedErr{}

type uploadFailedErr struct{}

func (*uploadFailedErr) Error() string { return "upload failed" }

func newTestEngine(t *testing.T, driver drivers.Driver, sink drivers.Sink) *Engine {
	t.Helper()
	dir := t.TempDir()
	base, err := workdir.NewBase(dir)
	require.NoError(t, err)

	reg := drivers.NewRegistry()
	reg.Register(driver)

	sinks := map[string]drivers.Sink{"dest": sink}
	q := queue.NewController(1, 1, false)
	status := registry.New()
	bus := events.NewEventBus(64)
	log := logging.NewDefaultWorkerLogger()

	return New(reg, sinks, q, status, base, pipeline.New(), bus, log)
}

func TestEngineHappyPath(t *testing.T) {
	driver := &fakeDriver{name: "fake"}
	sink := &fakeSink{}
	e := newTestEngine(t, driver, sink)

	cfg := &models.TaskConfig{
		Kind:          models.KindMirror,
		DriverName:    "fake",
		Link:          "http://example.test/file",
		UpDestination: "dest",
		NameHint:      "file.bin",
	}
	id, err := e.Submit(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.tasksMu.Lock()
		_, still := e.tasks[id]
		e.tasksMu.Unlock()
		if !still {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.tasksMu.Lock()
	_, still := e.tasks[id]
	e.tasksMu.Unlock()
	assert.False(t, still, "task should have reached a terminal state")
	assert.False(t, e.Status.Contains(id), "finalized task must be removed from the status registry (spec invariant 1)")
}

func TestEngineRejectsUnknownDriver(t *testing.T) {
	e := newTestEngine(t, &fakeDriver{name: "fake"}, &fakeSink{})
	cfg := &models.TaskConfig{DriverName: "does-not-exist", Link: "x"}
	_, err := e.Submit(cfg)
	require.Error(t, err)
}

func TestEngineDuplicateRejected(t *testing.T) {
	driver := &fakeDriver{name: "fake"}
	e := newTestEngine(t, driver, &fakeSink{})
	cfg := &models.TaskConfig{ID: "dup1", DriverName: "fake", Link: "x", UpDestination: "dest"}
	_, err := e.Submit(cfg)
	require.NoError(t, err)

	_, err = e.Submit(&models.TaskConfig{ID: "dup1", DriverName: "fake", Link: "x"})
	require.Error(t, err)
}

func TestEngineCancelDuringDownload(t *testing.T) {
	cancelled := make(chan struct{})
	driver := &fakeDriver{name: "fake", cancelled: cancelled}
	e := newTestEngine(t, driver, &fakeSink{})

	cfg := &models.TaskConfig{DriverName: "fake", Link: "x", UpDestination: "dest"}
	id, err := e.Submit(cfg)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	e.Cancel(id)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("driver never observed cancellation")
	}
}
