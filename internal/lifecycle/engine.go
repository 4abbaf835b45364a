// Package lifecycle implements the Task Lifecycle State Machine (spec
// §4.5): Created -> AdmissionCheck -> WaitingDL|Downloading ->
// PipelineProcessing -> WaitingUP|Uploading -> Finalized, with error
// transitions to Failed and user-cancel transitions to Cancelled from any
// non-terminal state. It is the component that wires together the
// registry, queue, pipeline, and backend drivers spec §1 calls "the
// core" — grounded on the teacher's internal/core orchestration pattern
// (a long-lived engine object driving short-lived per-item workers).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rescale-labs/taskorc/internal/cancel"
	"github.com/rescale-labs/taskorc/internal/drivers"
	"github.com/rescale-labs/taskorc/internal/events"
	"github.com/rescale-labs/taskorc/internal/logging"
	"github.com/rescale-labs/taskorc/internal/models"
	"github.com/rescale-labs/taskorc/internal/pipeline"
	"github.com/rescale-labs/taskorc/internal/queue"
	"github.com/rescale-labs/taskorc/internal/registry"
	"github.com/rescale-labs/taskorc/internal/taskerr"
	"github.com/rescale-labs/taskorc/internal/workdir"
)

// State is a task's position in the lifecycle state machine.
type State string

const (
	StateCreated            State = "Created"
	StateAdmissionCheck     State = "AdmissionCheck"
	StateWaitingDL          State = "WaitingDL"
	StateDownloading        State = "Downloading"
	StatePipelineProcessing State = "PipelineProcessing"
	StateWaitingUP          State = "WaitingUP"
	StateUploading          State = "Uploading"
	StateFinalized          State = "Finalized"
	StateFailed             State = "Failed"
	StateCancelled          State = "Cancelled"
)

func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed || s == StateCancelled
}

// Journal is the subset of the Persistence Adapter the lifecycle needs:
// recording in-flight tasks so a crash can be recovered from (spec §6).
// internal/persistence implements this; nil is valid and simply disables
// journaling.
type Journal interface {
	RecordTask(cfg models.TaskConfig) error
	ForgetTask(taskID string) error
}

// Notifier delivers the chat-facing completion/failure notices (spec §4.5
// on_upload_complete / on finalize). The chat-protocol client that
// actually sends messages is an external collaborator (spec §3
// out-of-scope); the lifecycle only depends on this narrow interface.
type Notifier interface {
	NotifyComplete(cfg models.TaskConfig, result models.UploadResult)
	NotifyFailed(cfg models.TaskConfig, err error)
	NotifyCancelled(cfg models.TaskConfig)
}

// Engine owns every process-wide singleton the lifecycle needs and runs
// one goroutine per admitted task. Exactly one Engine exists per process.
type Engine struct {
	Drivers  *drivers.Registry
	Sinks    map[string]drivers.Sink
	Queue    *queue.Controller
	Status   *registry.Registry
	Base     *workdir.Base
	Pipeline *pipeline.Pipeline
	Events   *events.EventBus
	Log      *logging.Logger
	Journal  Journal
	Notifier Notifier

	sameDirMu sync.Mutex
	sameDir   map[string]*models.SameDirGroup

	tasksMu sync.Mutex
	tasks   map[string]*task
}

// New constructs an Engine. Sinks maps an upload-destination kind (spec
// §4.7 -up) to the Sink that serves it; callers populate it with the
// concrete driver packages they've wired (filehost, syncdaemon, etc).
func New(driverRegistry *drivers.Registry, sinks map[string]drivers.Sink, q *queue.Controller, status *registry.Registry, base *workdir.Base, pl *pipeline.Pipeline, bus *events.EventBus, log *logging.Logger) *Engine {
	return &Engine{
		Drivers:  driverRegistry,
		Sinks:    sinks,
		Queue:    q,
		Status:   status,
		Base:     base,
		Pipeline: pl,
		Events:   bus,
		Log:      log,
		sameDir:  make(map[string]*models.SameDirGroup),
		tasks:    make(map[string]*task),
	}
}

// task bundles one admission's mutable lifecycle state. Not exported:
// callers interact with the Engine by task id.
type task struct {
	cfg      *models.TaskConfig
	listener *models.Listener
	token    *cancel.Token
	dir      *workdir.Dir
	group    *models.SameDirGroup
	isOwner  bool

	mu    sync.Mutex
	state State

	dlResult chan error
	upResult chan error
	upValue  models.UploadResult
}

// Submit performs the synchronous admission check (spec §4.5
// AdmissionCheck: duplicate, stopped, unknown driver, select-mode
// unsupported) and, on success, starts the task's lifecycle goroutine.
// It returns immediately; the goroutine drives the task to a terminal
// state asynchronously.
func (e *Engine) Submit(cfg *models.TaskConfig) (string, error) {
	if cfg.ID == "" {
		cfg.ID = models.NewTaskID()
	}
	if e.Status.Contains(cfg.ID) {
		return "", taskerr.ErrDuplicate
	}
	driver, ok := e.Drivers.Get(cfg.DriverName)
	if !ok {
		return "", taskerr.AdmissionReject(fmt.Sprintf("no driver registered for %q", cfg.DriverName))
	}
	if cfg.Select && !driver.SupportsSelect() {
		return "", taskerr.AdmissionReject(fmt.Sprintf("%s does not support select-mode", driver.Name()))
	}
	if e.Queue.Download.Stopped() {
		return "", taskerr.ErrStopped
	}
	if cfg.UpDestination != "" {
		if _, ok := e.Sinks[cfg.UpDestination]; !ok {
			return "", taskerr.AdmissionReject(fmt.Sprintf("no sink registered for %q", cfg.UpDestination))
		}
	}

	listener := models.NewListener(cfg)
	t := &task{
		cfg:      cfg,
		listener: listener,
		token:    cancel.New(context.Background()),
		state:    StateCreated,
		dlResult: make(chan error, 1),
		upResult: make(chan error, 1),
	}
	listener.OnDownloadStart = func() {}
	listener.OnDownloadComplete = func() { t.dlResult <- nil }
	listener.OnDownloadError = func(reason string) { t.dlResult <- errors.New(reason) }
	listener.OnUploadComplete = func(result models.UploadResult) {
		t.mu.Lock()
		t.upValue = result
		t.mu.Unlock()
		t.upResult <- nil
	}
	listener.OnUploadError = func(reason string) { t.upResult <- errors.New(reason) }

	e.tasksMu.Lock()
	e.tasks[cfg.ID] = t
	e.tasksMu.Unlock()

	e.Status.Put(cfg.ID, models.StatusEntry{
		TaskID: cfg.ID, Phase: models.PhaseQueuedDL, Driver: driver.Name(),
		Name: cfg.NameHint, Size: cfg.SizeHint,
	})
	if e.Journal != nil {
		_ = e.Journal.RecordTask(*cfg)
	}

	go e.run(t, driver)
	return cfg.ID, nil
}

// Cancel requests cancellation of taskID from any non-terminal state
// (spec §4.5). A no-op if the id is unknown or already terminal.
func (e *Engine) Cancel(taskID string) {
	e.tasksMu.Lock()
	t, ok := e.tasks[taskID]
	e.tasksMu.Unlock()
	if !ok {
		return
	}
	t.token.Cancel(cancel.ReasonUser)
	t.listener.Cancel()
}

// StopAll stops both queue gates, cancelling every waiting (not yet
// active) task and letting in-flight ones observe Stopped on their next
// gate interaction (spec §4.3 stop_all).
func (e *Engine) StopAll() {
	e.Queue.StopAll()
}

func (e *Engine) transition(t *task, s State) {
	t.mu.Lock()
	old := t.state
	t.state = s
	t.mu.Unlock()
	if e.Events != nil {
		e.Events.PublishTaskStateChange(t.cfg.ID, t.cfg.OwnerID, t.cfg.ChatID, string(old), string(s), "")
	}
}

func (e *Engine) run(t *task, driver drivers.Driver) {
	e.transition(t, StateAdmissionCheck)

	dir, err := e.Base.Acquire(t.cfg.ID, t.cfg.FolderName)
	if err != nil {
		e.finish(t, StateFailed, taskerr.Fatal("acquire working dir", err))
		return
	}
	t.dir = dir
	t.listener.SetCurrentPath(dir.Path)

	if t.cfg.FolderName != "" {
		t.group, t.isOwner = e.joinSameDir(t.cfg.FolderName, t.cfg.ID)
	} else {
		t.isOwner = true
	}

	if err := e.runDownload(t, driver); err != nil {
		if taskerr.IsCancelled(err) {
			e.finish(t, StateCancelled, err)
		} else {
			e.finish(t, StateFailed, err)
		}
		return
	}

	if err := e.runPipeline(t); err != nil {
		if taskerr.IsCancelled(err) {
			e.finish(t, StateCancelled, err)
		} else {
			e.finish(t, StateFailed, err)
		}
		return
	}

	if !t.isOwner {
		// Sibling's bytes are part of the owner's combined tree; its own
		// upload step is a no-op (spec §4.5 same-directory handling).
		e.finish(t, StateFinalized, nil)
		return
	}

	if err := e.runUpload(t); err != nil {
		if taskerr.IsCancelled(err) {
			e.finish(t, StateCancelled, err)
		} else {
			e.finish(t, StateFailed, err)
		}
		return
	}

	e.finish(t, StateFinalized, nil)
}

func (e *Engine) runDownload(t *task, driver drivers.Driver) error {
	e.transition(t, StateWaitingDL)
	e.Status.Put(t.cfg.ID, withPhase(t.statusBase(driver.Name()), models.PhaseQueuedDL))

	admitted, wake, err := e.Queue.Download.Admit(t.cfg.ID)
	if err != nil {
		return taskerr.AdmissionReject(err.Error())
	}
	if !admitted {
		select {
		case <-wake:
			if e.Queue.Download.Stopped() {
				return taskerr.Cancelled()
			}
		case <-t.token.Done():
			return taskerr.Cancelled()
		}
	}
	if e.Events != nil {
		e.Events.PublishQueueEvent("download", t.cfg.ID, "admitted")
	}

	e.transition(t, StateDownloading)
	e.Status.Put(t.cfg.ID, withPhase(t.statusBase(driver.Name()), models.PhaseDownloading))

	dest := filepath.Join(t.dir.Path, downloadFileName(t.cfg))
	beginOpts := drivers.BeginOptions{
		Select:       t.cfg.Select,
		Seed:         t.cfg.Seed,
		HTTPAuthUser: t.cfg.HTTPAuthUser,
		HTTPAuthPass: t.cfg.HTTPAuthPass,
		HTTPHeaders:  t.cfg.HTTPHeaders,
		RcloneFlags:  t.cfg.RcloneFlags,
	}
	handle, err := driver.Begin(t.token.Context(), t.cfg.Link, dest, beginOpts, t.listener)
	if err != nil {
		e.Queue.Download.Release(t.cfg.ID)
		return taskerr.Download("begin failed", err)
	}

	var dlErr error
	select {
	case dlErr = <-t.dlResult:
	case <-t.token.Done():
		_ = driver.Cancel(handle)
		<-t.dlResult // driver guarantees exactly one terminal callback
		dlErr = taskerr.Cancelled()
	}

	e.Queue.Download.Release(t.cfg.ID)
	if e.Events != nil {
		e.Events.PublishQueueEvent("download", t.cfg.ID, "released")
	}

	if dlErr != nil {
		if t.token.Cancelled() {
			return taskerr.Cancelled()
		}
		return taskerr.Download("backend failed", dlErr)
	}
	return nil
}

func (e *Engine) runPipeline(t *task) error {
	e.transition(t, StatePipelineProcessing)
	e.Status.Put(t.cfg.ID, withPhase(t.statusBase(""), models.PhaseProcessing))

	if t.group != nil {
		if t.isOwner {
			defer t.group.SignalReady()
		} else {
			select {
			case <-t.group.WaitReady():
			case <-t.token.Done():
				return taskerr.Cancelled()
			}
			return nil // owner already ran the pipeline over the shared tree
		}
	}

	pc := &pipeline.Context{
		Listener:   t.listener,
		Token:      t.token,
		Events:     e.Events,
		Log:        e.Log,
		Path:       t.listener.CurrentPath(),
		WorkingDir: t.dir.Path,
	}
	if err := e.Pipeline.Run(t.token.Context(), pc); err != nil {
		if t.group != nil {
			t.group.Fail(t.cfg.ID)
		}
		return err
	}
	if t.listener.IsCancelled() {
		return taskerr.Cancelled()
	}
	return nil
}

func (e *Engine) runUpload(t *task) error {
	sink, ok := e.Sinks[t.cfg.UpDestination]
	if !ok {
		return taskerr.Upload(fmt.Sprintf("no sink for %q", t.cfg.UpDestination), nil)
	}

	e.transition(t, StateWaitingUP)
	e.Status.Put(t.cfg.ID, withPhase(t.statusBase(sink.Name()), models.PhaseQueuedUP))

	admitted, wake, err := e.Queue.Upload.Admit(t.cfg.ID)
	if err != nil {
		return taskerr.AdmissionReject(err.Error())
	}
	if !admitted {
		select {
		case <-wake:
			if e.Queue.Upload.Stopped() {
				return taskerr.Cancelled()
			}
		case <-t.token.Done():
			return taskerr.Cancelled()
		}
	}
	if e.Events != nil {
		e.Events.PublishQueueEvent("upload", t.cfg.ID, "admitted")
	}
	defer func() {
		e.Queue.Upload.Release(t.cfg.ID)
		if e.Events != nil {
			e.Events.PublishQueueEvent("upload", t.cfg.ID, "released")
		}
	}()

	e.transition(t, StateUploading)
	e.Status.Put(t.cfg.ID, withPhase(t.statusBase(sink.Name()), models.PhaseUploading))

	uploadOpts := drivers.UploadOptions{DestPath: t.cfg.UpDestination}
	_, err = sink.Upload(t.token.Context(), t.listener.CurrentPath(), uploadOpts, t.listener)
	if err != nil {
		if t.token.Cancelled() {
			return taskerr.Cancelled()
		}
		return taskerr.Upload("sink failed", err)
	}
	return nil
}

func (e *Engine) finish(t *task, final State, err error) {
	t.mu.Lock()
	t.state = final
	result := t.upValue
	t.mu.Unlock()

	if t.dir != nil {
		if final == StateFinalized {
			t.dir.Keep()
		} else {
			t.dir.Clean()
		}
	}
	if t.group != nil {
		e.leaveSameDir(t)
	}

	e.Status.Remove(t.cfg.ID)
	if e.Journal != nil {
		_ = e.Journal.ForgetTask(t.cfg.ID)
	}
	if e.Events != nil {
		e.Events.PublishTaskStateChange(t.cfg.ID, t.cfg.OwnerID, t.cfg.ChatID, "", string(final), reasonOf(err))
	}

	if e.Notifier != nil {
		switch final {
		case StateFinalized:
			e.Notifier.NotifyComplete(*t.cfg, result)
		case StateCancelled:
			e.Notifier.NotifyCancelled(*t.cfg)
		case StateFailed:
			e.Notifier.NotifyFailed(*t.cfg, err)
		}
	}

	e.tasksMu.Lock()
	delete(e.tasks, t.cfg.ID)
	e.tasksMu.Unlock()
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (t *task) statusBase(driverName string) models.StatusEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.StatusEntry{
		TaskID: t.cfg.ID,
		Driver: driverName,
		Name:   t.listener.Name(),
		Size:   t.listener.Size(),
	}
}

func withPhase(s models.StatusEntry, phase models.Phase) models.StatusEntry {
	s.Phase = phase
	return s
}

func downloadFileName(cfg *models.TaskConfig) string {
	if cfg.NameHint != "" {
		return cfg.NameHint
	}
	return cfg.ID
}
