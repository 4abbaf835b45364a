// Package drivers defines the Backend Driver Interface (spec §4.1): a
// uniform abstraction over the concrete downloaders/uploaders. Each
// concrete driver (httpmulti, torrent, usenet, linkresolver, chatmedia,
// driveapi, syncdaemon, filehost) implements Driver; the lifecycle engine
// only ever talks to this interface.
package drivers

import (
	"context"
	"time"

	"github.com/rescale-labs/taskorc/internal/models"
)

// State is a driver-reported transfer state (spec §4.1 poll).
type State string

const (
	StateMetadata State = "metadata"
	StateActive   State = "active"
	StateSeeding  State = "seeding"
	StatePaused   State = "paused"
	StateFailed   State = "failed"
	StateDone     State = "done"
)

// ProgressSnapshot is the pure, point-in-time read returned by Poll (spec
// §4.1). TotalKnown is false until the driver has learned the payload's
// total size (e.g. before a torrent's metadata phase completes).
type ProgressSnapshot struct {
	State      State
	Processed  int64
	Total      int64
	TotalKnown bool
	Speed      float64 // bytes/sec
	ETA        time.Duration
	ErrorMsg   string
}

// BeginError enumerates the synchronous failure modes Begin may return
// (spec §4.1: "May synchronously fail with {InvalidLink, Auth,
// Unreachable, Duplicate}").
type BeginErrorKind string

const (
	ErrInvalidLink BeginErrorKind = "InvalidLink"
	ErrAuth        BeginErrorKind = "Auth"
	ErrUnreachable BeginErrorKind = "Unreachable"
	ErrDuplicate   BeginErrorKind = "Duplicate"
)

// BeginError is returned by Begin for the synchronous failure modes.
type BeginError struct {
	Kind    BeginErrorKind
	Message string
	Cause   error
}

func (e *BeginError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *BeginError) Unwrap() error { return e.Cause }

// BeginOptions carries the per-task knobs a driver needs at admission
// time: the destination directory, selection mode, auth, and headers
// (spec §4.1, §4.7).
type BeginOptions struct {
	Select       bool
	Seed         bool
	SeedRatio    float64
	SeedTime     time.Duration
	HTTPAuthUser string
	HTTPAuthPass string
	HTTPHeaders  map[string]string
	RcloneFlags  string
}

// SelectableEntry is one file within a multi-file payload a select-mode
// driver can include/exclude before the transfer begins (spec §4.1
// select-mode).
type SelectableEntry struct {
	Index int
	Name  string
	Size  int64
}

// Handle is the opaque per-transfer id a driver assigns in Begin and
// accepts in Cancel/Poll/CommitSelection.
type Handle string

// Driver is the polymorphic capability set {begin, cancel, poll} spec
// §4.1 requires of every backend. Implementations MUST call
// listener.OnDownloadStart before producing bytes, and MUST call
// listener.OnDownloadComplete exactly once on terminal success.
type Driver interface {
	// Name identifies the driver for logging, StatusEntry.Driver, and the
	// duplicate-select-mode-rejection error message.
	Name() string

	// SupportsSelect reports whether this driver implements select-mode
	// (spec §4.1: "other drivers MUST reject select=true at admission").
	SupportsSelect() bool

	// Begin enqueues retrieval of link into dest. listener receives the
	// on_download_* callbacks as the transfer progresses.
	Begin(ctx context.Context, link, dest string, opts BeginOptions, listener *models.Listener) (Handle, error)

	// Cancel requests cancellation; idempotent. The driver MUST
	// eventually call listener.OnDownloadError("cancelled") or complete
	// normally if already terminal.
	Cancel(handle Handle) error

	// Poll is a pure read of the current transfer state.
	Poll(handle Handle) (ProgressSnapshot, error)

	// CommitSelection finalizes a select-mode pause state with the chosen
	// file indexes. Drivers that return false from SupportsSelect need
	// not implement this meaningfully.
	CommitSelection(handle Handle, indexes []int) error
}

// UploadOptions carries the per-task knobs a sink needs at upload time
// (spec §4.7 -up destination, prefix/suffix/caption from UserSettings).
type UploadOptions struct {
	DestPath string // rclone path or chat destination id, sink-specific
	Token    string // file-host API token / drive-id auth
	Caption  string
}

// Sink is the uniform upload-destination abstraction the spec's glossary
// calls "Sink": chat, drive, rclone path, file host. Upload blocks until
// terminal and reports the outcome both as its return value and through
// the listener's upload callbacks; sinks have no separate Poll method.
type Sink interface {
	Name() string
	Upload(ctx context.Context, path string, opts UploadOptions, listener *models.Listener) (models.UploadResult, error)
}

// Registry maps a link's resolved kind to the Driver that handles it.
// Built once at boot and shared read-only thereafter (spec §9: "lift to
// explicit process-wide singletons created at boot").
type Registry struct {
	byName map[string]Driver
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Driver)}
}

func (r *Registry) Register(d Driver) {
	r.byName[d.Name()] = d
}

func (r *Registry) Get(name string) (Driver, bool) {
	d, ok := r.byName[name]
	return d, ok
}
