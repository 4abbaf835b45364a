// Package models holds the data-model types shared across the task
// orchestrator (spec §3): TaskConfig, Listener, StatusEntry, SameDirGroup,
// MergeSession, RssFeed, and UserSettings.
package models

import (
	"math/rand"
	"sync"
	"time"
)

// TaskKind distinguishes the dispatch-table entry a TaskConfig is handled
// by (spec §9: composition over inheritance — a TaskConfig value plus a
// dispatch table keyed by kind, instead of Listener/Config subclassing).
type TaskKind string

const (
	KindMirror TaskKind = "mirror"
	KindLeech  TaskKind = "leech"
	KindClone  TaskKind = "clone"
	KindMerge  TaskKind = "merge"
	KindYtdlp  TaskKind = "ytdlp"
)

const taskIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewTaskID generates a random 10-character task id (spec §3 TaskConfig.id).
func NewTaskID() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = taskIDAlphabet[rand.Intn(len(taskIDAlphabet))]
	}
	return string(b)
}

// PipelineOptions carries the flags that gate each of the 13 media-pipeline
// stages (spec §4.4), parsed from the command surface (spec §4.7).
type PipelineOptions struct {
	Join             bool
	ExtractArchive   bool
	ExtractPassword  string
	FFmpegCmds       []string
	Screenshots      bool
	ScreenshotCount  int
	ConvertAudioExt  string
	ConvertVideoExt  string
	SampleVideo      bool
	MetadataTitle    string
	ThumbnailRef     string
	ThumbnailGrid    string
	Compress         bool
	CompressPassword string
	Watermark        WatermarkSpec
	NameSubstitution string
	SplitSizeOverride int64
}

// WatermarkSpec is the canonical dict-form watermark configuration (spec §9
// open question: only the dict form is canonical). The dispatcher parses
// no watermark flag, so no bare-string form is accepted anywhere.
type WatermarkSpec struct {
	Enabled  bool
	Text     string
	ImageRef string
	Position string // Top-Left, Top-Right, Bottom-Left, Bottom-Right, Center
	Size     int
	Color    string
}

// TaskConfig is immutable once constructed (spec §3); all mutable per-task
// state lives on Listener.
type TaskConfig struct {
	ID      string
	Kind    TaskKind
	OwnerID int64
	ChatID  int64
	ReplyID int64

	// Link is a URL, magnet URI, local path, or chat-media reference.
	Link string

	// DriverName selects the drivers.Registry entry that handles Link
	// (spec §9: "lift to explicit process-wide registries" rather than
	// the original's if/elif host-sniffing chain). Resolved once by the
	// dispatcher at admission time from Link's scheme/shape.
	DriverName string

	Tag         string
	WorkingDir  string
	NameHint    string
	SizeHint    int64

	// Flags
	Leech      bool
	Mirror     bool
	Seed       bool
	Select     bool
	Force      bool
	HybridLeech bool
	ForceUser  bool
	ForceBot   bool
	AsDocument bool
	AsMedia    bool

	Pipeline PipelineOptions

	UpDestination string
	RcloneFlags   string

	IncludedExtensions []string
	ExcludedExtensions []string

	FolderName string // SameDirGroup key, if any ("-m")

	HTTPAuthUser string
	HTTPAuthPass string
	HTTPHeaders  map[string]string

	CreatedAt time.Time
}

// SubprocessHandle is the minimal surface the Listener needs to cancel a
// live media-tool subprocess without internal/mediatool importing models.
type SubprocessHandle interface {
	Terminate()
	Wait() error
}

// Listener owns a TaskConfig for its whole lifetime and receives backend
// driver callbacks (spec §3, §4.1). Exactly one Listener exists per
// TaskConfig, created at admission and discarded at finalize.
type Listener struct {
	mu sync.Mutex

	Config *TaskConfig

	name           string
	size           int64
	isCancelled    bool
	currentPath    string
	subprocess     SubprocessHandle
	expectedSize   int64

	OnDownloadStart    func()
	OnDownloadComplete func()
	OnDownloadError    func(reason string)
	OnUploadComplete   func(result UploadResult)
	OnUploadError      func(reason string)
}

// UploadResult is the payload passed to OnUploadComplete (spec §4.5
// Uploading → Finalized transition).
type UploadResult struct {
	Link    string
	Files   int
	Folders int
	Mime    string
	DirID   string
}

// NewListener constructs a Listener for cfg with NameHint/SizeHint seeded
// as the initial name/size.
func NewListener(cfg *TaskConfig) *Listener {
	return &Listener{
		Config:      cfg,
		name:        cfg.NameHint,
		size:        cfg.SizeHint,
		currentPath: cfg.WorkingDir,
	}
}

func (l *Listener) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

func (l *Listener) SetName(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.name = name
}

func (l *Listener) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *Listener) SetSize(size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.size = size
}

func (l *Listener) CurrentPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentPath
}

func (l *Listener) SetCurrentPath(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentPath = p
}

// IsCancelled reports whether Cancel has been called; checked between every
// pipeline stage boundary (spec §4.4 Stage contract).
func (l *Listener) IsCancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isCancelled
}

// Cancel is idempotent (spec §5 Cancellation). It marks the listener
// cancelled and terminates any live subprocess; gate release and driver
// cancel are the lifecycle engine's responsibility since they need the
// driver handle the listener does not hold.
func (l *Listener) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isCancelled {
		return
	}
	l.isCancelled = true
	if l.subprocess != nil {
		l.subprocess.Terminate()
	}
}

func (l *Listener) SetSubprocess(h SubprocessHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subprocess = h
}

func (l *Listener) SetExpectedSize(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expectedSize = n
}

func (l *Listener) ExpectedSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expectedSize
}
