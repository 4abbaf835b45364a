// Package taskerr defines the task-lifecycle error taxonomy (spec §7):
// a closed set of typed errors that the lifecycle, pipeline, and dispatcher
// branch on to decide cleanup and user-facing behavior.
package taskerr

import (
	"errors"
	"fmt"
)

// Kind classifies a task-lifecycle error into one of the taxonomy buckets.
type Kind int

const (
	// KindConfig - bad flag or value on the command surface; no side effects.
	KindConfig Kind = iota
	// KindAdmissionReject - duplicate, stopped, bad link, or disabled feature; no working dir created.
	KindAdmissionReject
	// KindDownload - backend driver terminal failure.
	KindDownload
	// KindPipeline - media pipeline stage failure.
	KindPipeline
	// KindUpload - sink failure or partial upload.
	KindUpload
	// KindCancelled - user action or stop_all; handled as a non-error terminal.
	KindCancelled
	// KindFatal - registry invariant violated; process aborts after releasing gates.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindAdmissionReject:
		return "AdmissionReject"
	case KindDownload:
		return "DownloadError"
	case KindPipeline:
		return "PipelineError"
	case KindUpload:
		return "UploadError"
	case KindCancelled:
		return "Cancelled"
	case KindFatal:
		return "Fatal"
	default:
		return "UnknownError"
	}
}

// TaskError is the concrete error type carried through the lifecycle.
// Reason is the user-facing text; Cause, if set, is the wrapped underlying
// error surfaced only in logs.
type TaskError struct {
	Kind   Kind
	Reason string
	Cause  error

	// Partial lists sink items that landed before an UploadError; only
	// populated for KindUpload, per spec §7's "enumerates only successful
	// items" rule.
	Partial []string
}

func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *TaskError) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, taskerr.Cancelled) style checks against a bare
// Kind sentinel constructed with New(kind, "").
func (e *TaskError) Is(target error) bool {
	var t *TaskError
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Reason == ""
	}
	return false
}

func New(kind Kind, reason string) *TaskError {
	return &TaskError{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, cause error) *TaskError {
	return &TaskError{Kind: kind, Reason: reason, Cause: cause}
}

func Config(reason string) *TaskError        { return New(KindConfig, reason) }
func AdmissionReject(reason string) *TaskError { return New(KindAdmissionReject, reason) }
func Download(reason string, cause error) *TaskError { return Wrap(KindDownload, reason, cause) }
func Pipeline(reason string, cause error) *TaskError { return Wrap(KindPipeline, reason, cause) }
func Upload(reason string, cause error) *TaskError   { return Wrap(KindUpload, reason, cause) }
func Cancelled() *TaskError                    { return New(KindCancelled, "cancelled by user") }
func Fatal(reason string, cause error) *TaskError { return Wrap(KindFatal, reason, cause) }

// UploadPartial builds an UploadError carrying the subset of items that
// landed before the failure, for the "partial success" notice path.
func UploadPartial(reason string, cause error, landed []string) *TaskError {
	e := Upload(reason, cause)
	e.Partial = landed
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *TaskError; ok is false for errors outside the taxonomy.
func KindOf(err error) (Kind, bool) {
	var t *TaskError
	if errors.As(err, &t) {
		return t.Kind, true
	}
	return 0, false
}

// IsCancelled reports whether err represents user/stop_all cancellation.
func IsCancelled(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindCancelled
}

// IsTerminal reports whether err's kind always ends the task (all of them
// do in this taxonomy; kept as a named predicate for readability at call
// sites in the lifecycle).
func IsTerminal(err error) bool {
	_, ok := KindOf(err)
	return ok
}

// sentinels usable with errors.Is(err, taskerr.ErrStopped) etc. where the
// caller doesn't need the Reason text.
var (
	ErrStopped  = New(KindAdmissionReject, "stopped")
	ErrDuplicate = New(KindAdmissionReject, "duplicate")
)
