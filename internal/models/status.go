package models

import "time"

// Phase is a StatusEntry's position in the task lifecycle (spec §3, §4.5).
type Phase string

const (
	PhaseQueuedDL    Phase = "queued-dl"
	PhaseDownloading Phase = "downloading"
	PhaseQueuedUP    Phase = "queued-up"
	PhaseUploading   Phase = "uploading"
	PhaseProcessing  Phase = "processing"
)

// StatusEntry is the immutable snapshot the Status Registry holds for one
// task id (spec §3, §4.2). Registry updates replace the entry rather than
// mutating it in place, so readers always observe a consistent snapshot.
type StatusEntry struct {
	TaskID    string
	Phase     Phase
	Driver    string
	Progress  float64 // percent, 0-100
	Processed int64
	Total     int64
	Speed     float64 // bytes/sec
	ETA       time.Duration
	Name      string
	Size      int64
}
