package queue

// Controller bundles the download and upload Gate singletons (spec §4.3).
// Exactly one Controller exists per process.
type Controller struct {
	Download *Gate
	Upload   *Gate
}

// NewController builds the download/upload gate pair. When queueAll is
// true both gates share one logical capacity counter sized by
// downloadLimit (spec §4.3: "queue_all ... forces both gates to share one
// logical capacity counter"); uploadLimit is ignored in that mode.
func NewController(downloadLimit, uploadLimit int, queueAll bool) *Controller {
	if queueAll {
		dl, ul := NewSharedPair(downloadLimit)
		return &Controller{Download: dl, Upload: ul}
	}
	return &Controller{
		Download: NewGate(downloadLimit),
		Upload:   NewGate(uploadLimit),
	}
}

// StopAll stops both gates, per spec §4.3 stop_all semantics applied
// process-wide (used on graceful shutdown / admin "cancel-all" + drain).
func (c *Controller) StopAll() {
	c.Download.StopAll()
	c.Upload.StopAll()
}
