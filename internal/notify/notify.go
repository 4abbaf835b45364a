// Package notify raises an operator-facing desktop alert when the process
// hits a Fatal-class error (spec §7: "process aborts after releasing
// gates" — small deployments are assumed operator-attended, so a visible
// alert alongside the log line is worth the dependency). Grounded on the
// teacher's own internal/notify package, which wraps the same library for
// the same "something just took the process down" moment.
package notify

import "github.com/gen2brain/beeep"

// Fatal raises a desktop notification for a Fatal-class taskerr. Errors
// from beeep itself are swallowed: a failed notification must never mask
// or delay the fatal condition it's reporting.
func Fatal(title, message string) {
	_ = beeep.Alert(title, message, "")
}
