//go:build !windows

package mediatool

import "syscall"

// Terminate sends SIGTERM; idempotent, errors ignored since the process
// may have already exited (spec §5 cancellation: "cause any live
// subprocess to be signalled to terminate").
func (h *Handle) Terminate() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill forcibly terminates the process; used if Terminate doesn't result
// in exit within a grace period (the caller owns that timing decision).
func (h *Handle) Kill() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Kill()
}
