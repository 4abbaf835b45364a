// Package syncdaemon implements the Generic-Sync-Daemon backend driver
// (spec §4.1, §4.7 -rcf passthrough flags): a thin wrapper that shells
// out to an rclone-compatible binary and tracks its progress, grounded on
// internal/mediatool's subprocess runner (the same run/stream/cancel
// shape the media pipeline uses for ffmpeg and 7z).
package syncdaemon

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rescale-labs/taskorc/internal/mediatool"
	"github.com/rescale-labs/taskorc/internal/models"

	"github.com/rescale-labs/taskorc/internal/drivers"
)

// Config names the passthrough binary (spec's rclone-config path setting
// supplies --config to it; see models.UserSettings).
type Config struct {
	BinaryPath string // default "rclone"
	ConfigPath string
}

type transferState struct {
	mu        sync.Mutex
	state     drivers.State
	processed int64
	total     int64
	speed     float64
	errMsg    string
	handle    *mediatool.Handle
	cancel    context.CancelFunc
}

// Driver implements drivers.Driver by invoking an rclone-shaped binary
// with `copy <link> <dest> --progress [extra flags...]`.
type Driver struct {
	cfg Config

	mu        sync.Mutex
	transfers map[drivers.Handle]*transferState
	seq       int
}

func New(cfg Config) *Driver {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "rclone"
	}
	return &Driver{cfg: cfg, transfers: make(map[drivers.Handle]*transferState)}
}

func (d *Driver) Name() string         { return "sync-daemon" }
func (d *Driver) SupportsSelect() bool { return false }
func (d *Driver) CommitSelection(drivers.Handle, []int) error {
	return fmt.Errorf("sync-daemon: select-mode not supported")
}

func (d *Driver) Begin(ctx context.Context, link, dest string, opts drivers.BeginOptions, listener *models.Listener) (drivers.Handle, error) {
	if opts.Select {
		return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: "sync-daemon does not support select-mode"}
	}

	argv := []string{d.cfg.BinaryPath, "copy", link, dest, "--progress", "--stats=1s", "--stats-one-line"}
	if d.cfg.ConfigPath != "" {
		argv = append(argv, "--config", d.cfg.ConfigPath)
	}
	if opts.RcloneFlags != "" {
		argv = append(argv, strings.Fields(opts.RcloneFlags)...)
	}

	tctx, cancel := context.WithCancel(ctx)
	ts := &transferState{state: drivers.StateActive, cancel: cancel}

	d.mu.Lock()
	d.seq++
	handle := drivers.Handle(fmt.Sprintf("syncdaemon-%d", d.seq))
	d.transfers[handle] = ts
	d.mu.Unlock()

	listener.OnDownloadStart()
	go d.run(tctx, argv, ts, listener)

	return handle, nil
}

func (d *Driver) run(ctx context.Context, argv []string, ts *transferState, listener *models.Listener) {
	code, handle, err := mediatool.Run(ctx, argv, func(line mediatool.ProgressLine) {
		parseStatsLine(line.Line, ts)
	})

	ts.mu.Lock()
	ts.handle = handle
	ts.mu.Unlock()

	if err != nil {
		ts.mu.Lock()
		ts.state = drivers.StateFailed
		ts.errMsg = err.Error()
		ts.mu.Unlock()
		listener.OnDownloadError(err.Error())
		return
	}
	if code != 0 {
		if ctx.Err() != nil {
			ts.mu.Lock()
			ts.state = drivers.StateFailed
			ts.errMsg = "cancelled"
			ts.mu.Unlock()
			listener.OnDownloadError("cancelled")
			return
		}
		msg := fmt.Sprintf("rclone exited %d", code)
		ts.mu.Lock()
		ts.state = drivers.StateFailed
		ts.errMsg = msg
		ts.mu.Unlock()
		listener.OnDownloadError(msg)
		return
	}

	ts.mu.Lock()
	ts.state = drivers.StateDone
	ts.mu.Unlock()
	listener.OnDownloadComplete()
}

// statsLineRe matches rclone's one-line stats format, e.g.
// "Transferred:   1.234 GiB / 4.567 GiB, 27%, 12.345 MiB/s, ETA 1m2s"
var statsLineRe = regexp.MustCompile(`Transferred:\s*([\d.]+)\s*(\w+)\s*/\s*([\d.]+)\s*(\w+).*?([\d.]+)\s*(\w+/s)`)

func parseStatsLine(line string, ts *transferState) {
	m := statsLineRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	processed := toBytes(m[1], m[2])
	total := toBytes(m[3], m[4])
	speed := toBytes(m[5], strings.TrimSuffix(m[6], "/s"))

	ts.mu.Lock()
	ts.processed = processed
	ts.total = total
	ts.speed = float64(speed)
	ts.mu.Unlock()
}

func toBytes(numStr, unit string) int64 {
	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0
	}
	mult := 1.0
	switch strings.ToUpper(unit) {
	case "KIB", "KB":
		mult = 1024
	case "MIB", "MB":
		mult = 1024 * 1024
	case "GIB", "GB":
		mult = 1024 * 1024 * 1024
	case "TIB", "TB":
		mult = 1024 * 1024 * 1024 * 1024
	}
	return int64(n * mult)
}

func (d *Driver) Cancel(handle drivers.Handle) error {
	d.mu.Lock()
	ts, ok := d.transfers[handle]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	ts.cancel()
	return nil
}

func (d *Driver) Poll(handle drivers.Handle) (drivers.ProgressSnapshot, error) {
	d.mu.Lock()
	ts, ok := d.transfers[handle]
	d.mu.Unlock()
	if !ok {
		return drivers.ProgressSnapshot{}, fmt.Errorf("sync-daemon: unknown handle %s", handle)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return drivers.ProgressSnapshot{
		State:      ts.state,
		Processed:  ts.processed,
		Total:      ts.total,
		TotalKnown: ts.total > 0,
		Speed:      ts.speed,
		ErrorMsg:   ts.errMsg,
	}, nil
}
