// Package torrent implements the BitTorrent backend driver (spec §4.1),
// grounded on github.com/anacrolix/torrent (the library surfaced by the
// retrieval pack's JackYinpei-magnet manifest).
package torrent

import (
	"context"
	"fmt"
	"sync"
	"time"

	anatorrent "github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/rescale-labs/taskorc/internal/drivers"
	"github.com/rescale-labs/taskorc/internal/models"
)

type handleState struct {
	mu       sync.Mutex
	t        *anatorrent.Torrent
	selected bool
	paused   bool
	errMsg   string
	cancel   context.CancelFunc
}

// Driver implements drivers.Driver for magnet links and .torrent files.
type Driver struct {
	client *anatorrent.Client

	mu      sync.Mutex
	handles map[drivers.Handle]*handleState
	seq     int
}

// Config configures the embedded torrent client: its data directory and
// whether it keeps seeding after completion. No stall timeout is applied.
type Config struct {
	DataDir         string
	SeedAfterFinish bool
}

func New(cfg Config) (*Driver, error) {
	cc := anatorrent.NewDefaultClientConfig()
	cc.DataDir = cfg.DataDir
	cc.Seed = cfg.SeedAfterFinish

	client, err := anatorrent.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("torrent: create client: %w", err)
	}
	return &Driver{client: client, handles: make(map[drivers.Handle]*handleState)}, nil
}

func (d *Driver) Name() string         { return "torrent" }
func (d *Driver) SupportsSelect() bool { return true }

func (d *Driver) Begin(ctx context.Context, link, dest string, opts drivers.BeginOptions, listener *models.Listener) (drivers.Handle, error) {
	var t *anatorrent.Torrent
	var err error

	if spec, perr := metainfo.ParseMagnetUri(link); perr == nil {
		t, err = d.client.AddTorrentInfoHash(spec.InfoHash)
		if err != nil {
			return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: "add magnet", Cause: err}
		}
	} else {
		t, err = d.client.AddTorrentFromFile(link)
		if err != nil {
			return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: "add torrent file", Cause: err}
		}
	}

	tctx, cancel := context.WithCancel(ctx)
	hs := &handleState{t: t, cancel: cancel}

	d.mu.Lock()
	d.seq++
	handle := drivers.Handle(fmt.Sprintf("torrent-%d", d.seq))
	d.handles[handle] = hs
	d.mu.Unlock()

	go d.drive(tctx, handle, hs, opts, listener)

	return handle, nil
}

func (d *Driver) drive(ctx context.Context, handle drivers.Handle, hs *handleState, opts drivers.BeginOptions, listener *models.Listener) {
	select {
	case <-hs.t.GotInfo():
	case <-ctx.Done():
		return
	}

	if opts.Select {
		hs.mu.Lock()
		hs.paused = true
		hs.mu.Unlock()
		return // wait for CommitSelection to choose files and start download
	}

	hs.t.DownloadAll()
	listener.OnDownloadStart()
	d.waitComplete(ctx, handle, hs, opts, listener)
}

func (d *Driver) waitComplete(ctx context.Context, handle drivers.Handle, hs *handleState, opts drivers.BeginOptions, listener *models.Listener) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			listener.OnDownloadError("cancelled")
			return
		case <-ticker.C:
			if hs.t.BytesMissing() == 0 {
				listener.OnDownloadComplete()
				if opts.Seed {
					return // client.Seed keeps serving; driver state moves to seeding via Poll
				}
				return
			}
		}
	}
}

// CommitSelection finalizes select-mode: marks the chosen file indexes
// for download and starts the transfer (spec §4.1 select-mode).
func (d *Driver) CommitSelection(handle drivers.Handle, indexes []int) error {
	d.mu.Lock()
	hs, ok := d.handles[handle]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("torrent: unknown handle %s", handle)
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	if !hs.paused {
		return fmt.Errorf("torrent: %s is not awaiting selection", handle)
	}

	wanted := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		wanted[idx] = true
	}
	for i, f := range hs.t.Files() {
		if wanted[i] {
			f.Download()
		} else {
			f.SetPriority(anatorrent.PiecePriorityNone)
		}
	}
	hs.selected = true
	hs.paused = false
	return nil
}

func (d *Driver) Cancel(handle drivers.Handle) error {
	d.mu.Lock()
	hs, ok := d.handles[handle]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	hs.cancel()
	hs.t.Drop()
	return nil
}

func (d *Driver) Poll(handle drivers.Handle) (drivers.ProgressSnapshot, error) {
	d.mu.Lock()
	hs, ok := d.handles[handle]
	d.mu.Unlock()
	if !ok {
		return drivers.ProgressSnapshot{}, fmt.Errorf("torrent: unknown handle %s", handle)
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.errMsg != "" {
		return drivers.ProgressSnapshot{State: drivers.StateFailed, ErrorMsg: hs.errMsg}, nil
	}

	info := hs.t.Info()
	if info == nil {
		return drivers.ProgressSnapshot{State: drivers.StateMetadata}, nil
	}
	if hs.paused {
		return drivers.ProgressSnapshot{State: drivers.StatePaused, Total: info.TotalLength(), TotalKnown: true}, nil
	}

	total := info.TotalLength()
	missing := hs.t.BytesMissing()
	processed := total - missing

	state := drivers.StateActive
	if missing == 0 {
		state = drivers.StateDone
		if hs.t.Seeding() {
			state = drivers.StateSeeding
		}
	}

	stats := hs.t.Stats()
	return drivers.ProgressSnapshot{
		State:      state,
		Processed:  processed,
		Total:      total,
		TotalKnown: true,
		Speed:      float64(stats.BytesReadUsefulData.Int64()),
	}, nil
}
