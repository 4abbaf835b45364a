// Package chatmedia implements the backend driver (spec §4.1) for media
// attached directly to a chat message: no transfer is actually driven,
// the bytes are already resident on the chat server, so Begin just
// streams them through an injected Transport. The chat-protocol wire
// client itself is an external collaborator (spec §3 out-of-scope); this
// package only depends on the minimal Transport interface it needs.
package chatmedia

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rescale-labs/taskorc/internal/drivers"
	"github.com/rescale-labs/taskorc/internal/models"
)

// Transport is the narrow capability this driver needs from the
// chat-protocol client: fetch the bytes behind a message's media
// reference. Supplied by the external chat client at wiring time.
type Transport interface {
	OpenMedia(ctx context.Context, ref models.MessageRef) (io.ReadCloser, int64, error)
}

type transferState struct {
	mu        sync.Mutex
	state     drivers.State
	processed int64
	total     int64
	errMsg    string
	cancel    context.CancelFunc
}

// Driver implements drivers.Driver over chat-resident media.
type Driver struct {
	transport Transport

	mu        sync.Mutex
	transfers map[drivers.Handle]*transferState
	seq       int
}

func New(transport Transport) *Driver {
	return &Driver{transport: transport, transfers: make(map[drivers.Handle]*transferState)}
}

func (d *Driver) Name() string         { return "chatmedia" }
func (d *Driver) SupportsSelect() bool { return false }
func (d *Driver) CommitSelection(drivers.Handle, []int) error {
	return fmt.Errorf("chat-media: select-mode not supported")
}

// Begin treats `link` as a models.MessageRef-encoded reference produced by
// the dispatcher when a user replies to or forwards a media message.
func (d *Driver) Begin(ctx context.Context, link, dest string, opts drivers.BeginOptions, listener *models.Listener) (drivers.Handle, error) {
	ref, err := models.ParseMessageRef(link)
	if err != nil {
		return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: "not a chat media reference", Cause: err}
	}

	tctx, cancel := context.WithCancel(ctx)
	ts := &transferState{state: drivers.StateActive, cancel: cancel}

	d.mu.Lock()
	d.seq++
	handle := drivers.Handle(fmt.Sprintf("chatmedia-%d", d.seq))
	d.transfers[handle] = ts
	d.mu.Unlock()

	listener.OnDownloadStart()
	go d.stream(tctx, ref, dest, ts, listener)

	return handle, nil
}

func (d *Driver) stream(ctx context.Context, ref models.MessageRef, dest string, ts *transferState, listener *models.Listener) {
	rc, total, err := d.transport.OpenMedia(ctx, ref)
	if err != nil {
		d.fail(ts, listener, err.Error())
		return
	}
	defer rc.Close()

	ts.mu.Lock()
	ts.total = total
	ts.mu.Unlock()

	out, err := os.Create(dest)
	if err != nil {
		d.fail(ts, listener, err.Error())
		return
	}
	defer out.Close()

	_, err = io.Copy(out, &countingReader{r: rc, ts: ts})
	if err != nil {
		if ctx.Err() != nil {
			d.fail(ts, listener, "cancelled")
			return
		}
		d.fail(ts, listener, err.Error())
		return
	}

	ts.mu.Lock()
	ts.state = drivers.StateDone
	ts.mu.Unlock()
	listener.OnDownloadComplete()
}

func (d *Driver) fail(ts *transferState, listener *models.Listener, msg string) {
	ts.mu.Lock()
	ts.state = drivers.StateFailed
	ts.errMsg = msg
	ts.mu.Unlock()
	listener.OnDownloadError(msg)
}

type countingReader struct {
	r  io.Reader
	ts *transferState
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.ts.mu.Lock()
	c.ts.processed += int64(n)
	c.ts.mu.Unlock()
	return n, err
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
		return drivers.ProgressSnapshot{}, fmt.Errorf("chat-media: unknown handle %s", handle)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return drivers.ProgressSnapshot{
		State:      ts.state,
		Processed:  ts.processed,
		Total:      ts.total,
		TotalKnown: ts.total > 0,
		ErrorMsg:   ts.errMsg,
	}, nil
}
