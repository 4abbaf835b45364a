// Package linkresolver implements the generic link-resolver daemon
// backend driver (spec §4.1), per the SPEC_FULL supplement grounded on
// original_source/myjd/myjdapi.py: a session-based remote device API
// (login, add-links, poll packages), not a bare HTTP GET.
package linkresolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rescale-labs/taskorc/internal/drivers"
	"github.com/rescale-labs/taskorc/internal/models"
)

// Config points the driver at a JDownloader-shaped remote device API.
type Config struct {
	BaseURL  string
	Username string
	Password string
	DeviceID string
}

// ResolveOutcome is the sum type spec §9 calls for in place of exception-
// based resolver fallback chains.
type ResolveOutcome struct {
	Kind    ResolveKind
	URL     string
	Headers map[string]string
	Entries []string
	ErrKind string
	ErrMsg  string
}

type ResolveKind string

const (
	ResolveLink        ResolveKind = "Link"
	ResolveFolder      ResolveKind = "Folder"
	ResolveNotSupported ResolveKind = "NotSupported"
	ResolveError       ResolveKind = "Error"
)

type packageState struct {
	mu       sync.Mutex
	packageID string
	errMsg    string
}

// Driver implements drivers.Driver against a JDownloader-shaped API.
type Driver struct {
	cfg     Config
	client  *retryablehttp.Client
	session string

	mu      sync.Mutex
	handles map[drivers.Handle]*packageState
	seq     int
}

func New(cfg Config) *Driver {
	c := retryablehttp.NewClient()
	c.RetryMax = 5
	c.Logger = nil
	return &Driver{cfg: cfg, client: c, handles: make(map[drivers.Handle]*packageState)}
}

func (d *Driver) Name() string         { return "linkresolver" }
func (d *Driver) SupportsSelect() bool { return false }
func (d *Driver) CommitSelection(drivers.Handle, []int) error {
	return fmt.Errorf("link-resolver: select-mode not supported")
}

// Connect establishes the session, mirroring myjdapi.py's connect()+login
// handshake. Idempotent: cached on the Driver once established.
func (d *Driver) Connect(ctx context.Context) error {
	if d.session != "" {
		return nil
	}
	q := url.Values{}
	q.Set("username", d.cfg.Username)
	q.Set("password", d.cfg.Password)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/my/connect?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("link-resolver: connect: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		SessionToken string `json:"sessiontoken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("link-resolver: decode connect response: %w", err)
	}
	d.session = body.SessionToken
	return nil
}

func (d *Driver) Begin(ctx context.Context, link, dest string, opts drivers.BeginOptions, listener *models.Listener) (drivers.Handle, error) {
	if opts.Select {
		return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: "link-resolver does not support select-mode"}
	}
	if err := d.Connect(ctx); err != nil {
		return "", &drivers.BeginError{Kind: drivers.ErrUnreachable, Message: "connect", Cause: err}
	}

	outcome := d.addLink(ctx, link)
	switch outcome.Kind {
	case ResolveError:
		return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: outcome.ErrMsg}
	case ResolveNotSupported:
		return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: "host not supported by resolver"}
	}

	d.mu.Lock()
	d.seq++
	handle := drivers.Handle(fmt.Sprintf("linkresolver-%d", d.seq))
	ps := &packageState{packageID: outcome.URL} // AddLink responses carry the new package id in URL for this shape
	d.handles[handle] = ps
	d.mu.Unlock()

	listener.OnDownloadStart()
	go d.pollPackage(ctx, handle, ps, listener)

	return handle, nil
}

// addLink models myjdapi's AddLinks device-action call, returning the sum
// type spec §9 requires instead of raising and catching exceptions.
func (d *Driver) addLink(ctx context.Context, link string) ResolveOutcome {
	q := url.Values{}
	q.Set("links", link)
	q.Set("sessiontoken", d.session)
	q.Set("deviceId", d.cfg.DeviceID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/device/linkgrabberv2/addLinks?"+q.Encode(), nil)
	if err != nil {
		return ResolveOutcome{Kind: ResolveError, ErrKind: "AddLinkFailed", ErrMsg: err.Error()}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return ResolveOutcome{Kind: ResolveError, ErrKind: "Unreachable", ErrMsg: err.Error()}
	}
	defer resp.Body.Close()

	var body struct {
		PackageID string `json:"packageId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.PackageID == "" {
		return ResolveOutcome{Kind: ResolveNotSupported}
	}
	return ResolveOutcome{Kind: ResolveLink, URL: body.PackageID}
}

func (d *Driver) pollPackage(ctx context.Context, handle drivers.Handle, ps *packageState, listener *models.Listener) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			listener.OnDownloadError("cancelled")
			return
		case <-ticker.C:
			snap, err := d.Poll(handle)
			if err != nil {
				continue
			}
			if snap.State == drivers.StateDone {
				listener.OnDownloadComplete()
				return
			}
			if snap.State == drivers.StateFailed {
				listener.OnDownloadError(snap.ErrorMsg)
				return
			}
		}
	}
}

func (d *Driver) Cancel(handle drivers.Handle) error {
	d.mu.Lock()
	ps, ok := d.handles[handle]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	q := url.Values{}
	q.Set("packageIds", ps.packageID)
	q.Set("sessiontoken", d.session)
	req, err := retryablehttp.NewRequest(http.MethodPost, d.cfg.BaseURL+"/device/downloadsv2/removeLinks?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *Driver) Poll(handle drivers.Handle) (drivers.ProgressSnapshot, error) {
	d.mu.Lock()
	ps, ok := d.handles[handle]
	d.mu.Unlock()
	if !ok {
		return drivers.ProgressSnapshot{}, fmt.Errorf("link-resolver: unknown handle %s", handle)
	}

	q := url.Values{}
	q.Set("packageIds", ps.packageID)
	q.Set("sessiontoken", d.session)
	req, err := retryablehttp.NewRequest(http.MethodGet, d.cfg.BaseURL+"/device/downloadsv2/queryPackages?"+q.Encode(), nil)
	if err != nil {
		return drivers.ProgressSnapshot{}, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return drivers.ProgressSnapshot{}, err
	}
	defer resp.Body.Close()

	var body struct {
		BytesLoaded int64  `json:"bytesLoaded"`
		BytesTotal  int64  `json:"bytesTotal"`
		Status      string `json:"status"`
		Speed       float64 `json:"speed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return drivers.ProgressSnapshot{}, err
	}

	state := drivers.StateActive
	switch body.Status {
	case "finished":
		state = drivers.StateDone
	case "failed":
		state = drivers.StateFailed
	}

	return drivers.ProgressSnapshot{
		State:      state,
		Processed:  body.BytesLoaded,
		Total:      body.BytesTotal,
		TotalKnown: body.BytesTotal > 0,
		Speed:      body.Speed,
	}, nil
}
