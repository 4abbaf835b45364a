// Package driveapi implements the Drive-API backend driver (spec §4.1):
// retrieval from an S3- or Azure-backed cloud drive by URI, grounded on
// the teacher's internal/cloud/providers/s3 and .../azure clients (their
// GetObject/range-GET and blob download shapes), adapted from the
// teacher's job-output-credential model to a bare link+credentials one.
package driveapi

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rescale-labs/taskorc/internal/drivers"
	"github.com/rescale-labs/taskorc/internal/models"
)

// Kind distinguishes the two cloud-drive backends this driver fans into.
type Kind string

const (
	KindS3    Kind = "s3"
	KindAzure Kind = "azure"
)

// Config supplies the credentials for both backends; only the one
// addressed by a given link's scheme is used.
type Config struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string

	AzureAccountURL string
	AzureAccountKey string
}

type objectRef struct {
	kind      Kind
	bucket    string // S3 bucket or Azure container
	key       string // object key or blob name
}

// parseDriveLink accepts "s3://bucket/key..." and "azure://container/blob..."
// forms, the two drive-link schemes the dispatcher normalizes gdrive-id /
// bucket-path user input into (spec §4.7, §3 UserSettings gdrive id).
func parseDriveLink(link string) (objectRef, error) {
	u, err := url.Parse(link)
	if err != nil {
		return objectRef{}, fmt.Errorf("malformed drive link: %w", err)
	}
	switch u.Scheme {
	case "s3":
		return objectRef{kind: KindS3, bucket: u.Host, key: strings.TrimPrefix(u.Path, "/")}, nil
	case "azure":
		return objectRef{kind: KindAzure, bucket: u.Host, key: strings.TrimPrefix(u.Path, "/")}, nil
	default:
		return objectRef{}, fmt.Errorf("unsupported drive link scheme %q", u.Scheme)
	}
}

type transferState struct {
	mu        sync.Mutex
	state     drivers.State
	processed int64
	total     int64
	errMsg    string
	cancel    context.CancelFunc
}

// Driver implements drivers.Driver for s3:// and azure:// links.
type Driver struct {
	cfg Config

	mu        sync.Mutex
	transfers map[drivers.Handle]*transferState
	seq       int
}

func New(cfg Config) *Driver {
	return &Driver{cfg: cfg, transfers: make(map[drivers.Handle]*transferState)}
}

func (d *Driver) Name() string         { return "driveapi" }
func (d *Driver) SupportsSelect() bool { return false }
func (d *Driver) CommitSelection(drivers.Handle, []int) error {
	return fmt.Errorf("drive-api: select-mode not supported")
}

func (d *Driver) Begin(ctx context.Context, link, dest string, opts drivers.BeginOptions, listener *models.Listener) (drivers.Handle, error) {
	if opts.Select {
		return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: "drive-api does not support select-mode"}
	}
	ref, err := parseDriveLink(link)
	if err != nil {
		return "", &drivers.BeginError{Kind: drivers.ErrInvalidLink, Message: err.Error()}
	}

	tctx, cancel := context.WithCancel(ctx)
	ts := &transferState{state: drivers.StateActive, cancel: cancel}

	d.mu.Lock()
	d.seq++
	handle := drivers.Handle(fmt.Sprintf("driveapi-%d", d.seq))
	d.transfers[handle] = ts
	d.mu.Unlock()

	listener.OnDownloadStart()

	switch ref.kind {
	case KindS3:
		go d.runS3(tctx, ref, dest, ts, listener)
	case KindAzure:
		go d.runAzure(tctx, ref, dest, ts, listener)
	}

	return handle, nil
}

func (d *Driver) runS3(ctx context.Context, ref objectRef, dest string, ts *transferState, listener *models.Listener) {
	client, err := d.s3Client(ctx)
	if err != nil {
		d.fail(ts, listener, err.Error())
		return
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(ref.bucket), Key: aws.String(ref.key)})
	if err != nil {
		d.fail(ts, listener, err.Error())
		return
	}
	defer out.Body.Close()

	ts.mu.Lock()
	if out.ContentLength != nil {
		ts.total = *out.ContentLength
	}
	ts.mu.Unlock()

	if err := copyToFile(dest, out.Body, ts); err != nil {
		d.failOrCancel(ctx, ts, listener, err)
		return
	}
	d.succeed(ts, listener)
}

func (d *Driver) s3Client(ctx context.Context) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if d.cfg.AWSAccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(d.cfg.AWSAccessKeyID, d.cfg.AWSSecretAccessKey, "")))
	}
	if d.cfg.AWSRegion != "" {
		optFns = append(optFns, awsconfig.WithRegion(d.cfg.AWSRegion))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("drive-api: load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (d *Driver) runAzure(ctx context.Context, ref objectRef, dest string, ts *transferState, listener *models.Listener) {
	cred, err := azblob.NewSharedKeyCredential(extractAccountName(d.cfg.AzureAccountURL), d.cfg.AzureAccountKey)
	if err != nil {
		d.fail(ts, listener, err.Error())
		return
	}
	client, err := azblob.NewClientWithSharedKeyCredential(d.cfg.AzureAccountURL, cred, nil)
	if err != nil {
		d.fail(ts, listener, err.Error())
		return
	}

	resp, err := client.DownloadStream(ctx, ref.bucket, ref.key, nil)
	if err != nil {
		d.fail(ts, listener, err.Error())
		return
	}
	defer resp.Body.Close()

	ts.mu.Lock()
	if resp.ContentLength != nil {
		ts.total = *resp.ContentLength
	}
	ts.mu.Unlock()

	if err := copyToFile(dest, resp.Body, ts); err != nil {
		d.failOrCancel(ctx, ts, listener, err)
		return
	}
	d.succeed(ts, listener)
}

func extractAccountName(accountURL string) string {
	u, err := url.Parse(accountURL)
	if err != nil {
		return ""
	}
	return strings.SplitN(u.Host, ".", 2)[0]
}

func copyToFile(dest string, r io.Reader, ts *transferState) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, &countingReader{r: r, ts: ts})
	return err
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

func (d *Driver) fail(ts *transferState, listener *models.Listener, msg string) {
	ts.mu.Lock()
	ts.state = drivers.StateFailed
	ts.errMsg = msg
	ts.mu.Unlock()
	listener.OnDownloadError(msg)
}

func (d *Driver) failOrCancel(ctx context.Context, ts *transferState, listener *models.Listener, err error) {
	if ctx.Err() != nil {
		d.fail(ts, listener, "cancelled")
		return
	}
	d.fail(ts, listener, err.Error())
}

func (d *Driver) succeed(ts *transferState, listener *models.Listener) {
	ts.mu.Lock()
	ts.state = drivers.StateDone
	ts.mu.Unlock()
	listener.OnDownloadComplete()
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
		return drivers.ProgressSnapshot{}, fmt.Errorf("drive-api: unknown handle %s", handle)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	var eta time.Duration
	return drivers.ProgressSnapshot{
		State:      ts.state,
		Processed:  ts.processed,
		Total:      ts.total,
		TotalKnown: ts.total > 0,
		ErrorMsg:   ts.errMsg,
		ETA:        eta,
	}, nil
}
