package courier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/meigma/courier/core"
	"github.com/meigma/courier/internal/destination"
	"github.com/meigma/courier/internal/resume"
	"github.com/meigma/courier/internal/stream"
	"github.com/meigma/courier/internal/task"
	"github.com/meigma/courier/internal/transport"
)

// Cancellation causes set on a worker's context.
var (
	errPause  = errors.New("pause requested")
	errCancel = errors.New("cancel requested")
)

// Client transfers data over HTTP. It runs at most one download and one
// upload at a time; each is tracked by a Transfer handle.
type Client struct {
	transport Transport
	dest      *destination.Resolver
	ledger    *resume.Ledger
	logger    *slog.Logger

	// configuration
	httpClient  *http.Client
	fs          billy.Filesystem
	downloadDir string
	strict      bool
	compression bool
	userAgent   string

	mu     sync.Mutex
	slots  map[core.Kind]*job
	closed bool
}

// job is the client's bookkeeping for one active or paused transfer.
type job struct {
	task   *task.Task
	stream *stream.Stream
	handle *Transfer

	// download only
	cfg  downloadConfig
	from *core.Continuation

	// upload only
	body        []byte
	contentType string

	// set while a worker runs; guarded by Client.mu
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// NewClient creates a new courier client.
//
// By default downloads land in $XDG_DATA_HOME/courier/downloads and requests
// go through a pooled HTTP client owned by this Client.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger:      slog.New(slog.DiscardHandler),
		compression: true,
		ledger:      resume.New(),
		slots:       make(map[core.Kind]*job),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.fs == nil {
		if c.downloadDir == "" {
			c.downloadDir = DefaultDownloadDir()
		}
		c.fs = osfs.New(c.downloadDir)
	} else {
		c.downloadDir = c.fs.Root()
	}
	c.dest = destination.New(c.fs, c.logger)

	// Wire up default transport
	if c.transport == nil {
		topts := []transport.Option{
			transport.WithCompression(c.compression),
			transport.WithLogger(c.logger),
		}
		if c.httpClient != nil {
			topts = append(topts, transport.WithClient(c.httpClient))
		}
		if c.userAgent != "" {
			topts = append(topts, transport.WithUserAgent(c.userAgent))
		}
		c.transport = transport.New(topts...)
	}

	return c, nil
}

// DefaultDownloadDir returns $XDG_DATA_HOME/courier/downloads.
func DefaultDownloadDir() string {
	return filepath.Join(xdg.DataHome, "courier", "downloads")
}

// DownloadDir returns the directory finished downloads are placed in.
func (c *Client) DownloadDir() string {
	return c.downloadDir
}

// Active returns a snapshot of the running or paused transfer of kind.
func (c *Client) Active(kind Kind) (TaskInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.slots[kind]
	if !ok {
		return TaskInfo{}, false
	}
	return j.task.Info(), true
}

// Close cancels every active transfer. Later starts fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.CancelDownload()
	c.CancelUpload()
	return nil
}

// checkURL rejects anything that is not an absolute http(s) URL.
func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, ErrBadURL)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) url: %w", raw, ErrBadURL)
	}
	return nil
}

// newJob creates a job with its task, stream and handle. Caller holds c.mu.
func (c *Client) newJob(kind Kind, rawURL string) *job {
	t := task.New(kind, rawURL)
	s := stream.New()
	return &job{
		task:   t,
		stream: s,
		handle: &Transfer{task: t, stream: s},
	}
}

// launch starts run for j on a fresh cancellable context. Caller holds c.mu.
func (c *Client) launch(ctx context.Context, j *job, run func(context.Context, *job)) {
	wctx, cancel := context.WithCancelCause(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	done := j.done
	go func() {
		defer close(done)
		defer cancel(nil)
		run(wctx, j)
	}()
}

// interrupt cancels j's worker with cause and waits for it to exit.
// A worker that is already winding down is waited for but not cancelled.
func (c *Client) interrupt(j *job, cause error) {
	c.mu.Lock()
	cancel, done := j.cancel, j.done
	c.mu.Unlock()

	if cancel != nil {
		cancel(cause)
	}
	if done != nil {
		<-done
	}
}

// release frees j's slot if it still holds it.
func (c *Client) release(j *job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slots[j.task.Kind()] == j {
		delete(c.slots, j.task.Kind())
	}
	j.cancel = nil
}

// cancelIfActive cancels the transfer of kind if it is still the one with id.
func (c *Client) cancelIfActive(kind Kind, id string) {
	c.mu.Lock()
	j, ok := c.slots[kind]
	c.mu.Unlock()

	if !ok || j.task.ID() != id {
		return
	}
	c.cancelJob(j)
}

// cancelJob stops j's worker, then cancels j directly if it was left paused.
func (c *Client) cancelJob(j *job) {
	c.interrupt(j, errCancel)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPausedLocked(j)
}

// emitProgress records and publishes progress unless it would move backwards.
func (c *Client) emitProgress(j *job, transferred, total int64) {
	p := core.NewProgress(transferred, total)
	if j.task.Progress(p) {
		j.stream.Publish(core.Event{TaskID: j.task.ID(), Kind: j.task.Kind(), Type: core.EventProgress, Progress: p})
	}
}

// complete publishes a final full progress event if needed, then the result.
func (c *Client) complete(j *job, result *Result) {
	if last := j.task.LastProgress(); last.Fraction < 1 {
		c.emitProgress(j, result.Bytes, result.Bytes)
	}

	c.release(j)
	if err := j.task.Complete(); err != nil {
		c.logger.Warn("complete transfer", "task", j.task.ID(), "error", err)
	}
	c.logger.Debug("transfer completed", "task", j.task.ID(), "kind", j.task.Kind(), "bytes", result.Bytes)
	j.stream.Publish(core.Event{TaskID: j.task.ID(), Kind: j.task.Kind(), Type: core.EventCompleted, Result: result})
}

// fail moves j to failed and publishes err.
func (c *Client) fail(j *job, err error) {
	c.release(j)
	if ferr := j.task.Fail(err); ferr != nil {
		c.logger.Warn("fail transfer", "task", j.task.ID(), "error", ferr)
	}
	c.logger.Debug("transfer failed", "task", j.task.ID(), "kind", j.task.Kind(), "error", err)
	j.stream.Publish(core.Event{TaskID: j.task.ID(), Kind: j.task.Kind(), Type: core.EventFailed, Err: err})
}

// cancelled is called by a worker whose context ended early. It moves j to
// cancelled, drops a download's spool file and publishes the outcome.
func (c *Client) cancelled(j *job) {
	c.release(j)
	c.discardSpool(j)
	if !j.task.Cancel() {
		return
	}
	c.logger.Debug("transfer cancelled", "task", j.task.ID(), "kind", j.task.Kind())
	j.stream.Publish(core.Event{TaskID: j.task.ID(), Kind: j.task.Kind(), Type: core.EventCancelled})
}

// cancelPausedLocked cancels j if it is paused, dropping its token and
// partial bytes. Caller holds c.mu.
func (c *Client) cancelPausedLocked(j *job) {
	if j.task.State() != core.StatePaused {
		return
	}
	token := j.task.Token()
	if !j.task.Cancel() {
		return
	}
	if c.slots[j.task.Kind()] == j {
		delete(c.slots, j.task.Kind())
	}
	c.ledger.Discard(token)
	c.discardSpool(j)
	c.logger.Debug("paused transfer cancelled", "task", j.task.ID())
	j.stream.Publish(core.Event{TaskID: j.task.ID(), Kind: j.task.Kind(), Type: core.EventCancelled})
}

func (c *Client) discardSpool(j *job) {
	if j.task.Kind() != core.KindDownload {
		return
	}
	if err := c.dest.DiscardSpool(j.task.ID()); err != nil {
		c.logger.Warn("discard spool", "task", j.task.ID(), "error", err)
	}
}

// stopped reports how a worker context ended: errPause, errCancel, a parent
// cancellation, or nil if it is still live.
func stopped(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return context.Cause(ctx)
}
