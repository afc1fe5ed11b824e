package courier

import (
	"context"
	"errors"
	"fmt"

	"github.com/meigma/courier/core"
	"github.com/meigma/courier/internal/destination"
	"github.com/meigma/courier/internal/safepath"
	"github.com/meigma/courier/internal/transport"
)

// StartDownload begins downloading url into the download directory and
// returns a handle to observe it. ctx bounds the lifetime of the transfer.
//
// Only one download runs at a time: if another is running the call fails
// with ErrAlreadyInProgress and leaves it alone. A paused download of the
// same url is resumed and its existing handle returned, keeping the options
// it was started with (opts are ignored in that case); a paused download of
// a different url is cancelled first.
//
// A filename given with WithFilename must be a plain name inside the
// download directory, otherwise the call fails with ErrFileSystemFailure
// before any request is made.
func (c *Client) StartDownload(ctx context.Context, url string, opts ...DownloadOption) (*Transfer, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}

	var cfg downloadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.filename != "" {
		if err := safepath.ValidateName(cfg.filename); err != nil {
			return nil, &core.FileSystemError{Path: cfg.filename, Cause: err}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if j, ok := c.slots[KindDownload]; ok {
		switch j.task.State() {
		case core.StatePaused:
			if j.task.URL() == url {
				token := j.task.Token()
				if _, err := c.ledger.Redeem(token); err != nil {
					return nil, fmt.Errorf("resume %s: %w", url, err)
				}
				if err := c.resumeLocked(ctx, j, token.Continuation()); err != nil {
					return nil, err
				}
				return j.handle, nil
			}
			c.cancelPausedLocked(j)
		default:
			return nil, fmt.Errorf("download %s: %w", url, ErrAlreadyInProgress)
		}
	}

	j := c.newJob(KindDownload, url)
	j.cfg = cfg
	if err := j.task.Start(); err != nil {
		return nil, err
	}
	c.slots[KindDownload] = j
	c.launch(ctx, j, c.runDownload)

	c.logger.Debug("download started", "task", j.task.ID(), "url", url)
	return j.handle, nil
}

// ResumeDownload continues the paused download token was issued for.
// Each token works once and only with the client that issued it; anything
// else fails with ErrInvalidResumeToken.
func (c *Client) ResumeDownload(ctx context.Context, token *ResumeToken) (*Transfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	taskID, err := c.ledger.Redeem(token)
	if err != nil {
		return nil, err
	}

	j, ok := c.slots[KindDownload]
	if !ok || j.task.ID() != taskID || j.task.State() != core.StatePaused {
		return nil, fmt.Errorf("resume task %s: %w", taskID, ErrInvalidResumeToken)
	}
	if err := c.resumeLocked(ctx, j, token.Continuation()); err != nil {
		return nil, err
	}
	return j.handle, nil
}

// PauseDownload stops the running download and returns a token to continue
// it later. It returns nil when nothing is downloading, or when the bytes
// received so far cannot be continued, in which case the download is
// cancelled. Pausing an already paused download returns its token again.
func (c *Client) PauseDownload() *ResumeToken {
	c.mu.Lock()
	j, ok := c.slots[KindDownload]
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if j.task.State() != core.StatePaused {
		c.interrupt(j, errPause)
	}
	if j.task.State() != core.StatePaused {
		return nil
	}
	return j.task.Token()
}

// CancelDownload cancels the running or paused download, releasing its
// connection and discarding partial bytes. It does nothing when no download
// is active.
func (c *Client) CancelDownload() {
	c.mu.Lock()
	j, ok := c.slots[KindDownload]
	c.mu.Unlock()

	if ok {
		c.cancelJob(j)
	}
}

// Download is the blocking form of StartDownload. It returns the path of the
// finished file. If ctx ends first the download is cancelled.
func (c *Client) Download(ctx context.Context, url string, opts ...DownloadOption) (string, error) {
	tr, err := c.StartDownload(ctx, url, opts...)
	if err != nil {
		return "", err
	}

	result, err := tr.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.cancelIfActive(KindDownload, tr.ID())
		}
		return "", err
	}
	return result.Path, nil
}

// resumeLocked restarts the worker of paused job j from cont. Caller holds c.mu.
func (c *Client) resumeLocked(ctx context.Context, j *job, cont Continuation) error {
	if err := j.task.Start(); err != nil {
		return err
	}
	j.from = &cont
	j.stream.Publish(core.Event{TaskID: j.task.ID(), Kind: KindDownload, Type: core.EventResumed})
	c.launch(ctx, j, c.runDownload)

	c.logger.Debug("download resumed", "task", j.task.ID(), "offset", cont.Offset)
	return nil
}

// runDownload is the worker body of a download.
func (c *Client) runDownload(ctx context.Context, j *job) {
	id := j.task.ID()

	var offset int64
	if j.from != nil {
		offset = j.from.Offset
	}
	f, at, err := c.dest.OpenSpool(id, offset)
	if err != nil {
		c.fail(j, err)
		return
	}
	from := j.from
	if from != nil && at != from.Offset {
		from = nil
	}

	out, err := c.transport.Get(ctx, j.task.URL(), from, f, func(transferred, total int64) {
		c.emitProgress(j, transferred, total)
	})
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = &core.FileSystemError{Path: c.dest.SpoolPath(id), Cause: closeErr}
	}

	if err == nil {
		c.finishDownload(j, out)
		return
	}

	switch cause := stopped(ctx); {
	case errors.Is(cause, errPause):
		c.settlePause(j, out)
	case cause != nil:
		c.cancelled(j)
	default:
		c.discardSpool(j)
		c.fail(j, err)
	}
}

// finishDownload verifies and places the spool file of a completed transfer.
func (c *Client) finishDownload(j *job, out *transport.Outcome) {
	id := j.task.ID()

	if j.cfg.digest != "" {
		if err := c.dest.Verify(id, j.cfg.digest); err != nil {
			c.discardSpool(j)
			c.fail(j, err)
			return
		}
	}

	name := j.cfg.filename
	if name == "" {
		name = destination.SuggestName(out.Header, j.task.URL())
	}
	path, err := c.dest.Place(id, name)
	if err != nil {
		c.discardSpool(j)
		c.fail(j, err)
		return
	}

	c.complete(j, &Result{
		TaskID: id,
		Kind:   KindDownload,
		Path:   path,
		Bytes:  out.Written,
	})
}

// settlePause parks j with a resume token, or cancels it when the bytes
// received so far cannot be continued.
func (c *Client) settlePause(j *job, out *transport.Outcome) {
	if out == nil || !out.Continuation.Resumable() {
		c.logger.Debug("nothing resumable at pause, cancelling", "task", j.task.ID())
		c.cancelled(j)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.ledger.Issue(j.task.ID(), j.task.URL(), out.Continuation)
	j.cancel = nil
	if _, err := j.task.Pause(token); err != nil {
		c.ledger.Discard(token)
		c.logger.Warn("pause download", "task", j.task.ID(), "error", err)
		return
	}

	c.logger.Debug("download paused", "task", j.task.ID(), "offset", out.Continuation.Offset)
	j.stream.Publish(core.Event{
		TaskID:   j.task.ID(),
		Kind:     KindDownload,
		Type:     core.EventPaused,
		Progress: j.task.LastProgress(),
		Token:    token,
	})
}
