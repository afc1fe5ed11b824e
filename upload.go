package courier

import (
	"bytes"
	"context"
	"fmt"

	"github.com/meigma/courier/internal/decode"
)

// StartUpload POSTs body to url with the given content type and returns a
// handle to observe it. Only one upload runs at a time. The server's
// response is passed through as the result whatever its status.
func (c *Client) StartUpload(ctx context.Context, url string, body []byte, contentType string) (*Transfer, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.slots[KindUpload]; ok {
		return nil, fmt.Errorf("upload %s: %w", url, ErrAlreadyInProgress)
	}

	j := c.newJob(KindUpload, url)
	j.body = bytes.Clone(body)
	j.contentType = contentType
	if err := j.task.Start(); err != nil {
		return nil, err
	}
	c.slots[KindUpload] = j
	c.launch(ctx, j, c.runUpload)

	c.logger.Debug("upload started", "task", j.task.ID(), "url", url, "bytes", len(body))
	return j.handle, nil
}

// CancelUpload cancels the running upload. It does nothing when no upload is active.
func (c *Client) CancelUpload() {
	c.mu.Lock()
	j, ok := c.slots[KindUpload]
	c.mu.Unlock()

	if ok {
		c.cancelJob(j)
	}
}

// Upload is the blocking form of StartUpload.
func (c *Client) Upload(ctx context.Context, url string, body []byte, contentType string) (*ResponseMetadata, error) {
	tr, err := c.StartUpload(ctx, url, body, contentType)
	if err != nil {
		return nil, err
	}

	result, err := tr.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.cancelIfActive(KindUpload, tr.ID())
		}
		return nil, err
	}
	return result.Response, nil
}

// runUpload is the worker body of an upload.
func (c *Client) runUpload(ctx context.Context, j *job) {
	meta, err := c.transport.Post(ctx, j.task.URL(), j.body, j.contentType, func(transferred, total int64) {
		c.emitProgress(j, transferred, total)
	})
	if err == nil {
		c.complete(j, &Result{
			TaskID:   j.task.ID(),
			Kind:     KindUpload,
			Response: meta,
			Bytes:    int64(len(j.body)),
		})
		return
	}

	if stopped(ctx) != nil {
		c.cancelled(j)
		return
	}
	c.fail(j, err)
}

// EncodeJSON serializes v as a JSON upload body and returns it with its content type.
func EncodeJSON(v any) ([]byte, string, error) {
	return decode.EncodeJSON(v)
}

// EncodeYAML serializes v as a YAML upload body and returns it with its content type.
func EncodeYAML(v any) ([]byte, string, error) {
	return decode.EncodeYAML(v)
}
