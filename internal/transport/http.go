package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/meigma/courier/core"
	"github.com/meigma/courier/internal/progress"
)

// Compile-time interface implementation check.
var _ Transport = (*HTTP)(nil)

// Option configures an HTTP transport.
type Option func(*HTTP)

// HTTP implements Transport over net/http.
type HTTP struct {
	client      *http.Client
	userAgent   string
	compression bool
	logger      *slog.Logger
}

// New creates an HTTP transport. Without WithClient each transport owns a
// pooled client of its own rather than sharing http.DefaultClient.
func New(opts ...Option) *HTTP {
	h := &HTTP{
		compression: true,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = cleanhttp.DefaultPooledClient()
	}
	return h
}

// WithClient sets the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(h *HTTP) {
		h.userAgent = ua
	}
}

// WithCompression controls whether fetches advertise zstd and gzip.
func WithCompression(enabled bool) Option {
	return func(h *HTTP) {
		h.compression = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// Get downloads url into dst.
func (h *HTTP) Get(ctx context.Context, url string, from *core.Continuation, dst Sink, onProgress func(transferred, total int64)) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}
	h.decorate(req)
	// Offsets must refer to stored bytes, so ask for the identity encoding.
	req.Header.Set("Accept-Encoding", "identity")

	var offset int64
	prior := core.Continuation{}
	if from != nil {
		prior = *from
	}
	if prior.Resumable() {
		offset = prior.Offset
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		if v := prior.Validator(); v != "" {
			req.Header.Set("If-Range", v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		// Nothing new was received; whatever we had before is still good.
		return &Outcome{Written: offset, Total: prior.Total, Continuation: prior}, &core.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	out := &Outcome{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Total:      resp.ContentLength,
	}

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		total, rangeErr := validateContentRange(resp.Header.Get("Content-Range"), offset)
		if rangeErr != nil {
			return out, &core.TransportError{Cause: rangeErr}
		}
		out.Total = total
		if total < 0 && resp.ContentLength >= 0 {
			out.Total = offset + resp.ContentLength
		}
		h.logger.Debug("resuming download", "url", url, "offset", offset, "total", out.Total)
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if offset > 0 {
			h.logger.Debug("server ignored range, restarting", "url", url, "status", resp.StatusCode)
		}
		offset = 0
		if err := dst.Truncate(0); err != nil {
			return out, &core.FileSystemError{Cause: err}
		}
		if _, err := dst.Seek(0, io.SeekStart); err != nil {
			return out, &core.FileSystemError{Cause: err}
		}
	default:
		return out, &core.StatusError{StatusCode: resp.StatusCode}
	}

	out.Continuation = core.Continuation{
		Total:        out.Total,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		AcceptRanges: resp.Header.Get("Accept-Ranges") == "bytes" || resp.StatusCode == http.StatusPartialContent,
	}
	if resp.StatusCode == http.StatusPartialContent {
		if out.Continuation.ETag == "" {
			out.Continuation.ETag = prior.ETag
		}
		if out.Continuation.LastModified == "" {
			out.Continuation.LastModified = prior.LastModified
		}
	}

	w := progress.NewWriterAt(sinkWriter{dst}, offset, out.Total, onProgress)
	_, copyErr := io.Copy(w, resp.Body)
	out.Written = w.Written()
	out.Continuation.Offset = out.Written

	if copyErr != nil {
		var fsErr *core.FileSystemError
		if errors.As(copyErr, &fsErr) {
			return out, fsErr
		}
		return out, &core.TransportError{Cause: copyErr}
	}
	return out, nil
}

// Post uploads body to url.
func (h *HTTP) Post(ctx context.Context, url string, body []byte, contentType string, onProgress func(transferred, total int64)) (*core.ResponseMetadata, error) {
	var reader io.Reader = http.NoBody
	pr := progress.NewReader(bytes.NewReader(body), int64(len(body)), onProgress)
	if len(body) > 0 {
		reader = pr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}
	h.decorate(req)
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}

	h.logger.Debug("upload answered", "url", url, "status", resp.StatusCode, "sent", pr.Transferred())
	return &core.ResponseMetadata{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Fetch GETs url and returns the body with any content encoding removed.
func (h *HTTP) Fetch(ctx context.Context, url string) (*core.ResponseMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}
	h.decorate(req)
	if h.compression {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	encoding := resp.Header.Get("Content-Encoding")
	body, release, err := decodedBody(resp.Body, encoding)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}
	defer release()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &core.TransportError{Cause: err}
	}

	header := resp.Header.Clone()
	if encoding != "" {
		header.Del("Content-Encoding")
		header.Del("Content-Length")
	}

	h.logger.Debug("fetched", "url", url, "status", resp.StatusCode, "encoding", encoding, "bytes", len(data))
	return &core.ResponseMetadata{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       data,
	}, nil
}

func (h *HTTP) decorate(req *http.Request) {
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
}

// sinkWriter tags write failures as file system errors so they are not
// mistaken for network trouble.
type sinkWriter struct {
	w io.Writer
}

func (s sinkWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, &core.FileSystemError{Cause: err}
	}
	return n, nil
}
