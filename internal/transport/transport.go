// Package transport performs the HTTP exchanges behind every transfer.
package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/meigma/courier/core"
)

// Sink receives downloaded bytes. It must allow truncation so a download
// whose range request was ignored can start over from byte zero.
type Sink interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
}

// Outcome describes what a download request achieved, including when it
// stopped early.
type Outcome struct {
	StatusCode int
	Header     http.Header
	// Written is the number of bytes in the sink, including bytes from
	// before a resume.
	Written int64
	// Total is the full size of the resource, or -1 if unknown.
	Total int64
	// Continuation lets a later request pick up after Written.
	Continuation core.Continuation
}

// Transport is the HTTP surface a client drives.
//
// Get writes the resource at url into dst, continuing from from when it is
// resumable. When ctx is cancelled mid-body Get returns the partial Outcome
// alongside the error so the caller can decide whether to keep the bytes.
// Post sends body and returns the server response without judging its status.
// Fetch performs a plain GET and returns the decoded body.
type Transport interface {
	Get(ctx context.Context, url string, from *core.Continuation, dst Sink, onProgress func(transferred, total int64)) (*Outcome, error)
	Post(ctx context.Context, url string, body []byte, contentType string, onProgress func(transferred, total int64)) (*core.ResponseMetadata, error)
	Fetch(ctx context.Context, url string) (*core.ResponseMetadata, error)
}
