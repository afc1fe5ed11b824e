// Package core provides the shared types and errors for courier.
//
// This package exists to break import cycles between the root courier package
// and internal implementation packages. The courier package re-exports all
// public types from this package, so external users should import courier
// directly, not courier/core.
package core

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// Kind identifies which transfer slot a task occupies.
type Kind string

const (
	// KindDownload is a GET transfer whose bytes end up in the download directory.
	KindDownload Kind = "download"
	// KindUpload is a POST transfer whose result is the server's response metadata.
	KindUpload Kind = "upload"
)

// State is the lifecycle state of a transfer task.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// TaskInfo is a point-in-time snapshot of a transfer task.
type TaskInfo struct {
	ID       string
	Kind     Kind
	State    State
	Fraction float64
	URL      string
	// Err is the failure cause when State is StateFailed.
	Err error
}

// Progress describes how far a transfer has come.
type Progress struct {
	// BytesTransferred is the cumulative number of bytes moved, including
	// bytes received before a pause.
	BytesTransferred int64
	// TotalBytes is the expected size, or -1 if the server did not say.
	TotalBytes int64
	// Fraction is BytesTransferred/TotalBytes clamped to [0,1]; 0 while the
	// total is unknown.
	Fraction float64
}

// NewProgress builds a Progress from cumulative and total byte counts.
func NewProgress(transferred, total int64) Progress {
	p := Progress{BytesTransferred: transferred, TotalBytes: total}
	switch {
	case total > 0:
		p.Fraction = float64(transferred) / float64(total)
		if p.Fraction > 1 {
			p.Fraction = 1
		}
	case total == 0:
		p.Fraction = 1
	}
	return p
}

// EventType distinguishes progress notifications from terminal outcomes.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Terminal reports whether t ends a task's event stream.
func (t EventType) Terminal() bool {
	switch t {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	default:
		return false
	}
}

// Event is one message on a task's event stream.
type Event struct {
	TaskID string
	Kind   Kind
	Type   EventType
	// Progress is set on EventProgress.
	Progress Progress
	// Token is set on EventPaused when the transfer can be resumed.
	Token *ResumeToken
	// Result is set on EventCompleted.
	Result *Result
	// Err is set on EventFailed.
	Err error
}

// IsTerminal reports whether the event is the last one of its stream.
func (e Event) IsTerminal() bool {
	return e.Type.Terminal()
}

// ResponseMetadata is the raw outcome of an HTTP exchange.
type ResponseMetadata struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Result is the payload of a completed transfer.
type Result struct {
	TaskID string
	Kind   Kind
	// Path is the final location of a downloaded file.
	Path string
	// Response is the server's answer to an upload.
	Response *ResponseMetadata
	// Bytes is the total number of payload bytes moved.
	Bytes int64
}

// Continuation is what a server told us that lets a later ranged request
// pick up where an interrupted one stopped.
type Continuation struct {
	Offset       int64  `json:"offset"`
	Total        int64  `json:"total"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	AcceptRanges bool   `json:"accept_ranges"`
}

// Resumable reports whether a ranged request can continue from c.
func (c Continuation) Resumable() bool {
	return c.AcceptRanges && c.Offset > 0
}

// Validator returns the value to send in If-Range, preferring a strong ETag.
func (c Continuation) Validator() string {
	if c.ETag != "" && len(c.ETag) > 1 && c.ETag[:2] != "W/" {
		return c.ETag
	}
	return c.LastModified
}

// ResumeToken is an opaque capability to continue a paused download.
// It is valid only against the client that issued it and only once.
type ResumeToken struct {
	id   string
	url  string
	cont Continuation
}

// tokenBlob is the serialized form exposed through Bytes.
type tokenBlob struct {
	ID   string       `json:"id"`
	Cont Continuation `json:"cont"`
}

// NewResumeToken creates a token. Only the resume ledger should call this.
func NewResumeToken(id, url string, cont Continuation) *ResumeToken {
	return &ResumeToken{id: id, url: url, cont: cont}
}

// ID returns the ledger key of the token.
func (t *ResumeToken) ID() string { return t.id }

// URL returns the URL of the download the token continues.
func (t *ResumeToken) URL() string { return t.url }

// Continuation returns the continuation metadata captured at pause time.
func (t *ResumeToken) Continuation() Continuation { return t.cont }

// Bytes returns the opaque blob backing the token.
func (t *ResumeToken) Bytes() []byte {
	//nolint:errchkjson // tokenBlob contains only marshalable fields
	raw, _ := json.Marshal(tokenBlob{ID: t.id, Cont: t.cont})
	out := make([]byte, base64.RawURLEncoding.EncodedLen(len(raw)))
	base64.RawURLEncoding.Encode(out, raw)
	return out
}
