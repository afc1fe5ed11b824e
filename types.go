package courier

import "github.com/meigma/courier/core"

// Kind identifies a transfer slot. Re-exported from core package.
type Kind = core.Kind

// Transfer kinds.
const (
	KindDownload = core.KindDownload
	KindUpload   = core.KindUpload
)

// State is the lifecycle state of a transfer. Re-exported from core package.
type State = core.State

// Transfer states.
const (
	StateIdle      = core.StateIdle
	StateRunning   = core.StateRunning
	StatePaused    = core.StatePaused
	StateCompleted = core.StateCompleted
	StateFailed    = core.StateFailed
	StateCancelled = core.StateCancelled
)

// EventType distinguishes progress notifications from terminal outcomes.
// Re-exported from core package.
type EventType = core.EventType

// Event types. Completed, Failed and Cancelled are terminal.
const (
	EventProgress  = core.EventProgress
	EventPaused    = core.EventPaused
	EventResumed   = core.EventResumed
	EventCompleted = core.EventCompleted
	EventFailed    = core.EventFailed
	EventCancelled = core.EventCancelled
)

// Re-exported from core package.
type (
	// TaskInfo is a snapshot of a transfer.
	TaskInfo = core.TaskInfo
	// Event is one message on a transfer's event stream.
	Event = core.Event
	// Result is the payload of a completed transfer.
	Result = core.Result
	// ResponseMetadata is the status, headers and body of an HTTP response.
	ResponseMetadata = core.ResponseMetadata
	// Continuation describes where an interrupted download can pick up.
	Continuation = core.Continuation
	// ResumeToken is an opaque, single-use capability to continue a paused download.
	ResumeToken = core.ResumeToken
)
