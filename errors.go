package courier

import "github.com/meigma/courier/core"

// Sentinel errors for common failure conditions.
// Re-exported from core package.
var (
	// ErrBadURL indicates the input URL is malformed; no I/O was attempted.
	ErrBadURL = core.ErrBadURL

	// ErrTransportFailure indicates the HTTP exchange itself failed.
	ErrTransportFailure = core.ErrTransportFailure

	// ErrBadServerResponse indicates a non-2xx status code.
	ErrBadServerResponse = core.ErrBadServerResponse

	// ErrDecodeFailed indicates the payload did not match the expected shape.
	ErrDecodeFailed = core.ErrDecodeFailed

	// ErrFetchFailed indicates a fetch could not obtain a usable payload.
	ErrFetchFailed = core.ErrFetchFailed

	// ErrAlreadyInProgress indicates a transfer of the same kind is already running.
	ErrAlreadyInProgress = core.ErrAlreadyInProgress

	// ErrInvalidResumeToken indicates a consumed, foreign or malformed resume token.
	ErrInvalidResumeToken = core.ErrInvalidResumeToken

	// ErrCancelled indicates the transfer was cancelled.
	ErrCancelled = core.ErrCancelled

	// ErrFileSystemFailure indicates received bytes could not be placed on disk.
	ErrFileSystemFailure = core.ErrFileSystemFailure

	// ErrDigestMismatch indicates a download did not match its expected digest.
	ErrDigestMismatch = core.ErrDigestMismatch

	// ErrTaskFinished indicates an operation on a task that already finished.
	ErrTaskFinished = core.ErrTaskFinished

	// ErrClosed indicates an operation was attempted on a closed client.
	ErrClosed = core.ErrClosed
)

// Typed errors. Each matches its sentinel with errors.Is and unwraps to its cause.
// Re-exported from core package.
type (
	TransportError  = core.TransportError
	StatusError     = core.StatusError
	DecodeError     = core.DecodeError
	FileSystemError = core.FileSystemError
	FetchError      = core.FetchError
)
