package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
var (
	// ErrBadURL indicates the input URL is malformed; no I/O was attempted.
	ErrBadURL = errors.New("courier: bad url")

	// ErrTransportFailure indicates the HTTP exchange itself failed.
	ErrTransportFailure = errors.New("courier: transport failure")

	// ErrBadServerResponse indicates a non-2xx status code.
	ErrBadServerResponse = errors.New("courier: bad server response")

	// ErrDecodeFailed indicates the payload did not match the expected shape.
	ErrDecodeFailed = errors.New("courier: decode failed")

	// ErrFetchFailed indicates a fetch could not obtain a usable payload.
	ErrFetchFailed = errors.New("courier: fetch failed")

	// ErrAlreadyInProgress indicates a transfer of the same kind is running.
	ErrAlreadyInProgress = errors.New("courier: transfer already in progress")

	// ErrInvalidResumeToken indicates a consumed, foreign or malformed token.
	ErrInvalidResumeToken = errors.New("courier: invalid resume token")

	// ErrCancelled indicates the caller cancelled the transfer.
	ErrCancelled = errors.New("courier: cancelled")

	// ErrFileSystemFailure indicates bytes were received but could not be placed.
	ErrFileSystemFailure = errors.New("courier: file system failure")

	// ErrDigestMismatch indicates a downloaded file did not match its expected digest.
	ErrDigestMismatch = errors.New("courier: digest mismatch")

	// ErrTaskFinished indicates an operation on a task that already reached a terminal state.
	ErrTaskFinished = errors.New("courier: task finished")

	// ErrClosed indicates an operation was attempted on a closed client.
	ErrClosed = errors.New("courier: client closed")
)

// TransportError wraps a failure of the underlying HTTP exchange.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("courier: transport failure: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Is makes TransportError match ErrTransportFailure.
func (e *TransportError) Is(target error) bool { return target == ErrTransportFailure }

// StatusError reports a non-2xx HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("courier: bad server response: status %d", e.StatusCode)
}

// Is makes StatusError match ErrBadServerResponse.
func (e *StatusError) Is(target error) bool { return target == ErrBadServerResponse }

// DecodeError wraps a payload that could not be deserialized.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("courier: decode failed: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Is makes DecodeError match ErrDecodeFailed.
func (e *DecodeError) Is(target error) bool { return target == ErrDecodeFailed }

// FileSystemError reports that received bytes could not be moved into place.
type FileSystemError struct {
	Path  string
	Cause error
}

func (e *FileSystemError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("courier: file system failure: %v", e.Cause)
	}
	return fmt.Sprintf("courier: file system failure at %s: %v", e.Path, e.Cause)
}

func (e *FileSystemError) Unwrap() error { return e.Cause }

// Is makes FileSystemError match ErrFileSystemFailure.
func (e *FileSystemError) Is(target error) bool { return target == ErrFileSystemFailure }

// FetchError is returned by fetch operations for server or network problems.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("courier: fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("courier: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is makes FetchError match ErrFetchFailed.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }
