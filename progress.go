package courier

import "github.com/meigma/courier/core"

// Progress describes how far a transfer has come.
// Re-exported from core package.
type Progress = core.Progress

// ProgressFunc receives progress updates from Transfer.Notify.
// Implementations should be efficient as this may be called frequently.
type ProgressFunc func(Progress)

// DoneFunc receives the outcome of a transfer from Transfer.Notify.
// Exactly one of result and err is non-nil.
type DoneFunc func(result *Result, err error)
