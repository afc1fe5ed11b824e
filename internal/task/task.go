// Package task implements the transfer task state machine.
package task

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/meigma/courier/core"
)

// Task tracks the lifecycle of one transfer.
//
// All methods are safe for concurrent use. The owning client is expected to
// be the only caller of the mutating methods.
type Task struct {
	id   string
	kind core.Kind
	url  string

	mu       sync.Mutex
	state    core.State
	progress core.Progress
	token    *core.ResumeToken
	err      error
}

// New creates an idle task with a fresh random ID.
func New(kind core.Kind, url string) *Task {
	return &Task{
		id:       uuid.NewString(),
		kind:     kind,
		url:      url,
		state:    core.StateIdle,
		progress: core.Progress{TotalBytes: -1},
	}
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Kind returns the transfer kind.
func (t *Task) Kind() core.Kind { return t.kind }

// URL returns the remote URL the task transfers from or to.
func (t *Task) URL() string { return t.url }

// State returns the current state.
func (t *Task) State() core.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start moves an idle or paused task to running.
// Starting from paused drops the held resume token.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.state == core.StateRunning:
		return core.ErrAlreadyInProgress
	case t.state.Terminal():
		return fmt.Errorf("start task %s: %w", t.id, core.ErrTaskFinished)
	}
	t.state = core.StateRunning
	t.token = nil
	return nil
}

// Progress records p if the task is running and p does not move the
// fraction backwards. It reports whether p was accepted.
func (t *Task) Progress(p core.Progress) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != core.StateRunning {
		return false
	}
	if p.Fraction < t.progress.Fraction {
		return false
	}
	t.progress = p
	return true
}

// LastProgress returns the most recently accepted progress value.
func (t *Task) LastProgress() core.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Complete moves a running task to completed.
func (t *Task) Complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != core.StateRunning {
		return fmt.Errorf("complete task %s in state %s: %w", t.id, t.state, core.ErrTaskFinished)
	}
	t.state = core.StateCompleted
	return nil
}

// Fail moves a running task to failed, keeping err as the cause.
func (t *Task) Fail(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != core.StateRunning {
		return fmt.Errorf("fail task %s in state %s: %w", t.id, t.state, core.ErrTaskFinished)
	}
	t.state = core.StateFailed
	t.err = err
	return nil
}

// Pause moves a running task to paused holding token. A nil token means the
// transfer cannot be continued, so the task is cancelled instead.
// It returns the state the task ended up in.
func (t *Task) Pause(token *core.ResumeToken) (core.State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != core.StateRunning {
		return t.state, fmt.Errorf("pause task %s in state %s: %w", t.id, t.state, core.ErrTaskFinished)
	}
	if token == nil {
		t.state = core.StateCancelled
		return t.state, nil
	}
	t.state = core.StatePaused
	t.token = token
	return t.state, nil
}

// Cancel moves any non-terminal task to cancelled and drops its token.
// It reports false if the task had already finished.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Terminal() {
		return false
	}
	t.state = core.StateCancelled
	t.token = nil
	return true
}

// Token returns the resume token held while paused.
func (t *Task) Token() *core.ResumeToken {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

// Info returns a snapshot of the task.
func (t *Task) Info() core.TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return core.TaskInfo{
		ID:       t.id,
		Kind:     t.kind,
		State:    t.state,
		Fraction: t.progress.Fraction,
		URL:      t.url,
		Err:      t.err,
	}
}
