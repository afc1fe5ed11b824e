package courier

import (
	"context"
	"fmt"
	"sync"

	"github.com/meigma/courier/internal/stream"
	"github.com/meigma/courier/internal/task"
)

// Transfer is a handle to one download or upload.
//
// Its outcome can be observed three ways, all over the same ordered event
// stream: a channel (Events, Subscribe), callbacks (Notify), or a blocking
// call (Wait). A paused download keeps its Transfer; the stream carries
// EventPaused and EventResumed and ends with exactly one terminal event.
type Transfer struct {
	task   *task.Task
	stream *stream.Stream

	once   sync.Once
	events <-chan Event
}

// ID returns the transfer's unique identifier.
func (t *Transfer) ID() string { return t.task.ID() }

// Kind reports whether this is a download or an upload.
func (t *Transfer) Kind() Kind { return t.task.Kind() }

// Info returns a snapshot of the transfer's state.
func (t *Transfer) Info() TaskInfo { return t.task.Info() }

// Events returns the primary event channel. It yields every event since the
// transfer started and is closed after the terminal event. Repeated calls
// return the same channel; the events are not lost if it is read late.
func (t *Transfer) Events() <-chan Event {
	t.once.Do(func() {
		t.events = t.stream.Replay(context.Background())
	})
	return t.events
}

// Subscribe returns an additional channel that yields events published from
// now on, always including the terminal event. It is closed after the
// terminal event or when ctx is done.
func (t *Transfer) Subscribe(ctx context.Context) <-chan Event {
	return t.stream.Subscribe(ctx)
}

// Notify calls onProgress for every progress event and onDone once with the
// outcome. Callbacks run on a separate goroutine, one at a time and in order.
// Either callback may be nil.
func (t *Transfer) Notify(onProgress ProgressFunc, onDone DoneFunc) {
	events := t.stream.Replay(context.Background())
	go func() {
		for e := range events {
			switch {
			case e.Type == EventProgress:
				if onProgress != nil {
					onProgress(e.Progress)
				}
			case e.IsTerminal():
				if onDone != nil {
					onDone(t.outcome(e))
				}
			}
		}
	}()
}

// Wait blocks until the transfer finishes or ctx is done. A paused transfer
// keeps Wait blocked until it is resumed and finishes, or is cancelled.
// Leaving Wait because ctx ended does not affect the transfer.
func (t *Transfer) Wait(ctx context.Context) (*Result, error) {
	if !t.stream.Closed() {
		select {
		case <-t.stream.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e, _ := t.stream.Terminal()
	return t.outcome(e)
}

// outcome translates a terminal event into a result or an error.
func (t *Transfer) outcome(e Event) (*Result, error) {
	switch e.Type {
	case EventCompleted:
		return e.Result, nil
	case EventFailed:
		return nil, e.Err
	default:
		return nil, fmt.Errorf("%s %s: %w", t.Kind(), t.ID(), ErrCancelled)
	}
}
