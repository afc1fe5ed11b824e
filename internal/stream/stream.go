// Package stream provides a per-task ordered, lossless event broadcaster.
//
// A Stream is an append-only log of events terminated by exactly one
// terminal event. Every subscriber walks the log at its own pace, so a slow
// consumer never causes events to be dropped or reordered for anyone.
package stream

import (
	"context"
	"sync"

	"github.com/meigma/courier/core"
)

// Stream is an ordered event log with any number of readers.
type Stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	log    []core.Event
	closed bool
	done   chan struct{}
}

// New creates an open stream.
func New() *Stream {
	s := &Stream{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish appends e to the log. A terminal event closes the stream.
// It reports false if the stream was already closed.
func (s *Stream) Publish(e core.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.log = append(s.log, e)
	if e.IsTerminal() {
		s.closed = true
		close(s.done)
	}
	s.cond.Broadcast()
	return true
}

// Done is closed once the terminal event has been published.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the terminal event has been published.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Terminal returns the terminal event once the stream is closed.
func (s *Stream) Terminal() (core.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		return core.Event{}, false
	}
	return s.log[len(s.log)-1], true
}

// Replay returns a channel that yields every event from the first one on.
// The channel is closed after the terminal event or when ctx is done.
func (s *Stream) Replay(ctx context.Context) <-chan core.Event {
	return s.from(ctx, 0)
}

// Subscribe returns a channel that yields events published from now on.
// Subscribing to a closed stream yields only the terminal event.
func (s *Stream) Subscribe(ctx context.Context) <-chan core.Event {
	s.mu.Lock()
	start := len(s.log)
	if s.closed {
		start--
	}
	s.mu.Unlock()
	return s.from(ctx, start)
}

func (s *Stream) from(ctx context.Context, cursor int) <-chan core.Event {
	ch := make(chan core.Event)

	// Wake the reader below if ctx ends while it waits on the condition.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})

	go func() {
		defer close(ch)
		defer stop()

		for {
			s.mu.Lock()
			for cursor >= len(s.log) && !s.closed && ctx.Err() == nil {
				s.cond.Wait()
			}
			if ctx.Err() != nil || cursor >= len(s.log) {
				s.mu.Unlock()
				return
			}
			e := s.log[cursor]
			cursor++
			s.mu.Unlock()

			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
			if e.IsTerminal() {
				return
			}
		}
	}()

	return ch
}
