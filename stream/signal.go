package stream

import (
	"context"
	"sync"
)

// Signal is a one-shot notification. A saturated stage hands out a Signal that
// fires once it accepts input again, or fails when the stage terminates first.
type Signal struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Done returns a channel closed when the signal fires or fails.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Err returns the failure that resolved the signal, or nil when it fired
// normally or is still pending.
func (s *Signal) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the signal resolves or ctx ends.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return cancelled(ctx)
	}
}

func (s *Signal) fire() {
	s.once.Do(func() { close(s.done) })
}

func (s *Signal) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
