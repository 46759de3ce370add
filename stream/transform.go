package stream

import (
	"context"
	"sync"

	apperrors "github.com/kbukum/bytepipe/errors"
)

// Emit hands an output chunk to the stage's output queue. Ownership of the
// chunk transfers to the stage.
type Emit func(Chunk)

// TransformFunc maps one input chunk to zero or more output chunks.
type TransformFunc func(ctx context.Context, c Chunk, emit Emit) error

// FlushFunc runs once when input ends and may emit final output.
type FlushFunc func(ctx context.Context, emit Emit) error

// Transform is a mapping step between a pipeline's source and sink. It is a
// Sink on its input side; Next and Output expose its output side.
//
// Outputs produced for one input precede all outputs of later inputs. The
// output queue is bounded by the high-water mark: once reached, Write reports
// Busy and the stage stays saturated until the queue is pulled down to the
// low-water mark. Close runs the flush hook; the output side then reports end
// of stream once drained.
type Transform struct {
	binding
	name  string
	fn    TransformFunc
	flush FlushFunc
	high  int
	low   int

	mu        sync.Mutex
	out       []Chunk
	outBytes  int
	index     int64
	saturated bool
	drained   *Signal
	closing   bool
	inputDone bool
	ended     bool
	err       error
	notify    chan struct{}
}

// NewTransform creates a Transform stage. flush may be nil.
func NewTransform(fn TransformFunc, flush FlushFunc, opts ...StageOption) *Transform {
	o := newStageOptions("transform", opts)
	return &Transform{
		name:   o.name,
		fn:     fn,
		flush:  flush,
		high:   o.high,
		low:    o.low,
		notify: make(chan struct{}),
	}
}

// Name returns the stage name.
func (t *Transform) Name() string { return t.name }

// Write applies the mapping function to c and queues its outputs.
func (t *Transform) Write(ctx context.Context, c Chunk) (WriteStatus, error) {
	if ctx.Err() != nil {
		return Accepted, cancelled(ctx)
	}
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return Accepted, apperrors.ClosedSinkWrite(t.name)
	}
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return Accepted, err
	}
	idx := t.index
	t.index++
	t.mu.Unlock()

	var emitted []Chunk
	if err := t.fn(ctx, c, func(o Chunk) { emitted = append(emitted, o) }); err != nil {
		return Accepted, t.fail(ctx, idx, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return Accepted, t.err
	}
	t.pushLocked(emitted)
	if t.saturated {
		return Busy, nil
	}
	return Accepted, nil
}

// Close ends the input side and runs the flush hook.
func (t *Transform) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closing {
		err := t.err
		t.mu.Unlock()
		return err
	}
	t.closing = true
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	var emitted []Chunk
	if t.flush != nil {
		if err := t.flush(ctx, func(o Chunk) { emitted = append(emitted, o) }); err != nil {
			return t.fail(ctx, -1, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.pushLocked(emitted)
	t.inputDone = true
	t.wakeLocked()
	return nil
}

// Drained returns the pending drain signal, or nil while the stage accepts input.
func (t *Transform) Drained() *Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drained
}

// Next pulls the next output chunk, blocking until one is queued, input has
// ended, or ctx is done.
func (t *Transform) Next(ctx context.Context) (Chunk, bool, error) {
	for {
		t.mu.Lock()
		if c, ok := t.popLocked(); ok {
			t.mu.Unlock()
			return c, true, nil
		}
		if t.err != nil {
			err := t.err
			t.mu.Unlock()
			return Chunk{}, false, err
		}
		if t.inputDone {
			t.ended = true
			t.mu.Unlock()
			return Chunk{}, false, nil
		}
		wait := t.notify
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Chunk{}, false, cancelled(ctx)
		}
	}
}

// Abort discards queued output and fails the stage with err.
func (t *Transform) Abort(err error) {
	if err == nil {
		err = apperrors.Cancelled(nil)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil || t.ended {
		return
	}
	t.failLocked(err)
}

// Output returns the stage's output side as a Source. Closing it before the
// output has ended aborts the stage.
func (t *Transform) Output() Source { return transformOutput{t} }

type transformOutput struct{ t *Transform }

func (o transformOutput) Next(ctx context.Context) (Chunk, bool, error) { return o.t.Next(ctx) }

func (o transformOutput) Close() error {
	o.t.Abort(nil)
	return nil
}

// State returns the state of the input side.
func (t *Transform) State() SinkState {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.err != nil:
		return SinkFailed
	case t.inputDone && len(t.out) == 0:
		return SinkClosed
	case t.closing:
		return SinkDraining
	case t.saturated:
		return SinkSaturated
	default:
		return SinkAccepting
	}
}

// Buffered returns the number of queued output bytes.
func (t *Transform) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outBytes
}

// pop takes the next queued output without blocking.
func (t *Transform) pop() (Chunk, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.popLocked()
}

// drainedOut reports whether input has ended and all output was taken.
func (t *Transform) drainedOut() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return false, t.err
	}
	return t.inputDone && len(t.out) == 0, nil
}

func (t *Transform) pushLocked(chunks []Chunk) {
	if len(chunks) == 0 {
		return
	}
	for _, c := range chunks {
		t.out = append(t.out, c)
		t.outBytes += c.Len()
	}
	if !t.saturated && t.outBytes >= t.high {
		t.saturated = true
		t.drained = newSignal()
	}
	t.wakeLocked()
}

func (t *Transform) popLocked() (Chunk, bool) {
	if len(t.out) == 0 || t.err != nil {
		return Chunk{}, false
	}
	c := t.out[0]
	t.out[0] = Chunk{}
	t.out = t.out[1:]
	t.outBytes -= c.Len()
	if t.saturated && t.outBytes <= t.low {
		t.saturated = false
		sig := t.drained
		t.drained = nil
		sig.fire()
	}
	return c, true
}

func (t *Transform) wakeLocked() {
	close(t.notify)
	t.notify = make(chan struct{})
}

func (t *Transform) fail(ctx context.Context, idx int64, cause error) error {
	var err error
	switch {
	case ctx.Err() != nil:
		err = cancelled(ctx)
	case apperrors.HasCode(cause, apperrors.ErrCodeCancelled):
		err = cause
	default:
		err = apperrors.Transform(t.name, idx, cause)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.failLocked(err)
	}
	return t.err
}

func (t *Transform) failLocked(err error) {
	t.err = err
	t.out = nil
	t.outBytes = 0
	t.saturated = false
	if t.drained != nil {
		t.drained.fail(err)
		t.drained = nil
	}
	t.wakeLocked()
}
