package stream

import (
	"bytes"
	"context"
	"io"
	"sync"

	apperrors "github.com/kbukum/bytepipe/errors"
)

// WriteStatus is the outcome of a successful write.
type WriteStatus int

const (
	// Accepted means the sink can take more input.
	Accepted WriteStatus = iota
	// Busy means the chunk was queued but the sink is saturated. Producers
	// should wait for the Signal returned by Drained before writing again.
	Busy
)

func (s WriteStatus) String() string {
	if s == Busy {
		return "busy"
	}
	return "accepted"
}

// Sink is the writable end of a pipeline.
//
// Write always takes ownership of the chunk, even when it reports Busy.
// Drained returns the pending drain Signal while the sink is saturated and nil
// while it accepts input. Close waits until every accepted chunk has been
// consumed and the underlying consumer has been released; a nil error is the
// acknowledgement. Writes after Close fail with CLOSED_SINK_WRITE.
type Sink interface {
	Write(ctx context.Context, c Chunk) (WriteStatus, error)
	Close(ctx context.Context) error
	Drained() *Signal
}

// Aborter is implemented by stages that can be torn down without flushing.
type Aborter interface {
	Abort(err error)
}

// SinkState is the lifecycle state of a writable sink.
type SinkState int

const (
	SinkAccepting SinkState = iota
	SinkSaturated
	SinkDraining
	SinkClosed
	SinkFailed
)

func (s SinkState) String() string {
	switch s {
	case SinkAccepting:
		return "accepting"
	case SinkSaturated:
		return "saturated"
	case SinkDraining:
		return "draining"
	case SinkClosed:
		return "closed"
	case SinkFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Writable is a Sink feeding a RawSink from a bounded queue. A single consumer
// goroutine, started by the first Write or Close, hands queued chunks to the
// raw sink in order. Callers must Close or Abort a Writable they wrote to.
type Writable struct {
	binding
	name string
	raw  RawSink
	high int
	low  int

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Chunk
	queued    int // bytes queued or being written
	pressured bool
	saturated bool
	closing   bool
	closed    bool
	drained   *Signal
	err       error
	started   bool
	done      chan struct{}
}

// ToRaw returns a Sink writing into raw.
func ToRaw(raw RawSink, opts ...StageOption) *Writable {
	o := newStageOptions("sink", opts)
	w := &Writable{
		name: o.name,
		raw:  raw,
		high: o.high,
		low:  o.low,
		done: make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// ToWriter returns a Sink writing into w. Closing the sink closes w when it
// implements io.Closer unless WithBorrow is given. See WriterSink for flush
// behaviour.
func ToWriter(w io.Writer, opts ...StageOption) *Writable {
	if newStageOptions("sink", opts).borrow {
		return ToRaw(BorrowedWriterSink(w), opts...)
	}
	return ToRaw(WriterSink(w), opts...)
}

// Write queues c for the raw sink. Empty chunks are ignored.
func (w *Writable) Write(ctx context.Context, c Chunk) (WriteStatus, error) {
	if ctx.Err() != nil {
		return Accepted, cancelled(ctx)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closing {
		return Accepted, apperrors.ClosedSinkWrite(w.name)
	}
	if w.err != nil {
		return Accepted, w.err
	}
	if c.IsEmpty() {
		return w.statusLocked(), nil
	}

	w.startLocked()
	w.queue = append(w.queue, c)
	w.queued += c.Len()
	w.cond.Signal()

	if !w.saturated && (w.queued >= w.high || w.pressured) {
		w.saturated = true
		w.drained = newSignal()
	}
	return w.statusLocked(), nil
}

func (w *Writable) statusLocked() WriteStatus {
	if w.saturated {
		return Busy
	}
	return Accepted
}

// Drained returns the pending drain signal, or nil while the sink accepts input.
func (w *Writable) Drained() *Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drained
}

// Close requests shutdown and waits until the queue has drained into the raw
// sink and the raw sink has been flushed and closed. Close is idempotent.
func (w *Writable) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closing {
		w.closing = true
		w.startLocked()
		w.cond.Broadcast()
	}
	w.mu.Unlock()

	select {
	case <-w.done:
	case <-ctx.Done():
		return cancelled(ctx)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Abort discards queued data and stops the consumer without flushing the raw
// sink. Pending drain signals fail with err.
func (w *Writable) Abort(err error) {
	if err == nil {
		err = apperrors.Cancelled(nil)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.err != nil {
		return
	}
	w.failLocked(err)
	if !w.started {
		w.started = true
		close(w.done)
	}
}

// State returns the current lifecycle state.
func (w *Writable) State() SinkState {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.err != nil:
		return SinkFailed
	case w.closed:
		return SinkClosed
	case w.closing:
		return SinkDraining
	case w.saturated:
		return SinkSaturated
	default:
		return SinkAccepting
	}
}

// Queued returns the number of bytes accepted but not yet consumed.
func (w *Writable) Queued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queued
}

func (w *Writable) startLocked() {
	if w.started {
		return
	}
	w.started = true
	go w.consume()
}

func (w *Writable) consume() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closing && w.err == nil {
			w.cond.Wait()
		}
		if w.err != nil {
			w.mu.Unlock()
			return
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			w.finish()
			return
		}
		c := w.queue[0]
		w.queue[0] = Chunk{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		ok, err := w.raw.Write(c.Bytes())

		w.mu.Lock()
		if w.err != nil {
			w.mu.Unlock()
			return
		}
		w.queued -= c.Len()
		if err != nil {
			w.failLocked(apperrors.SinkWrite(err))
			w.mu.Unlock()
			return
		}
		w.pressured = !ok
		w.relieveLocked()
		w.mu.Unlock()
	}
}

// relieveLocked returns a saturated sink to accepting once the queue is at or
// below the low-water mark, firing the drain signal exactly once.
func (w *Writable) relieveLocked() {
	if !w.saturated {
		return
	}
	if w.queued > w.low || (w.pressured && w.queued > 0) {
		return
	}
	w.saturated = false
	sig := w.drained
	w.drained = nil
	sig.fire()
}

func (w *Writable) finish() {
	err := w.raw.FlushAndClose()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.failLocked(apperrors.SinkWrite(err))
		return
	}
	w.closed = true
	w.saturated = false
	if w.drained != nil {
		w.drained.fail(apperrors.ClosedSinkWrite(w.name))
		w.drained = nil
	}
}

func (w *Writable) failLocked(err error) {
	w.err = err
	w.queue = nil
	w.queued = 0
	w.saturated = false
	if w.drained != nil {
		w.drained.fail(err)
		w.drained = nil
	}
	w.cond.Broadcast()
}

// Collector is an in-memory Sink that accepts every chunk.
type Collector struct {
	binding
	mu     sync.Mutex
	chunks []Chunk
	closed bool
}

// Collect returns an empty Collector.
func Collect() *Collector { return &Collector{} }

// Write stores c. Empty chunks are ignored.
func (c *Collector) Write(ctx context.Context, ch Chunk) (WriteStatus, error) {
	if ctx.Err() != nil {
		return Accepted, cancelled(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Accepted, apperrors.ClosedSinkWrite("collector")
	}
	if !ch.IsEmpty() {
		c.chunks = append(c.chunks, ch)
	}
	return Accepted, nil
}

// Close marks the collector closed.
func (c *Collector) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Drained always returns nil; a Collector is never saturated.
func (c *Collector) Drained() *Signal { return nil }

// Closed reports whether Close was called.
func (c *Collector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Chunks returns the collected chunks in arrival order.
func (c *Collector) Chunks() []Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Chunk(nil), c.chunks...)
}

// Bytes returns the concatenation of the collected chunks.
func (c *Collector) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var buf bytes.Buffer
	for _, ch := range c.chunks {
		buf.Write(ch.Bytes())
	}
	return buf.Bytes()
}

// String returns the collected bytes as a string.
func (c *Collector) String() string { return string(c.Bytes()) }
