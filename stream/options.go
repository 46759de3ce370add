package stream

import "sync/atomic"

const (
	// DefaultHighWaterMark is the queue capacity in bytes of sinks and transforms.
	DefaultHighWaterMark = 64 * 1024
	// DefaultReadSize is the maximum number of bytes requested per raw read.
	DefaultReadSize = 16 * 1024
)

// StageOption configures a source, sink or transform.
type StageOption func(*stageOptions)

type stageOptions struct {
	name      string
	high      int
	low       int
	readSize  int
	autoClose bool
	borrow    bool
}

// WithName sets the stage name used in errors, logs and metrics.
func WithName(name string) StageOption {
	return func(o *stageOptions) { o.name = name }
}

// WithHighWaterMark sets the queued byte count at which a stage reports Busy.
// Non-positive values select DefaultHighWaterMark.
func WithHighWaterMark(n int) StageOption {
	return func(o *stageOptions) { o.high = n }
}

// WithLowWaterMark sets the queued byte count at or below which a saturated
// stage accepts input again. The default 0 waits for the queue to empty.
func WithLowWaterMark(n int) StageOption {
	return func(o *stageOptions) { o.low = n }
}

// WithReadSize sets the maximum bytes requested per raw read.
func WithReadSize(n int) StageOption {
	return func(o *stageOptions) { o.readSize = n }
}

// WithAutoClose makes a Duplex close its resource as soon as either half
// finishes instead of waiting for both.
func WithAutoClose() StageOption {
	return func(o *stageOptions) { o.autoClose = true }
}

// WithBorrow makes ToWriter leave a writer implementing io.Closer open when
// the sink closes. The caller keeps ownership of the writer.
func WithBorrow() StageOption {
	return func(o *stageOptions) { o.borrow = true }
}

func newStageOptions(name string, opts []StageOption) stageOptions {
	o := stageOptions{name: name}
	for _, opt := range opts {
		opt(&o)
	}
	if o.high <= 0 {
		o.high = DefaultHighWaterMark
	}
	if o.low < 0 || o.low >= o.high {
		o.low = 0
	}
	if o.readSize <= 0 {
		o.readSize = DefaultReadSize
	}
	return o
}

// binding records that a stage belongs to a pipeline.
type binding struct {
	bound atomic.Bool
}

func (b *binding) claim() bool { return b.bound.CompareAndSwap(false, true) }

type bindable interface {
	claim() bool
}
