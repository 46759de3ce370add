package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/bytepipe/errors"
	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/observability"
)

const tracerName = "github.com/kbukum/bytepipe/stream"

// releaseTimeout bounds closing a sink without Abort after cancellation.
const releaseTimeout = 2 * time.Second

// Stats summarises a pipeline run.
type Stats struct {
	ChunksRead    int64
	BytesRead     int64
	ChunksWritten int64
	BytesWritten  int64
	BusyWaits     int64
	Duration      time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger. Defaults to logger.Get("stream").
func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics records chunk, byte and run metrics on m.
func WithMetrics(m *observability.StreamMetrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer sets the tracer used for the run span. Defaults to the global
// tracer provider.
func WithTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// WithID sets the pipeline ID used in logs and spans. Defaults to a random UUID.
func WithID(id string) PipelineOption {
	return func(p *Pipeline) { p.id = id }
}

// Pipeline moves chunks from a source through zero or more transforms into a
// sink, respecting backpressure at every stage. A pipeline owns its stages for
// its lifetime and runs once.
//
// Run drives all stages from the calling goroutine. It pulls from the source
// only while no stage is saturated, pushes buffered transform output
// downstream, and otherwise waits on the drain signal of the most downstream
// saturated stage. At end of stream stages are closed in order, each one
// drained into the next before that one is closed.
type Pipeline struct {
	id      string
	src     Source
	stages  []*Transform
	sink    Sink
	log     *logger.Logger
	metrics *observability.StreamMetrics
	tracer  trace.Tracer

	err  error
	ran  atomic.Bool
	mu   sync.Mutex
	stat Stats
}

// New creates a pipeline from src to sink.
func New(src Source, sink Sink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{src: src, sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.id == "" {
		p.id = uuid.NewString()
	}
	if p.log == nil {
		p.log = logger.Get("stream")
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	p.log = p.log.WithFields(logger.Fields(logger.FieldPipelineID, p.id))

	switch {
	case src == nil:
		p.err = apperrors.InvalidConfig("source", "pipeline requires a source")
	case sink == nil:
		p.err = apperrors.InvalidConfig("sink", "pipeline requires a sink")
	default:
		p.bind(src, "source")
		p.bind(sink, "sink")
	}
	return p
}

// Through appends transforms between the source and the sink, in order.
func (p *Pipeline) Through(stages ...*Transform) *Pipeline {
	for _, t := range stages {
		if t == nil {
			p.setErr(apperrors.InvalidConfig("transform", "nil transform"))
			continue
		}
		p.bind(t, t.Name())
		p.stages = append(p.stages, t)
	}
	return p
}

func (p *Pipeline) bind(stage any, name string) {
	b, ok := stage.(bindable)
	if !ok {
		return
	}
	if !b.claim() {
		p.setErr(apperrors.InvalidConfig(name, "stage is already bound to a pipeline"))
	}
}

func (p *Pipeline) setErr(err error) {
	if p.err == nil {
		p.err = err
	}
}

// ID returns the pipeline ID.
func (p *Pipeline) ID() string { return p.id }

// Stats returns a snapshot of the run's counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stat
}

// Run executes the pipeline until the source ends and the sink has
// acknowledged its close, or until the first failure. On failure the
// remaining stages are released and the first failure is returned; output
// already accepted by the sink is kept unless ctx was cancelled, in which case
// a sink implementing Aborter is aborted and any other sink is closed within
// a short bound. Empty chunks pulled from the source are skipped.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	if p.err != nil {
		return p.err
	}
	if !p.ran.CompareAndSwap(false, true) {
		return apperrors.InvalidConfig("pipeline", "pipeline has already run")
	}

	ctx, span := p.tracer.Start(ctx, observability.SpanStreamRun, trace.WithAttributes(
		attribute.String(observability.AttrPipelineID, p.id),
		attribute.Int("pipeline.transforms", len(p.stages)),
	))
	start := time.Now()
	p.metrics.RecordRunStart(ctx)
	p.log.Debug("pipeline started", logger.Fields("transforms", len(p.stages)))

	defer func() {
		p.mu.Lock()
		p.stat.Duration = time.Since(start)
		st := p.stat
		p.mu.Unlock()

		fields := logger.Fields(
			logger.FieldChunks, st.ChunksWritten,
			logger.FieldBytes, st.BytesWritten,
			logger.FieldBusyWaits, st.BusyWaits,
			logger.FieldDuration, st.Duration.Milliseconds(),
		)
		span.SetAttributes(
			attribute.Int64("pipeline.bytes_read", st.BytesRead),
			attribute.Int64("pipeline.bytes_written", st.BytesWritten),
			attribute.Int64("pipeline.busy_waits", st.BusyWaits),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.metrics.RecordRunEnd(ctx, string(apperrors.Wrap(err).Code), st.Duration)
			p.log.WithError(err).Warn("pipeline failed", fields)
		} else {
			span.SetStatus(codes.Ok, "")
			p.metrics.RecordRunEnd(ctx, "ok", st.Duration)
			p.log.Debug("pipeline finished", fields)
		}
		span.End()
	}()

	if err := p.pump(ctx); err != nil {
		return p.abort(ctx, err)
	}
	if err := p.finish(ctx); err != nil {
		return p.abort(ctx, err)
	}
	if err := p.src.Close(); err != nil {
		p.log.WithError(err).Debug("closing source after end of stream")
	}
	return nil
}

// pump moves data until the source reports end of stream.
func (p *Pipeline) pump(ctx context.Context) error {
	for {
		if err := p.settle(ctx); err != nil {
			return err
		}
		if sig, i := p.saturated(); sig != nil {
			if err := p.wait(ctx, sig, i); err != nil {
				return err
			}
			continue
		}

		c, ok, err := p.src.Next(ctx)
		if err != nil {
			return asSourceErr(ctx, err)
		}
		if !ok {
			return nil
		}
		if c.IsEmpty() {
			continue
		}
		p.mu.Lock()
		p.stat.ChunksRead++
		p.stat.BytesRead += int64(c.Len())
		p.mu.Unlock()
		p.metrics.RecordChunk(ctx, "source", c.Len())

		if err := p.write(ctx, 0, c); err != nil {
			return err
		}
	}
}

// finish closes every stage in order, draining each into the next before
// closing it, and finally waits for the sink's acknowledgement.
func (p *Pipeline) finish(ctx context.Context) error {
	for _, t := range p.stages {
		if err := t.Close(ctx); err != nil {
			return err
		}
		for {
			if err := p.settle(ctx); err != nil {
				return err
			}
			done, err := t.drainedOut()
			if err != nil {
				return err
			}
			if done {
				break
			}
			if sig, i := p.saturated(); sig != nil {
				if err := p.wait(ctx, sig, i); err != nil {
					return err
				}
			}
		}
	}
	if err := p.sink.Close(ctx); err != nil {
		return asSinkErr(ctx, err)
	}
	return nil
}

// target returns the input side of stage i; the sink follows the last transform.
func (p *Pipeline) target(i int) Sink {
	if i < len(p.stages) {
		return p.stages[i]
	}
	return p.sink
}

func (p *Pipeline) stageName(i int) string {
	if i < len(p.stages) {
		return p.stages[i].Name()
	}
	return "sink"
}

func (p *Pipeline) write(ctx context.Context, i int, c Chunk) error {
	if _, err := p.target(i).Write(ctx, c); err != nil {
		if i == len(p.stages) {
			return asSinkErr(ctx, err)
		}
		return err
	}
	if i == len(p.stages) {
		p.mu.Lock()
		p.stat.ChunksWritten++
		p.stat.BytesWritten += int64(c.Len())
		p.mu.Unlock()
		p.metrics.RecordChunk(ctx, "sink", c.Len())
	}
	return nil
}

// settle moves buffered transform output downstream, most downstream stage
// first, until every move is blocked by a saturated stage or nothing is left.
func (p *Pipeline) settle(ctx context.Context) error {
	for {
		moved := false
		for i := len(p.stages) - 1; i >= 0; i-- {
			next := p.target(i + 1)
			for next.Drained() == nil {
				c, ok := p.stages[i].pop()
				if !ok {
					break
				}
				if err := p.write(ctx, i+1, c); err != nil {
					return err
				}
				moved = true
			}
		}
		if !moved {
			return nil
		}
	}
}

// saturated returns the drain signal of the most downstream saturated stage.
func (p *Pipeline) saturated() (*Signal, int) {
	for i := len(p.stages); i >= 0; i-- {
		if sig := p.target(i).Drained(); sig != nil {
			return sig, i
		}
	}
	return nil, -1
}

func (p *Pipeline) wait(ctx context.Context, sig *Signal, i int) error {
	p.mu.Lock()
	p.stat.BusyWaits++
	p.mu.Unlock()
	p.metrics.RecordBusyWait(ctx, p.stageName(i))

	if err := sig.Wait(ctx); err != nil {
		if i == len(p.stages) {
			return asSinkErr(ctx, err)
		}
		return err
	}
	return nil
}

// abort releases every stage after a failure and returns the failure.
// Secondary errors are dropped.
func (p *Pipeline) abort(ctx context.Context, cause error) error {
	for _, t := range p.stages {
		t.Abort(cause)
	}

	cancelledRun := ctx.Err() != nil || apperrors.HasCode(cause, apperrors.ErrCodeCancelled)
	sinkFailed := apperrors.HasCode(cause, apperrors.ErrCodeSinkWrite)
	a, canAbort := p.sink.(Aborter)
	switch {
	case canAbort && (cancelledRun || sinkFailed):
		a.Abort(cause)
	case cancelledRun:
		// Sinks without Abort are still released, within a bound.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := p.sink.Close(closeCtx); err != nil {
			p.log.WithError(err).Debug("releasing sink after cancellation")
		}
	default:
		// Keep what the sink already accepted.
		if err := p.sink.Close(ctx); err != nil {
			p.log.WithError(err).Debug("closing sink after failure")
		}
	}

	if err := p.src.Close(); err != nil {
		p.log.WithError(err).Debug("closing source after failure")
	}
	return cause
}
