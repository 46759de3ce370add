package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StreamMetrics holds instruments for pipeline runs. A nil *StreamMetrics
// records nothing.
type StreamMetrics struct {
	chunks      metric.Int64Counter
	bytes       metric.Int64Counter
	busyWaits   metric.Int64Counter
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	active      metric.Int64UpDownCounter
}

// NewStreamMetrics creates pipeline instruments on the given meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	chunks, err := meter.Int64Counter("stream.chunks",
		metric.WithDescription("Chunks moved through a stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.chunks counter: %w", err)
	}
	bytes, err := meter.Int64Counter("stream.bytes",
		metric.WithDescription("Bytes moved through a stage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.bytes counter: %w", err)
	}
	busyWaits, err := meter.Int64Counter("stream.busy_waits",
		metric.WithDescription("Times a pipeline waited for a saturated stage to drain"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.busy_waits counter: %w", err)
	}
	runs, err := meter.Int64Counter("stream.runs",
		metric.WithDescription("Completed pipeline runs by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.runs counter: %w", err)
	}
	runDuration, err := meter.Float64Histogram("stream.run.duration",
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.run.duration histogram: %w", err)
	}
	active, err := meter.Int64UpDownCounter("stream.active",
		metric.WithDescription("Pipelines currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating stream.active gauge: %w", err)
	}
	return &StreamMetrics{
		chunks:      chunks,
		bytes:       bytes,
		busyWaits:   busyWaits,
		runs:        runs,
		runDuration: runDuration,
		active:      active,
	}, nil
}

// RecordChunk counts one chunk of n bytes passing stage.
func (m *StreamMetrics) RecordChunk(ctx context.Context, stage string, n int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	m.chunks.Add(ctx, 1, attrs)
	m.bytes.Add(ctx, int64(n), attrs)
}

// RecordBusyWait counts one wait on the drain signal of stage.
func (m *StreamMetrics) RecordBusyWait(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.busyWaits.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordRunStart marks a pipeline as running.
func (m *StreamMetrics) RecordRunStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.active.Add(ctx, 1)
}

// RecordRunEnd records a finished run. status is "ok" or an error code.
func (m *StreamMetrics) RecordRunEnd(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1)
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}
