package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"

	apperrors "github.com/kbukum/bytepipe/errors"
	"github.com/kbukum/bytepipe/framing"
	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/observability"
)

// fataler is satisfied by *testing.T and *rapid.T.
type fataler interface {
	Helper()
	Fatal(args ...any)
}

func newlineSplit(t fataler) *Transform {
	t.Helper()
	s, err := framing.New([]byte("\n"))
	if err != nil {
		t.Fatal(err)
	}
	return Split(s)
}

func TestPipeline_CopiesSourceToSink(t *testing.T) {
	out := Collect()
	p := New(FromStrings("a", "b", "c"), out, quiet())
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out.String() != "abc" || !out.Closed() {
		t.Errorf("expected closed collector with abc, got %q closed=%v", out.String(), out.Closed())
	}
	st := p.Stats()
	if st.ChunksRead != 3 || st.ChunksWritten != 3 || st.BytesRead != 3 || st.BytesWritten != 3 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestPipeline_TransformChain(t *testing.T) {
	var buf bytes.Buffer
	src := FromReader(strings.NewReader("one\ntwo\nthree"), WithReadSize(3))
	err := New(src, ToWriter(&buf), quiet()).
		Through(newlineSplit(t), Map(upper), Join([]byte("\n"))).
		Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if buf.String() != "ONE\nTWO\nTHREE\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPipeline_EmptySource(t *testing.T) {
	out := Collect()
	if err := New(FromStrings(), out, quiet()).Through(Map(upper)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !out.Closed() || out.String() != "" {
		t.Errorf("expected an empty, closed sink, got %q", out.String())
	}
}

func TestPipeline_PullsNoMoreThanTheSinkCanHold(t *testing.T) {
	reads := make([][]byte, 50)
	for i := range reads {
		reads[i] = []byte("x")
	}
	raw := &scriptedSource{reads: reads, err: io.EOF}
	sink, release := gated(t)
	w := ToRaw(sink, WithHighWaterMark(4))
	p := New(FromRaw(raw), w, quiet())

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	eventually(t, func() bool { return w.State() == SinkSaturated }, "sink to saturate")
	time.Sleep(20 * time.Millisecond)
	raw.mu.Lock()
	pulled := raw.calls
	raw.mu.Unlock()
	if pulled > 4 {
		t.Errorf("pulled %d chunks while the sink held 4 bytes", pulled)
	}

	release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if sink.String() != strings.Repeat("x", 50) {
		t.Errorf("expected 50 bytes delivered in order, got %d", len(sink.String()))
	}
	if p.Stats().BusyWaits == 0 {
		t.Error("expected the pipeline to wait for the saturated sink")
	}
}

func TestPipeline_RawSinkPressure(t *testing.T) {
	raw := &rawRecorder{pressure: true}
	parts := []string{"a", "b", "c", "d", "e", "f"}
	if err := New(FromStrings(parts...), ToRaw(raw), quiet()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if raw.String() != "abcdef" || !raw.Closed() {
		t.Errorf("expected abcdef flushed and closed, got %q", raw.String())
	}
}

func TestPipeline_SaturatedTransform(t *testing.T) {
	sink, release := gated(t)
	w := ToRaw(sink, WithHighWaterMark(1))
	twice := NewTransform(func(_ context.Context, c Chunk, emit Emit) error {
		u := bytes.ToUpper(c.Bytes())
		emit(NewChunk(u))
		emit(NewChunk(u))
		return nil
	}, nil, WithHighWaterMark(2))
	p := New(FromStrings("a", "b", "c"), w, quiet()).Through(twice)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	eventually(t, func() bool { return twice.State() == SinkSaturated && w.State() == SinkSaturated },
		"transform and sink to saturate")
	release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if sink.String() != "AABBCC" {
		t.Errorf("unexpected output %q", sink.String())
	}
}

func TestPipeline_TransformFailureKeepsEarlierOutput(t *testing.T) {
	boom := errors.New("bad chunk")
	n := 0
	failing := Map(func(_ context.Context, c Chunk) (Chunk, error) {
		n++
		if n == 3 {
			return Chunk{}, boom
		}
		return c, nil
	}, WithName("third"))
	out := Collect()

	err := New(FromStrings("a", "b", "c", "d"), out, quiet()).Through(failing).Run(context.Background())
	if !errors.Is(err, ErrTransform) || !errors.Is(err, boom) {
		t.Fatalf("expected TRANSFORM_FAILURE, got %v", err)
	}
	appErr, _ := apperrors.AsAppError(err)
	if appErr.Details["index"] != int64(2) {
		t.Errorf("expected the third chunk to be named, got %v", appErr.Details)
	}
	if out.String() != "ab" || !out.Closed() {
		t.Errorf("expected earlier output to be kept and the sink closed, got %q closed=%v", out.String(), out.Closed())
	}
}

func TestPipeline_SourceFailure(t *testing.T) {
	out := Collect()
	raw := &scriptedSource{reads: [][]byte{[]byte("a")}, err: errors.New("connection reset")}
	err := New(FromRaw(raw), out, quiet()).Run(context.Background())
	if !errors.Is(err, ErrSourceRead) {
		t.Fatalf("expected SOURCE_READ_FAILURE, got %v", err)
	}
	if out.String() != "a" || !out.Closed() {
		t.Errorf("expected the first chunk delivered, got %q", out.String())
	}
}

func TestPipeline_SinkFailure(t *testing.T) {
	raw := &rawRecorder{failAt: 2}
	err := New(FromStrings("a", "b", "c", "d"), ToRaw(raw), quiet()).Run(context.Background())
	if !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("expected SINK_WRITE_FAILURE, got %v", err)
	}
	if raw.Closed() {
		t.Error("a failed sink must not be flushed")
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	sink, _ := gated(t)
	w := ToRaw(sink, WithHighWaterMark(1))
	src := FromStrings("a", "b", "c")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- New(src, w, quiet()).Run(ctx) }()

	eventually(t, func() bool { return w.Drained() != nil }, "sink to saturate")
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected CANCELLED, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if w.State() != SinkFailed {
		t.Errorf("expected the sink to be aborted, got %s", w.State())
	}
	if sink.Closed() {
		t.Error("an aborted sink must not be flushed")
	}
}

func TestPipeline_CancelledReleasesPlainSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := Map(func(_ context.Context, c Chunk) (Chunk, error) {
		cancel()
		return c, nil
	})
	sink := &plainSink{}

	err := New(FromStrings("a", "b", "c"), sink, quiet()).Through(stop).Run(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
	if !sink.closed {
		t.Error("expected a sink without Abort to be closed after cancellation")
	}
}

// plainSink is a minimal Sink without Abort.
type plainSink struct {
	buf    bytes.Buffer
	closed bool
}

func (s *plainSink) Write(_ context.Context, c Chunk) (WriteStatus, error) {
	s.buf.Write(c.Bytes())
	return Accepted, nil
}

func (s *plainSink) Close(context.Context) error {
	s.closed = true
	return nil
}

func (s *plainSink) Drained() *Signal { return nil }

func TestPipeline_SkipsEmptySourceChunks(t *testing.T) {
	out := Collect()
	p := New(FromStrings("a", "", "b", ""), out, quiet()).Through(Join([]byte("\n")))
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out.String() != "a\nb\n" {
		t.Errorf("expected empty chunks to be skipped, got %q", out.String())
	}
	if st := p.Stats(); st.ChunksRead != 2 {
		t.Errorf("expected 2 chunks read, got %d", st.ChunksRead)
	}
}

func TestPipeline_ReleasesRawSourceAtEnd(t *testing.T) {
	raw := &closingSource{data: []string{"a", "b"}}
	out := Collect()
	if err := New(FromRaw(raw), out, quiet()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if out.String() != "ab" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if raw.closes != 1 {
		t.Errorf("expected raw source closed once, got %d", raw.closes)
	}
}

func TestPipeline_InvalidWiring(t *testing.T) {
	src := FromStrings("a")
	out := Collect()
	first := New(src, out, quiet())

	tests := []struct {
		name string
		p    *Pipeline
	}{
		{"nil source", New(nil, Collect(), quiet())},
		{"nil sink", New(FromStrings(), nil, quiet())},
		{"source already bound", New(src, Collect(), quiet())},
		{"sink already bound", New(FromStrings(), out, quiet())},
		{"nil transform", New(FromStrings(), Collect(), quiet()).Through(nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Run(context.Background())
			if !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
				t.Errorf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}

	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("the first binding should still run, got %v", err)
	}
}

func TestPipeline_TransformBoundTwice(t *testing.T) {
	shared := Map(upper)
	_ = New(FromStrings(), Collect(), quiet()).Through(shared)
	err := New(FromStrings(), Collect(), quiet()).Through(shared).Run(context.Background())
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestPipeline_RunsOnce(t *testing.T) {
	p := New(FromStrings("a"), Collect(), quiet())
	if err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Run(context.Background()); !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG on second run, got %v", err)
	}
}

func TestPipeline_SplitJoinIgnoresChunkBoundaries(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.StringOfN(rapid.RuneFrom([]rune("ab\n")), 0, 120, -1).Draw(rt, "data")
		cuts := rapid.SliceOfN(rapid.IntRange(1, 8), 0, 40).Draw(rt, "cuts")

		var chunks []Chunk
		rest := data
		for _, n := range cuts {
			if rest == "" {
				break
			}
			n = min(n, len(rest))
			chunks = append(chunks, NewChunk([]byte(rest[:n])))
			rest = rest[n:]
		}
		if rest != "" {
			chunks = append(chunks, NewChunk([]byte(rest)))
		}

		out := Collect()
		err := New(FromChunks(chunks...), out, quiet()).
			Through(newlineSplit(rt), Join([]byte("\n"))).
			Run(context.Background())
		if err != nil {
			rt.Fatal(err)
		}

		want := data
		if data != "" && !strings.HasSuffix(data, "\n") {
			want += "\n"
		}
		if out.String() != want {
			rt.Fatalf("expected %q, got %q", want, out.String())
		}
	})
}

func TestPipeline_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	if err := New(FromStrings("ok"), Collect(), quiet(), WithTracer(tracer), WithID("p-ok")).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	failing := &scriptedSource{err: errors.New("gone")}
	_ = New(FromRaw(failing), Collect(), quiet(), WithTracer(tracer), WithID("p-fail")).Run(context.Background())

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	want := map[string]codes.Code{"p-ok": codes.Ok, "p-fail": codes.Error}
	for _, s := range spans {
		if s.Name() != observability.SpanStreamRun {
			t.Errorf("unexpected span name %s", s.Name())
		}
		var id string
		for _, kv := range s.Attributes() {
			if kv.Key == attribute.Key(observability.AttrPipelineID) {
				id = kv.Value.AsString()
			}
		}
		if s.Status().Code != want[id] {
			t.Errorf("%s: expected status %v, got %v", id, want[id], s.Status().Code)
		}
	}
}

func TestPipeline_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()
	m, err := observability.NewStreamMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	if err := New(FromStrings("ab", "cde"), Collect(), quiet(), WithMetrics(m)).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			data, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range data.DataPoints {
				key := md.Name
				if v, ok := dp.Attributes.Value("stage"); ok {
					key += "/" + v.AsString()
				}
				if v, ok := dp.Attributes.Value("status"); ok {
					key += "/" + v.AsString()
				}
				sums[key] += dp.Value
			}
		}
	}
	checks := map[string]int64{
		"stream.bytes/source": 5,
		"stream.bytes/sink":   5,
		"stream.chunks/sink":  2,
		"stream.runs/ok":      1,
		"stream.active":       0,
	}
	for k, want := range checks {
		if sums[k] != want {
			t.Errorf("%s: expected %d, got %d", k, want, sums[k])
		}
	}
}

func TestPipeline_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", &buf)
	failing := &scriptedSource{err: errors.New("gone")}
	_ = New(FromRaw(failing), Collect(), WithLogger(log), WithID("p-log")).Run(context.Background())

	out := buf.String()
	if !strings.Contains(out, `"pipeline_id":"p-log"`) || !strings.Contains(out, "pipeline failed") {
		t.Errorf("expected a failure line carrying the pipeline id, got %s", out)
	}
}

func TestGroup_RunsAll(t *testing.T) {
	a, b := Collect(), Collect()
	g := NewGroup(New(FromStrings("a"), a, quiet())).
		Add(New(FromStrings("b"), b, quiet())).
		SetLimit(1)
	if err := g.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.String() != "a" || b.String() != "b" {
		t.Errorf("expected both pipelines to run, got %q %q", a.String(), b.String())
	}
}

func TestGroup_FailureCancelsOthers(t *testing.T) {
	stuck := FromReader(strings.NewReader("never"))
	stuck.Pause()
	failing := &scriptedSource{err: errors.New("gone")}

	g := NewGroup(
		New(stuck, Collect(), quiet()),
		New(FromRaw(failing), Collect(), quiet()),
	)
	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSourceRead) {
			t.Fatalf("expected the first failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("group did not cancel the paused pipeline")
	}
}
