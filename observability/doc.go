// Package observability provides OpenTelemetry tracing and metrics for
// bytepipe pipelines and the HTTP front.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("bytepipe"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	sm, err := observability.NewStreamMetrics(observability.Meter("bytepipe"))
//	stream.New(src, sink, stream.WithMetrics(sm))
//
// Health checks:
//
//	health := observability.CheckAll(ctx, "bytepipe", version.GetShortVersion(), checkers...)
package observability
