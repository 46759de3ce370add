// Package stream moves unbounded byte streams from a source to a sink through
// composable stages without loading the whole stream into memory.
//
// A pipeline is built from a Source, zero or more Transform stages and a
// Sink:
//
//	sp, _ := framing.New([]byte("\n"))
//	p := stream.New(stream.FromReader(os.Stdin), stream.ToWriter(out)).
//		Through(stream.Split(sp), stream.Join([]byte("\r\n")))
//	err := p.Run(ctx)
//
// Every sink and transform queues at most its high-water mark of bytes. When
// a stage is saturated its Write reports Busy and the pipeline stops pulling
// from the source until the stage's drain Signal fires. Chunks are handed
// from stage to stage with ownership; no stage holds a chunk it has passed
// on.
//
// Failures are *errors.AppError values carrying one of the stream codes:
// SOURCE_READ_FAILURE, SINK_WRITE_FAILURE, TRANSFORM_FAILURE,
// CLOSED_SINK_WRITE, MALFORMED_RECORD or CANCELLED. The first failure stops
// the pipeline and is returned by Run.
package stream
