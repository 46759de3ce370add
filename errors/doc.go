// Package errors provides the error taxonomy of the streaming engine.
//
// A pipeline terminates with either nil or exactly one *AppError. The code
// tells which stage failed:
//
//	SOURCE_READ_FAILURE  the raw byte source returned an error
//	SINK_WRITE_FAILURE   the raw byte sink rejected a write or its final flush
//	TRANSFORM_FAILURE    a mapping step or flush hook returned an error
//	CLOSED_SINK_WRITE    a chunk was written after close was requested
//	MALFORMED_RECORD     a record outgrew the configured maximum before its delimiter
//	CANCELLED            the run context was cancelled
//	INVALID_CONFIG       options or wiring were rejected before the run started
//
// Use HasCode or errors.Is with Code(...) to match:
//
//	if errors.HasCode(err, errors.ErrCodeTransform) { ... }
package errors
