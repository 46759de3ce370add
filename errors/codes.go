package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Stage failures
const (
	// ErrCodeSourceRead indicates the raw byte source failed while being pulled.
	ErrCodeSourceRead ErrorCode = "SOURCE_READ_FAILURE"
	// ErrCodeSinkWrite indicates the raw byte sink rejected a write or its final flush.
	ErrCodeSinkWrite ErrorCode = "SINK_WRITE_FAILURE"
	// ErrCodeTransform indicates a mapping step or flush hook inside a transform failed.
	ErrCodeTransform ErrorCode = "TRANSFORM_FAILURE"
)

// Contract violations
const (
	// ErrCodeClosedSinkWrite indicates a write was attempted after close was requested.
	ErrCodeClosedSinkWrite ErrorCode = "CLOSED_SINK_WRITE"
	// ErrCodeMalformedRecord indicates a record grew past the configured maximum before a delimiter was found.
	ErrCodeMalformedRecord ErrorCode = "MALFORMED_RECORD"
	// ErrCodeInvalidConfig indicates invalid options or an illegal pipeline wiring.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Run control
const (
	// ErrCodeCancelled indicates the pipeline was cancelled through its context.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeInternal indicates an unexpected failure inside the engine.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Raw sources and sinks are often network resources, so their failures may
// succeed on a fresh pipeline. Everything else is deterministic.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeSourceRead: true,
	ErrCodeSinkWrite:  true,
	ErrCodeCancelled:  false,
	ErrCodeInternal:   false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
