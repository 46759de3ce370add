package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if running the pipeline again may succeed.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context such as the stage name or chunk index.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is a bare AppError (see Code) with the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Cause == nil
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// Code returns a bare AppError usable as an errors.Is target for code.
func Code(code ErrorCode) *AppError {
	return &AppError{Code: code}
}

// --- Stage failures ---

// SourceRead creates an AppError for a raw byte source that failed during a pull.
func SourceRead(cause error) *AppError {
	return &AppError{
		Code: ErrCodeSourceRead, Message: "reading from source failed",
		HTTPStatus: http.StatusBadRequest, Retryable: true, Cause: cause,
		Details: map[string]any{"stage": "source"},
	}
}

// SinkWrite creates an AppError for a raw byte sink that rejected data.
func SinkWrite(cause error) *AppError {
	return &AppError{
		Code: ErrCodeSinkWrite, Message: "writing to sink failed",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
		Details: map[string]any{"stage": "sink"},
	}
}

// Transform creates an AppError for a mapping step that failed on the index-th
// input chunk of the named stage. A negative index marks the flush hook.
func Transform(stage string, index int64, cause error) *AppError {
	msg := fmt.Sprintf("transform %q failed on chunk %d", stage, index)
	if index < 0 {
		msg = fmt.Sprintf("transform %q failed while flushing", stage)
	}
	return &AppError{
		Code: ErrCodeTransform, Message: msg,
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false, Cause: cause,
		Details: map[string]any{"stage": stage, "index": index},
	}
}

// --- Contract violations ---

// ClosedSinkWrite creates an AppError for a write submitted after close.
func ClosedSinkWrite(stage string) *AppError {
	return &AppError{
		Code: ErrCodeClosedSinkWrite, Message: "write after close",
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"stage": stage},
	}
}

// MalformedRecord creates an AppError for a record exceeding limit bytes
// without a delimiter.
func MalformedRecord(limit int) *AppError {
	return &AppError{
		Code: ErrCodeMalformedRecord, Message: fmt.Sprintf("record exceeds %d bytes without a delimiter", limit),
		HTTPStatus: http.StatusRequestEntityTooLarge, Retryable: false,
		Details: map[string]any{"limit": limit},
	}
}

// InvalidConfig creates an AppError for a rejected option or wiring.
func InvalidConfig(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid configuration: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates an INVALID_CONFIG AppError from an aggregated validation message.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// --- Run control ---

// Cancelled creates an AppError for a pipeline stopped by its context.
func Cancelled(cause error) *AppError {
	return &AppError{
		Code: ErrCodeCancelled, Message: "pipeline cancelled",
		HTTPStatus: 499, Retryable: false, Cause: cause,
	}
}

// Internal creates a new AppError for an unexpected failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// Wrap converts any error into an AppError. AppErrors anywhere in the chain are
// returned as-is, plain errors become INTERNAL_ERROR.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}
