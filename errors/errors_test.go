package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeSinkWrite, "sink broke", http.StatusBadGateway)
	if err.Code != ErrCodeSinkWrite {
		t.Errorf("expected code %s, got %s", ErrCodeSinkWrite, err.Code)
	}
	if err.Message != "sink broke" {
		t.Errorf("expected message 'sink broke', got %q", err.Message)
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("expected status %d, got %d", http.StatusBadGateway, err.HTTPStatus)
	}
	if !err.Retryable {
		t.Error("SINK_WRITE_FAILURE should be retryable")
	}
}

func TestAppError_New_NotRetryable(t *testing.T) {
	err := New(ErrCodeMalformedRecord, "too long", http.StatusRequestEntityTooLarge)
	if err.Retryable {
		t.Error("MALFORMED_RECORD should not be retryable")
	}
}

func TestAppError_Transform_Details(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Transform("upper", 2, cause)
	if err.Code != ErrCodeTransform {
		t.Errorf("expected TRANSFORM_FAILURE, got %s", err.Code)
	}
	if err.Details["stage"] != "upper" {
		t.Errorf("expected stage=upper, got %v", err.Details["stage"])
	}
	if err.Details["index"] != int64(2) {
		t.Errorf("expected index=2, got %v", err.Details["index"])
	}
	if !strings.Contains(err.Message, "chunk 2") {
		t.Errorf("expected message to name the chunk, got %q", err.Message)
	}
	if err.Cause != cause {
		t.Error("expected cause to be set")
	}
}

func TestAppError_Transform_Flush(t *testing.T) {
	err := Transform("split", -1, nil)
	if !strings.Contains(err.Message, "flushing") {
		t.Errorf("expected flush message, got %q", err.Message)
	}
}

func TestAppError_MalformedRecord_Limit(t *testing.T) {
	err := MalformedRecord(1024)
	if err.Details["limit"] != 1024 {
		t.Errorf("expected limit=1024, got %v", err.Details["limit"])
	}
	if err.HTTPStatus != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", err.HTTPStatus)
	}
}

func TestAppError_InvalidConfig_Field(t *testing.T) {
	err := InvalidConfig("delimiter", "must not be empty")
	if err.Code != ErrCodeInvalidConfig {
		t.Errorf("expected INVALID_CONFIG, got %s", err.Code)
	}
	if err.Details["field"] != "delimiter" {
		t.Errorf("expected field=delimiter, got %v", err.Details["field"])
	}

	noField := InvalidConfig("", "bad wiring")
	if _, ok := noField.Details["field"]; ok {
		t.Error("expected no 'field' key when field is empty")
	}
}

func TestAppError_WithCause_Chain(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := ClosedSinkWrite("sink").WithCause(cause)
	if err.Cause != cause {
		t.Error("expected cause to be set via WithCause")
	}
	if !strings.Contains(err.Error(), "root cause") {
		t.Errorf("Error() should contain cause, got %q", err.Error())
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := SourceRead(nil).WithDetails(map[string]any{"offset": 10})
	if err.Details["offset"] != 10 {
		t.Error("expected offset=10 in details")
	}
	if err.Details["stage"] != "source" {
		t.Error("expected original details to be preserved")
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{}
	err.WithDetail("key", "value")
	if err.Details["key"] != "value" {
		t.Errorf("expected key=value, got %v", err.Details["key"])
	}
}

func TestAppError_Constructors_Table(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"SourceRead", SourceRead(nil), ErrCodeSourceRead, http.StatusBadRequest, true},
		{"SinkWrite", SinkWrite(nil), ErrCodeSinkWrite, http.StatusBadGateway, true},
		{"Transform", Transform("t", 0, nil), ErrCodeTransform, http.StatusUnprocessableEntity, false},
		{"ClosedSinkWrite", ClosedSinkWrite("sink"), ErrCodeClosedSinkWrite, http.StatusInternalServerError, false},
		{"MalformedRecord", MalformedRecord(8), ErrCodeMalformedRecord, http.StatusRequestEntityTooLarge, false},
		{"InvalidConfig", InvalidConfig("x", "y"), ErrCodeInvalidConfig, http.StatusBadRequest, false},
		{"Validation", Validation("bad"), ErrCodeInvalidConfig, http.StatusBadRequest, false},
		{"Cancelled", Cancelled(nil), ErrCodeCancelled, 499, false},
		{"Internal", Internal(nil), ErrCodeInternal, http.StatusInternalServerError, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, tc.err.HTTPStatus)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, tc.err.Retryable)
			}
		})
	}
}

func TestAppError_Is_MatchesCode(t *testing.T) {
	err := fmt.Errorf("run: %w", SinkWrite(fmt.Errorf("disk full")))
	if !stderrors.Is(err, Code(ErrCodeSinkWrite)) {
		t.Error("expected errors.Is to match on code")
	}
	if stderrors.Is(err, Code(ErrCodeSourceRead)) {
		t.Error("expected errors.Is not to match a different code")
	}
}

func TestHasCode(t *testing.T) {
	if !HasCode(fmt.Errorf("x: %w", Cancelled(nil)), ErrCodeCancelled) {
		t.Error("expected HasCode to find wrapped CANCELLED")
	}
	if HasCode(fmt.Errorf("plain"), ErrCodeCancelled) {
		t.Error("expected HasCode to be false for plain errors")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}

	orig := MalformedRecord(4)
	if Wrap(fmt.Errorf("outer: %w", orig)) != orig {
		t.Error("Wrap should return the wrapped AppError")
	}

	plain := fmt.Errorf("something broke")
	got := Wrap(plain)
	if got.Code != ErrCodeInternal || got.Cause != plain {
		t.Errorf("expected INTERNAL_ERROR wrapping the plain error, got %v", got)
	}
}

func TestAppError_ToResponse_Success(t *testing.T) {
	resp := Transform("upper", 1, nil).ToResponse()
	if resp.Error.Code != ErrCodeTransform {
		t.Errorf("expected TRANSFORM_FAILURE in response, got %s", resp.Error.Code)
	}
	if resp.Error.Details["stage"] != "upper" {
		t.Error("expected stage=upper in response details")
	}
}

func TestAppError_AsAppError(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", Internal(nil))
	got, ok := AsAppError(wrapped)
	if !ok || got.Code != ErrCodeInternal {
		t.Fatalf("expected AsAppError to find INTERNAL_ERROR, got %v %v", got, ok)
	}
	if _, ok := AsAppError(fmt.Errorf("not an app error")); ok {
		t.Error("expected AsAppError to return false for non-AppError")
	}
	if !IsAppError(wrapped) {
		t.Error("expected IsAppError to be true for wrapped AppError")
	}
}
