package stream

import (
	"context"

	apperrors "github.com/kbukum/bytepipe/errors"
)

// Sentinels usable with errors.Is.
var (
	ErrClosedSink      = apperrors.Code(apperrors.ErrCodeClosedSinkWrite)
	ErrSourceRead      = apperrors.Code(apperrors.ErrCodeSourceRead)
	ErrSinkWrite       = apperrors.Code(apperrors.ErrCodeSinkWrite)
	ErrTransform       = apperrors.Code(apperrors.ErrCodeTransform)
	ErrMalformedRecord = apperrors.Code(apperrors.ErrCodeMalformedRecord)
	ErrCancelled       = apperrors.Code(apperrors.ErrCodeCancelled)
)

func cancelled(ctx context.Context) error {
	return apperrors.Cancelled(context.Cause(ctx))
}

// asSourceErr classifies an error surfaced by a pull.
func asSourceErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.SourceRead(err)
}

// asSinkErr classifies an error surfaced by a write, close or drain wait.
func asSinkErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.SinkWrite(err)
}
