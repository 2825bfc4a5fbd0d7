package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/solvencyflow/internal/pipeline"
)

// ErrValidation marks input errors. They are fatal for the step and are never retried.
var ErrValidation = errors.New("validation error")

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Clock supplies record timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FailureRecorder marks an application as FAILED.
type FailureRecorder interface {
	MarkFailed(ctx context.Context, documentID, details string) error
}

// StatusTracker advances an application through the pipeline states.
type StatusTracker interface {
	FailureRecorder
	Advance(ctx context.Context, documentID string, to pipeline.Status) error
}

// advance records a status change. Bookkeeping failures are logged and never
// fail the step.
func advance(ctx context.Context, logCtx *slog.Logger, tracker StatusTracker, documentID string, to pipeline.Status) {
	if err := tracker.Advance(ctx, documentID, to); err != nil {
		logCtx.Warn("Failed to record pipeline status.", "status", to, "error", err)
	}
}

// handleError logs a fatal step error, marks the record FAILED and returns
// the wrapped error for the caller to surface.
func handleError(ctx context.Context, logCtx *slog.Logger, recorder FailureRecorder, documentID, message string, originalErr error) error {
	fullErr := fmt.Errorf("%s: %w", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := recorder.MarkFailed(ctx, documentID, fullErr.Error()); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fullErr
}
