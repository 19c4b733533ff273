package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned for unknown attempt ids.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrResultNotFound is returned when no submitted result exists yet.
	ErrResultNotFound = errors.New("result not found")
	// ErrForbidden is returned when a user acts on an attempt that is not theirs.
	ErrForbidden = errors.New("not authorized for this attempt")
	// ErrAttemptCompleted blocks a new attempt once one was submitted.
	ErrAttemptCompleted = errors.New("quiz already completed; multiple attempts are not allowed")
	// ErrTimeLimitExceeded is the server's authoritative staleness rejection.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")

	// ErrAlreadyExpired means both the start and the single retry yielded no remaining time.
	ErrAlreadyExpired = errors.New("attempt already expired")
	// ErrAlreadySubmitted is returned by a no-op submit: one is in flight or has completed.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrSubmitCancelled is returned when the user declines the manual-submit confirmation.
	ErrSubmitCancelled = errors.New("submission cancelled")
	// ErrNotActive is returned when an operation needs an active attempt.
	ErrNotActive = errors.New("no active attempt")
)

// ProtocolError reports a malformed attempt-store response.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IncompleteAnswersError blocks a manual submit. It is a validation signal, not a failure.
type IncompleteAnswersError struct {
	Unanswered int
}

func (e *IncompleteAnswersError) Error() string {
	return fmt.Sprintf("%d question(s) unanswered", e.Unanswered)
}

// SubmissionFailedError wraps a network or server error during submit.
// The submission gate is reopened, so the same trigger may be retried.
type SubmissionFailedError struct {
	Trigger string
	Err     error
}

func (e *SubmissionFailedError) Error() string {
	return fmt.Sprintf("%s submission failed: %v", e.Trigger, e.Err)
}

func (e *SubmissionFailedError) Unwrap() error { return e.Err }
