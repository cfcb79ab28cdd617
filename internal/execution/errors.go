package execution

import (
	"errors"
	"fmt"
)

// ErrRateLimited means the local minimum inter-trade interval guard
// rejected the intent before any venue call was made.
var ErrRateLimited = errors.New("execution: rate limited by minimum trade interval")

// SubmissionError means the venue rejected the order. Position state is
// unchanged and the failure is safe to surface and move on from.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution: order rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("execution: order rejected: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ConfirmationUnknownError means the order was submitted but its outcome
// could not be determined. A real position may exist at the venue that
// the engine does not know about; this is terminal until an operator
// reconciles via position sync.
type ConfirmationUnknownError struct {
	DealReference string
	Err           error
}

func (e *ConfirmationUnknownError) Error() string {
	return fmt.Sprintf("execution: outcome unknown for deal reference %s: %v", e.DealReference, e.Err)
}

func (e *ConfirmationUnknownError) Unwrap() error { return e.Err }
