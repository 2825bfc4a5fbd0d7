package pipeline

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of one application, stored on its result record.
type Status string

const (
	StatusInitiated          Status = "INITIATED"
	StatusOCRInProgress      Status = "OCR_IN_PROGRESS"
	StatusOCRComplete        Status = "OCR_COMPLETE"
	StatusDecisionInProgress Status = "DECISION_IN_PROGRESS"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusManualReview       Status = "MANUAL_REVIEW"
	StatusFailed             Status = "FAILED"
)

var ErrInvalidTransition = errors.New("invalid pipeline transition")

// transitions lists the forward edges. FAILED is reachable from every
// non-terminal state and is handled separately. The self-edges on the
// in-progress states let a workflow retry a step.
var transitions = map[Status][]Status{
	StatusInitiated:          {StatusOCRInProgress},
	StatusOCRInProgress:      {StatusOCRInProgress, StatusOCRComplete},
	StatusOCRComplete:        {StatusDecisionInProgress},
	StatusDecisionInProgress: {StatusDecisionInProgress, StatusApproved, StatusRejected, StatusManualReview},
}

var allStatuses = []Status{
	StatusInitiated,
	StatusOCRInProgress,
	StatusOCRComplete,
	StatusDecisionInProgress,
	StatusApproved,
	StatusRejected,
	StatusManualReview,
	StatusFailed,
}

// ParseStatus converts a raw string into a known Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline status %q", s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusManualReview, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a record in state from may move to state to.
// The empty state stands for "no record yet" and may only become INITIATED.
func CanTransition(from, to Status) bool {
	if from == "" {
		return to == StatusInitiated
	}
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns nil when the move is allowed and a wrapped
// ErrInvalidTransition otherwise.
func Transition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	if from == "" {
		return fmt.Errorf("%w: no record to move to %s", ErrInvalidTransition, to)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
