// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"errors"
	"fmt"
)

// Definition error kinds. These are stable, wire-visible identifiers for
// the validation failures the builder and parser can report.
const (
	// KindInvalidName is reported when a workflow name is empty or does not
	// match the identifier pattern.
	KindInvalidName = "invalid_name"

	// KindDuplicateStepID is reported when two steps share an ID.
	KindDuplicateStepID = "duplicate_step_id"

	// KindInvalidStepID is reported when a step ID is empty or a reference
	// (prerequisite, current step) points at an unknown step.
	KindInvalidStepID = "invalid_step_id"

	// KindInvalidRetryAttempts is reported when retry_attempts is outside 0-10.
	KindInvalidRetryAttempts = "invalid_retry_attempts"

	// KindInvalidTimeout is reported when a timeout is zero, negative, or unparseable.
	KindInvalidTimeout = "invalid_timeout"

	// KindInvalidCondition is reported when a condition predicate is empty.
	KindInvalidCondition = "invalid_condition"

	// KindInvalidDelay is reported when a delay duration is zero or negative.
	KindInvalidDelay = "invalid_delay"

	// KindEmptyWorkflow is reported when a definition has no steps.
	KindEmptyWorkflow = "empty_workflow"

	// KindInvalidTransition is reported when a transition references an
	// unknown step ID.
	KindInvalidTransition = "invalid_transition"
)

// ErrInvalidDefinition is the umbrella error for all definition-time
// validation failures. Check it with errors.Is; inspect the kind with
// [IsKind] or by unwrapping to *Error.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// ErrInvalidStateTransition is returned when an instance is asked to move
// to a state not permitted by the state machine.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// Error is a definition validation error with a stable kind.
type Error struct {
	// Kind is one of the Kind* constants.
	Kind string

	// Message describes what is invalid.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrInvalidDefinition
}

// Is reports whether this error matches ErrInvalidDefinition, so that all
// validation failures satisfy errors.Is(err, ErrInvalidDefinition).
func (*Error) Is(target error) bool {
	return target == ErrInvalidDefinition
}

// NewError creates a new definition validation error.
func NewError(kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err is a definition error of the given kind.
func IsKind(err error, kind string) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
