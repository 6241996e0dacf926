// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateInstance is returned by Start when the requested
	// instance ID is already in use.
	ErrDuplicateInstance = errors.New("workflow instance already exists")

	// ErrAlreadyRunning is returned by Resume for a running instance.
	ErrAlreadyRunning = errors.New("workflow instance is already running")

	// ErrNotResumable is returned by Resume for an instance whose state
	// does not allow resumption.
	ErrNotResumable = errors.New("workflow instance cannot be resumed")

	// ErrNotCancellable is returned by Cancel for a terminal instance.
	ErrNotCancellable = errors.New("workflow instance cannot be cancelled")

	// ErrUnsupportedDefinition is returned by Start when the definition
	// argument is not a type the engine accepts.
	ErrUnsupportedDefinition = errors.New("unsupported workflow definition type")
)

// StepExecutionError is returned when a step fails fatally, after retries
// and compensation. It carries the instance data at failure time so
// callers can inspect what the workflow had produced.
type StepExecutionError struct {
	WorkflowID string
	StepID     string
	Err        error
	Data       map[string]any
}

// Error implements error.
func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("workflow %s: step %s failed: %v", e.WorkflowID, e.StepID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *StepExecutionError) Unwrap() error { return e.Err }
