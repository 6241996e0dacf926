// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// State is the lifecycle state of a workflow instance.
type State string

const (
	// StatePending indicates the instance was created but not yet executed.
	StatePending State = "pending"

	// StateRunning indicates the executor is driving the instance.
	StateRunning State = "running"

	// StateWaiting indicates execution paused because no candidate step
	// was executable; an external signal may make one eligible.
	StateWaiting State = "waiting"

	// StatePaused indicates the instance was explicitly paused.
	StatePaused State = "paused"

	// StateCompleted indicates every reachable step completed.
	StateCompleted State = "completed"

	// StateFailed indicates a step failure was fatal to the workflow.
	StateFailed State = "failed"

	// StateCancelled indicates the instance was cancelled.
	StateCancelled State = "cancelled"
)

// stateTransitions is the allowed state machine. Terminal states admit no
// further transitions.
var stateTransitions = map[State][]State{
	StatePending: {StateRunning, StateCancelled},
	StateRunning: {StateWaiting, StatePaused, StateCompleted, StateFailed, StateCancelled},
	StateWaiting: {StateRunning, StateFailed, StateCancelled},
	StatePaused:  {StateRunning, StateCancelled},
}

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FailedStep is one entry in the instance's append-only failure log.
type FailedStep struct {
	// StepID is the step (or compensation) that failed.
	StepID string `json:"step_id"`

	// Error is the failure message.
	Error string `json:"error"`

	// FailedAt is when the failure was recorded.
	FailedAt time.Time `json:"failed_at"`
}

// Instance is one durable execution of a workflow definition. It is the
// only mutable aggregate in the model; every mutation is persisted through
// the engine's state manager.
type Instance struct {
	// ID uniquely identifies the instance across all workflows.
	ID string `json:"id"`

	// Definition is the snapshot of the definition this instance runs, so
	// that in-flight instances survive code changes to step layouts.
	Definition *Definition `json:"definition"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// Data is the current merged context data.
	Data map[string]any `json:"data"`

	// CurrentStepID names the step currently executing, or the last step
	// reached when nothing is in flight. Empty before the first step runs.
	CurrentStepID string `json:"current_step_id,omitempty"`

	// CompletedSteps lists completed step IDs in completion order. Each
	// ID appears at most once.
	CompletedSteps []string `json:"completed_steps"`

	// FailedSteps is the append-only log of step and compensation failures.
	FailedSteps []FailedStep `json:"failed_steps"`

	// ErrorMessage is set when the instance transitions to failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// Revision counts persisted revisions, used for optimistic
	// concurrency in stores that support it.
	Revision int64 `json:"revision"`

	// CreatedAt is when the instance was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt advances strictly monotonically with every persisted
	// revision.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInstance creates a pending instance for the given definition.
func NewInstance(id string, def *Definition, data map[string]any) *Instance {
	now := time.Now().UTC()
	return &Instance{
		ID:             id,
		Definition:     def,
		State:          StatePending,
		Data:           cloneDataMap(data),
		CompletedSteps: []string{},
		FailedSteps:    []FailedStep{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo moves the instance to the next state, enforcing the state
// machine. Terminal states reject every transition.
func (i *Instance) TransitionTo(next State) error {
	if !i.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, i.State, next)
	}
	i.State = next
	return nil
}

// MarkStepCompleted adds a step to the completed set. It is idempotent.
func (i *Instance) MarkStepCompleted(stepID string) {
	if i.HasCompleted(stepID) {
		return
	}
	i.CompletedSteps = append(i.CompletedSteps, stepID)
}

// HasCompleted reports whether the step already completed.
func (i *Instance) HasCompleted(stepID string) bool {
	for _, id := range i.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// RecordStepFailure appends to the failure log.
func (i *Instance) RecordStepFailure(stepID, errMsg string) {
	i.FailedSteps = append(i.FailedSteps, FailedStep{
		StepID:   stepID,
		Error:    errMsg,
		FailedAt: time.Now().UTC(),
	})
}

// MergeData merges m into the instance data, overriding existing keys and
// merging nested maps.
func (i *Instance) MergeData(m map[string]any) error {
	if len(m) == 0 {
		return nil
	}
	if i.Data == nil {
		i.Data = make(map[string]any, len(m))
	}
	return mergo.Merge(&i.Data, cloneDataMap(m), mergo.WithOverride)
}

// Progress returns the percentage of definition steps completed.
func (i *Instance) Progress() float64 {
	if i.Definition == nil || i.Definition.StepCount() == 0 {
		return 0
	}
	return float64(len(i.CompletedSteps)) / float64(i.Definition.StepCount()) * 100
}

// Clone returns a deep copy of the instance. The definition snapshot is
// shared; it is immutable.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}

	clone := *i
	clone.Data = cloneDataMap(i.Data)
	clone.CompletedSteps = append([]string{}, i.CompletedSteps...)
	clone.FailedSteps = append([]FailedStep{}, i.FailedSteps...)
	return &clone
}
