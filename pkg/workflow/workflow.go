// SPDX-License-Identifier: Apache-2.0

// Package workflow defines the durable workflow model: immutable
// definitions (steps, transitions, conditions), the mutable persisted
// instance with its state machine, the immutable execution context, and
// action results.
//
// A Definition is a named, versioned graph of steps. It is built once,
// through the fluent [Builder] or the declarative [Parse]/[ParseYAML]
// entry points, and never mutated afterwards. Instances reference a
// serialized snapshot of their definition so that code changes to step
// layouts do not desynchronize in-flight executions.
package workflow

import (
	"encoding/json"
	"regexp"
	"time"
)

const (
	// DefaultVersion is used when a definition does not declare a version.
	DefaultVersion = "1.0"

	// MaxRetryAttempts is the maximum number of retries allowed per step.
	// This prevents infinite retry loops from malicious configurations.
	MaxRetryAttempts = 10

	// maxWorkflowSteps is the maximum number of steps allowed in a workflow.
	// This prevents resource exhaustion from maliciously large workflows.
	maxWorkflowSteps = 100

	// RetryAttemptsUnset marks a step that did not declare retry_attempts.
	// Such steps inherit the resolved action's declarative settings.
	RetryAttemptsUnset = -1
)

// namePattern constrains workflow names to identifier-like strings.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Step is a single node in a workflow graph.
//
// Steps are value types. The engine never mutates a Step after its
// Definition is built; accessors on Definition hand out copies.
type Step struct {
	// ID uniquely identifies this step within the definition.
	ID string `json:"id"`

	// ActionRef names the action implementation to invoke. It may be a
	// fully-qualified identifier, a built-in short name (log, delay,
	// email, http, condition) or a user-registered short name.
	ActionRef string `json:"action,omitempty"`

	// Config is step-scoped configuration passed to the action through
	// the execution context.
	Config map[string]any `json:"config,omitempty"`

	// Timeout bounds a single action invocation. Zero means the step
	// inherits the action's declared timeout, or the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RetryAttempts is the number of retries after a failed invocation
	// (0-10). RetryAttemptsUnset means the step inherits the action's
	// declared retry policy.
	RetryAttempts int `json:"retry_attempts"`

	// CompensationRef names the action run to undo this step if a later
	// step fails after this one completed.
	CompensationRef string `json:"compensation,omitempty"`

	// Conditions are predicate strings evaluated against instance data
	// before the step executes. All must hold; a false condition marks
	// the step as legitimately skipped.
	Conditions []string `json:"conditions,omitempty"`

	// Prerequisites are step IDs that must be completed before this step
	// becomes eligible.
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// clone returns a deep copy of the step.
func (s Step) clone() Step {
	c := s
	c.Config = cloneDataMap(s.Config)
	c.Conditions = cloneStrings(s.Conditions)
	c.Prerequisites = cloneStrings(s.Prerequisites)
	return c
}

// Transition is a directed edge between two steps, optionally guarded by a
// condition predicate. A step with no outgoing transition is terminal.
type Transition struct {
	// FromStepID is the source step.
	FromStepID string `json:"from"`

	// ToStepID is the target step.
	ToStepID string `json:"to"`

	// Condition, if non-empty, must evaluate true against instance data
	// for the transition to be followed.
	Condition string `json:"condition,omitempty"`
}

// Definition is an immutable workflow blueprint: an insertion-ordered set
// of steps plus the transitions between them.
//
// All fields are unexported; accessors return copies so a Definition can
// be shared freely across goroutines.
type Definition struct {
	name        string
	version     string
	steps       []Step
	stepIndex   map[string]int
	transitions []Transition
	metadata    map[string]any
}

// NewDefinition builds a validated Definition. Step order is preserved as
// given; it determines the first-step fallback and candidate ordering.
func NewDefinition(
	name, version string,
	steps []Step,
	transitions []Transition,
	metadata map[string]any,
) (*Definition, error) {
	if version == "" {
		version = DefaultVersion
	}

	d := &Definition{
		name:        name,
		version:     version,
		steps:       make([]Step, 0, len(steps)),
		stepIndex:   make(map[string]int, len(steps)),
		transitions: make([]Transition, len(transitions)),
		metadata:    cloneDataMap(metadata),
	}

	for _, s := range steps {
		d.steps = append(d.steps, s.clone())
	}
	copy(d.transitions, transitions)

	for i := range d.steps {
		id := d.steps[i].ID
		if _, dup := d.stepIndex[id]; dup {
			return nil, NewError(KindDuplicateStepID, "duplicate step ID: "+id, nil)
		}
		d.stepIndex[id] = i
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Name returns the workflow name.
func (d *Definition) Name() string { return d.name }

// Version returns the workflow version tag.
func (d *Definition) Version() string { return d.version }

// Steps returns the steps in insertion order. The returned slice and its
// contents are copies.
func (d *Definition) Steps() []Step {
	out := make([]Step, 0, len(d.steps))
	for _, s := range d.steps {
		out = append(out, s.clone())
	}
	return out
}

// Step returns the step with the given ID.
func (d *Definition) Step(id string) (Step, bool) {
	i, ok := d.stepIndex[id]
	if !ok {
		return Step{}, false
	}
	return d.steps[i].clone(), true
}

// HasStep reports whether a step with the given ID exists.
func (d *Definition) HasStep(id string) bool {
	_, ok := d.stepIndex[id]
	return ok
}

// StepCount returns the number of steps.
func (d *Definition) StepCount() int { return len(d.steps) }

// Transitions returns the transitions in declaration order.
func (d *Definition) Transitions() []Transition {
	out := make([]Transition, len(d.transitions))
	copy(out, d.transitions)
	return out
}

// Metadata returns a copy of the definition metadata.
func (d *Definition) Metadata() map[string]any {
	return cloneDataMap(d.metadata)
}

// definitionDoc is the serialized form of a Definition. It is the snapshot
// persisted with each instance.
type definitionDoc struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Steps       []Step         `json:"steps"`
	Transitions []Transition   `json:"transitions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON serializes the definition with steps in insertion order.
func (d *Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(definitionDoc{
		Name:        d.name,
		Version:     d.version,
		Steps:       d.steps,
		Transitions: d.transitions,
		Metadata:    d.metadata,
	})
}

// UnmarshalJSON deserializes and re-validates a definition snapshot.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var doc definitionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	nd, err := NewDefinition(doc.Name, doc.Version, doc.Steps, doc.Transitions, doc.Metadata)
	if err != nil {
		return err
	}
	*d = *nd
	return nil
}
