// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"time"
)

// Builder constructs a Definition through a fluent API. Errors are sticky:
// the first validation failure is remembered and returned by Build, so
// call chains do not need per-call error handling.
//
//	def, err := workflow.Create("order-fulfillment").
//		AddStep("reserve", "inventory.reserve").
//		AddStep("charge", "payments.charge", workflow.WithRetryAttempts(3)).
//		Build()
type Builder struct {
	name        string
	version     string
	steps       []Step
	transitions []Transition
	metadata    map[string]any

	// conditionStack holds conditions from enclosing When scopes; steps
	// added inside a scope inherit them.
	conditionStack []string

	seen map[string]bool
	err  error
}

// Create starts a builder for a workflow with the given name.
func Create(name string) *Builder {
	b := &Builder{
		name:    name,
		version: DefaultVersion,
		seen:    make(map[string]bool),
	}
	if name == "" || !namePattern.MatchString(name) {
		b.err = NewError(KindInvalidName,
			fmt.Sprintf("workflow name %q must match %s", name, namePattern.String()), nil)
	}
	return b
}

// Version sets the version tag.
func (b *Builder) Version(v string) *Builder {
	if v != "" {
		b.version = v
	}
	return b
}

// Metadata sets a metadata entry.
func (b *Builder) Metadata(key string, value any) *Builder {
	if b.metadata == nil {
		b.metadata = make(map[string]any)
	}
	b.metadata[key] = value
	return b
}

// StepOption configures a step added through the builder.
type StepOption func(*Builder, *Step)

// WithConfig sets the step-scoped configuration.
func WithConfig(config map[string]any) StepOption {
	return func(_ *Builder, s *Step) {
		s.Config = cloneDataMap(config)
	}
}

// WithTimeout bounds the step's action invocation. Non-positive values are
// rejected with an invalid_timeout error.
func WithTimeout(d time.Duration) StepOption {
	return func(b *Builder, s *Step) {
		if d <= 0 {
			b.fail(NewError(KindInvalidTimeout,
				fmt.Sprintf("step %s: timeout must be positive, got %s", s.ID, d), nil))
			return
		}
		s.Timeout = d
	}
}

// WithRetryAttempts sets the retry count (0-10).
func WithRetryAttempts(n int) StepOption {
	return func(b *Builder, s *Step) {
		if n < 0 || n > MaxRetryAttempts {
			b.fail(NewError(KindInvalidRetryAttempts,
				fmt.Sprintf("step %s: retry_attempts %d outside 0-%d", s.ID, n, MaxRetryAttempts), nil))
			return
		}
		s.RetryAttempts = n
	}
}

// WithCompensation names the action that undoes this step.
func WithCompensation(ref string) StepOption {
	return func(_ *Builder, s *Step) {
		s.CompensationRef = ref
	}
}

// WithCondition adds a step-level condition predicate.
func WithCondition(predicate string) StepOption {
	return func(b *Builder, s *Step) {
		if predicate == "" {
			b.fail(NewError(KindInvalidCondition,
				fmt.Sprintf("step %s: empty condition", s.ID), nil))
			return
		}
		s.Conditions = append(s.Conditions, predicate)
	}
}

// WithPrerequisites lists step IDs that must complete before this step.
func WithPrerequisites(ids ...string) StepOption {
	return func(_ *Builder, s *Step) {
		s.Prerequisites = append(s.Prerequisites, ids...)
	}
}

// AddStep appends a step. Conditions from enclosing When scopes are copied
// onto the step, AND-joined with any step-local ones.
func (b *Builder) AddStep(id, actionRef string, opts ...StepOption) *Builder {
	if b.err != nil {
		return b
	}
	if id == "" {
		return b.fail(NewError(KindInvalidStepID, "step ID is required", nil))
	}
	if b.seen[id] {
		return b.fail(NewError(KindDuplicateStepID, "duplicate step ID: "+id, nil))
	}

	step := Step{
		ID:            id,
		ActionRef:     actionRef,
		RetryAttempts: RetryAttemptsUnset,
		Conditions:    cloneStrings(b.conditionStack),
	}
	for _, opt := range opts {
		opt(b, &step)
		if b.err != nil {
			return b
		}
	}

	b.seen[id] = true
	b.steps = append(b.steps, step)
	return b
}

// When runs body with condition pushed onto the scope stack; every step
// added inside inherits it.
func (b *Builder) When(condition string, body func(*Builder)) *Builder {
	if b.err != nil {
		return b
	}
	if condition == "" {
		return b.fail(NewError(KindInvalidCondition, "empty condition in When scope", nil))
	}

	b.conditionStack = append(b.conditionStack, condition)
	body(b)
	b.conditionStack = b.conditionStack[:len(b.conditionStack)-1]
	return b
}

// Email adds a step using the built-in email action.
func (b *Builder) Email(id, to, subject, body string) *Builder {
	return b.AddStep(id, "email", WithConfig(map[string]any{
		"to":      to,
		"subject": subject,
		"body":    body,
	}))
}

// HTTP adds a step using the built-in http action.
func (b *Builder) HTTP(id, method, url string) *Builder {
	return b.AddStep(id, "http", WithConfig(map[string]any{
		"method": method,
		"url":    url,
	}))
}

// Delay adds a step using the built-in delay action.
func (b *Builder) Delay(id string, d time.Duration) *Builder {
	if b.err != nil {
		return b
	}
	if d <= 0 {
		return b.fail(NewError(KindInvalidDelay,
			fmt.Sprintf("step %s: delay must be positive, got %s", id, d), nil))
	}
	return b.AddStep(id, "delay", WithConfig(map[string]any{
		"duration": d.String(),
	}))
}

// Condition adds a step using the built-in condition action.
func (b *Builder) Condition(id, predicate string) *Builder {
	if b.err != nil {
		return b
	}
	if predicate == "" {
		return b.fail(NewError(KindInvalidCondition,
			fmt.Sprintf("step %s: empty condition", id), nil))
	}
	return b.AddStep(id, "condition", WithConfig(map[string]any{
		"condition": predicate,
	}))
}

// Transition adds an unguarded edge between two steps.
func (b *Builder) Transition(from, to string) *Builder {
	return b.TransitionWhen(from, to, "")
}

// TransitionWhen adds an edge guarded by a condition predicate.
func (b *Builder) TransitionWhen(from, to, condition string) *Builder {
	if b.err != nil {
		return b
	}
	b.transitions = append(b.transitions, Transition{
		FromStepID: from,
		ToStepID:   to,
		Condition:  condition,
	})
	return b
}

// Build finalizes the definition. Without explicit transitions, sequential
// transitions in step-declaration order are generated.
func (b *Builder) Build() (*Definition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.steps) == 0 {
		return nil, NewError(KindEmptyWorkflow, "workflow must have at least one step", nil)
	}

	transitions := b.transitions
	if len(transitions) == 0 {
		transitions = sequentialTransitions(b.steps)
	}

	return NewDefinition(b.name, b.version, b.steps, transitions, b.metadata)
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// sequentialTransitions links steps in declaration order.
func sequentialTransitions(steps []Step) []Transition {
	if len(steps) < 2 {
		return nil
	}
	out := make([]Transition, 0, len(steps)-1)
	for i := 0; i < len(steps)-1; i++ {
		out = append(out, Transition{
			FromStepID: steps[i].ID,
			ToStepID:   steps[i+1].ID,
		})
	}
	return out
}
