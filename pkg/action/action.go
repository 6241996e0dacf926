// SPDX-License-Identifier: Apache-2.0

// Package action defines the contract for user-supplied units of work and
// the registry that resolves action references from workflow definitions
// to implementations.
package action

import (
	"context"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// Action is a unit of work invoked by the executor for one step.
//
// Implementations must be safe for concurrent use: the same Action value
// may serve steps of independent instances in parallel.
type Action interface {
	// Execute performs the step's work. The workflow context carries the
	// instance's merged data and the step's configuration; ctx carries
	// cancellation and the step timeout.
	Execute(ctx context.Context, wfCtx workflow.Context) workflow.ActionResult

	// CanExecute is a pre-flight predicate. When it returns false the
	// step is deferred: left unprocessed this pass, not failed.
	CanExecute(ctx context.Context, wfCtx workflow.Context) bool

	// Name returns a short human-readable name.
	Name() string

	// Description returns a human-readable description.
	Description() string
}

// Factory constructs a fresh Action value. The registry stores factories
// rather than instances so stateful actions get a value per resolution.
type Factory func() Action

// Backoff strategies for retry delays.
const (
	// BackoffFixed waits the base delay between every attempt.
	BackoffFixed = "fixed"

	// BackoffLinear waits delay * attempt, capped at the max delay.
	BackoffLinear = "linear"

	// BackoffExponential doubles the delay per attempt, capped at the
	// max delay.
	BackoffExponential = "exponential"
)

// Backoff describes the retry delay policy declared by an action.
type Backoff struct {
	// Strategy is one of the Backoff* constants.
	Strategy string

	// Delay is the base delay between attempts.
	Delay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
}

// DefaultBackoff returns the default retry policy: exponential backoff
// starting at one second, capped at thirty seconds.
func DefaultBackoff() Backoff {
	return Backoff{
		Strategy: BackoffExponential,
		Delay:    time.Second,
		MaxDelay: 30 * time.Second,
	}
}

// Settings is the declarative per-action configuration an implementation
// may attach to itself. Step-level settings from the definition always
// win over these.
type Settings struct {
	// Timeout bounds a single invocation. Zero means no declared timeout.
	Timeout time.Duration

	// RetryAttempts is the declared retry count (0-10).
	RetryAttempts int

	// Backoff is the retry delay policy.
	Backoff Backoff

	// Condition is a predicate evaluated against instance data before
	// execution, AND-joined with step-level conditions.
	Condition string
}

// Configurable is implemented by actions that declare settings on the
// implementation itself. The executor reads them through [SettingsFor].
type Configurable interface {
	ActionSettings() Settings
}

// SettingsFor returns the action's declared settings, or defaults when
// the action declares none. A zero-valued Backoff is replaced with
// [DefaultBackoff].
func SettingsFor(a Action) Settings {
	var s Settings
	if c, ok := a.(Configurable); ok {
		s = c.ActionSettings()
	}
	if s.Backoff == (Backoff{}) {
		s.Backoff = DefaultBackoff()
	}
	if s.Backoff.Delay <= 0 {
		s.Backoff.Delay = DefaultBackoff().Delay
	}
	if s.Backoff.MaxDelay <= 0 {
		s.Backoff.MaxDelay = DefaultBackoff().MaxDelay
	}
	return s
}
