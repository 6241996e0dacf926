// SPDX-License-Identifier: Apache-2.0

// Package engine is the public entry point of the workflow engine. It
// owns the instance lifecycle: starting, resuming, cancelling and
// inspecting workflow instances backed by a storage.Store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/action/builtin"
	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// Engine coordinates workflow execution over a store. It is safe for
// concurrent use; independent instances execute independently.
type Engine struct {
	store    storage.Store
	state    *stateManager
	registry *action.Registry
	sink     EventSink
	executor *executor
	sem      *semaphore.Weighted
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventSink sets the lifecycle event sink. The default is a LogSink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithRegistry replaces the action registry. The default registry carries
// the built-in actions.
func WithRegistry(r *action.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithMaxConcurrent caps how many instances execute simultaneously.
// Start and Resume block while the engine is at capacity. Zero or
// negative means no cap.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// New creates an Engine over the given store.
func New(store storage.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine requires a store")
	}

	e := &Engine{
		store: store,
		state: newStateManager(store),
		sink:  LogSink{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = action.NewRegistry()
		if err := builtin.Register(e.registry); err != nil {
			return nil, fmt.Errorf("registering built-in actions: %w", err)
		}
	}

	e.executor = newExecutor(e.registry, e.state, e.sink)
	return e, nil
}

// Registry returns the engine's action registry, for registering user
// actions.
func (e *Engine) Registry() *action.Registry {
	return e.registry
}

// Start creates an instance of the definition and executes it until it
// completes, parks or fails. It returns the instance ID in every case;
// the error reflects the execution outcome.
//
// The definition may be a *workflow.Definition, a declarative
// map[string]any, or YAML as []byte or string. An empty id gets a
// generated UUID.
func (e *Engine) Start(ctx context.Context, id string, def any, initialData map[string]any) (string, error) {
	definition, err := coerceDefinition(def)
	if err != nil {
		return "", err
	}

	if id == "" {
		id = uuid.NewString()
	}

	exists, err := e.store.Exists(ctx, id)
	if err != nil {
		return "", fmt.Errorf("checking for existing instance: %w", err)
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateInstance, id)
	}

	instance := workflow.NewInstance(id, definition, initialData)
	if err := e.state.save(ctx, instance); err != nil {
		// A concurrent Start with the same ID can slip past the Exists
		// check; the store's revision check catches it on the first save.
		if errors.Is(err, storage.ErrRevisionConflict) {
			return "", fmt.Errorf("%w: %s", ErrDuplicateInstance, id)
		}
		return "", err
	}

	emit(ctx, e.sink, instance, EventWorkflowStarted, map[string]any{
		"version": definition.Version(),
	})

	if err := e.state.transition(ctx, instance, workflow.StateRunning); err != nil {
		return id, err
	}
	return id, e.execute(ctx, instance)
}

// Resume continues a waiting or paused instance. Terminal instances are
// not resumable, and a running instance is already being driven.
func (e *Engine) Resume(ctx context.Context, id string) error {
	instance, err := e.state.load(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case instance.State.IsTerminal():
		return fmt.Errorf("%w: %s is %s", ErrNotResumable, id, instance.State)
	case instance.State == workflow.StateRunning:
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	case instance.State == workflow.StatePending:
		// A pending instance never started executing; drive it from the
		// beginning.
	default:
		// waiting or paused
	}

	if err := e.state.transition(ctx, instance, workflow.StateRunning); err != nil {
		return err
	}
	return e.execute(ctx, instance)
}

// Cancel terminally cancels a non-terminal instance.
func (e *Engine) Cancel(ctx context.Context, id, reason string) error {
	instance, err := e.state.load(ctx, id)
	if err != nil {
		return err
	}
	if instance.State.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, id, instance.State)
	}

	if reason != "" {
		instance.ErrorMessage = reason
	}
	if err := e.state.transition(ctx, instance, workflow.StateCancelled); err != nil {
		return err
	}

	emit(ctx, e.sink, instance, EventWorkflowCancelled, map[string]any{
		"reason": reason,
	})
	return nil
}

// Get returns the stored instance.
func (e *Engine) Get(ctx context.Context, id string) (*workflow.Instance, error) {
	return e.state.load(ctx, id)
}

// Summary is a compact instance view for listings.
type Summary struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	State       workflow.State `json:"state"`
	CurrentStep string         `json:"current_step,omitempty"`
	Progress    float64        `json:"progress"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// List returns summaries of stored instances matching the filter, newest
// first.
func (e *Engine) List(ctx context.Context, filter storage.Filter) ([]Summary, error) {
	instances, err := e.store.FindInstances(ctx, filter)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(instances))
	for _, instance := range instances {
		summaries = append(summaries, summarize(instance))
	}
	return summaries, nil
}

// Status returns a compact view of one instance.
func (e *Engine) Status(ctx context.Context, id string) (Summary, error) {
	instance, err := e.state.load(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return summarize(instance), nil
}

func summarize(instance *workflow.Instance) Summary {
	s := Summary{
		ID:          instance.ID,
		State:       instance.State,
		CurrentStep: instance.CurrentStepID,
		Progress:    instance.Progress(),
		CreatedAt:   instance.CreatedAt,
		UpdatedAt:   instance.UpdatedAt,
	}
	if instance.Definition != nil {
		s.Name = instance.Definition.Name()
		s.Version = instance.Definition.Version()
	}
	return s
}

// execute drives the instance under the concurrency cap.
func (e *Engine) execute(ctx context.Context, instance *workflow.Instance) error {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer e.sem.Release(1)
	}
	return e.executor.run(ctx, instance)
}

// coerceDefinition accepts the definition forms Start supports.
func coerceDefinition(def any) (*workflow.Definition, error) {
	switch d := def.(type) {
	case *workflow.Definition:
		if d == nil {
			return nil, fmt.Errorf("%w: nil definition", ErrUnsupportedDefinition)
		}
		return d, nil
	case map[string]any:
		return workflow.Parse(d)
	case []byte:
		return workflow.ParseYAML(d)
	case string:
		return workflow.ParseYAML([]byte(d))
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDefinition, def)
	}
}
