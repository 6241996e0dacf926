// SPDX-License-Identifier: Apache-2.0

package action

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when an action reference cannot be
	// resolved by any registration tier.
	ErrNotFound = errors.New("action not found")

	// ErrInvalidAction is returned when a resolved registration does not
	// produce a usable action (nil factory or nil action value).
	ErrInvalidAction = errors.New("registration does not satisfy the action contract")
)

// Registry maps action references to factories.
//
// Resolution tries three tiers in order: fully-qualified identifiers,
// built-in short names, then user-registered short names. Both resolution
// errors are raised before any side effect, so a bad reference never
// partially executes a step.
type Registry struct {
	mu        sync.RWMutex
	qualified map[string]Factory
	builtins  map[string]Factory
	user      map[string]Factory
}

// NewRegistry creates an empty registry. Built-in actions are registered
// explicitly at program start (see the builtin package); nothing is
// auto-discovered.
func NewRegistry() *Registry {
	return &Registry{
		qualified: make(map[string]Factory),
		builtins:  make(map[string]Factory),
		user:      make(map[string]Factory),
	}
}

// Register adds a user action under a short name. Registering the same
// name again replaces the earlier factory.
func (r *Registry) Register(name string, f Factory) error {
	return r.register(r.user, name, f)
}

// RegisterQualified adds an action under a fully-qualified identifier.
func (r *Registry) RegisterQualified(name string, f Factory) error {
	return r.register(r.qualified, name, f)
}

// RegisterBuiltin adds a bundled action under its well-known short name.
func (r *Registry) RegisterBuiltin(name string, f Factory) error {
	return r.register(r.builtins, name, f)
}

func (r *Registry) register(tier map[string]Factory, name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("%w: empty action name", ErrInvalidAction)
	}
	if f == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidAction, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tier[name] = f
	return nil
}

// Resolve returns an action for the given reference.
func (r *Registry) Resolve(ref string) (Action, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty action reference", ErrNotFound)
	}

	r.mu.RLock()
	factory, ok := r.qualified[ref]
	if !ok {
		factory, ok = r.builtins[ref]
	}
	if !ok {
		factory, ok = r.user[ref]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}

	a := factory()
	if a == nil {
		return nil, fmt.Errorf("%w: factory for %q returned nil", ErrInvalidAction, ref)
	}
	return a, nil
}

// Names returns every registered reference, across all tiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.qualified)+len(r.builtins)+len(r.user))
	for name := range r.qualified {
		names = append(names, name)
	}
	for name := range r.builtins {
		names = append(names, name)
	}
	for name := range r.user {
		names = append(names, name)
	}
	return names
}
