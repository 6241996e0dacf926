// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"time"

	"dario.cat/mergo"
)

// Context is the immutable data bundle handed to an action for one step
// execution: the instance's current merged data plus the step's scoped
// configuration.
//
// Context is a value type. With and WithData return new Contexts; the
// original is never mutated, so a Context is safe to share across
// goroutines if an action chooses to fan out internally.
type Context struct {
	workflowID string
	stepID     string
	data       map[string]any
	config     map[string]any
	executedAt time.Time
}

// NewContext builds a Context for a step execution. The data and config
// maps are deep-copied.
func NewContext(workflowID, stepID string, data, config map[string]any) Context {
	return Context{
		workflowID: workflowID,
		stepID:     stepID,
		data:       cloneDataMap(data),
		config:     cloneDataMap(config),
		executedAt: time.Now().UTC(),
	}
}

// WorkflowID returns the owning instance's ID.
func (c Context) WorkflowID() string { return c.workflowID }

// StepID returns the currently executing step's ID.
func (c Context) StepID() string { return c.stepID }

// ExecutedAt returns when this context was constructed.
func (c Context) ExecutedAt() time.Time { return c.executedAt }

// Data returns a deep copy of the context data.
func (c Context) Data() map[string]any { return cloneDataMap(c.data) }

// Config returns a deep copy of the step-scoped configuration.
func (c Context) Config() map[string]any { return cloneDataMap(c.config) }

// Get resolves a dot-separated path into the context data. Missing paths
// return nil.
func (c Context) Get(path string) any {
	v, _ := c.Lookup(path)
	return v
}

// Lookup resolves a dot-separated path into the context data, reporting
// whether the full path exists.
func (c Context) Lookup(path string) (any, bool) {
	return lookupPath(c.data, path)
}

// ConfigValue returns a step configuration value by key.
func (c Context) ConfigValue(key string) (any, bool) {
	v, ok := c.config[key]
	return v, ok
}

// With returns a new Context with the given top-level key set.
func (c Context) With(key string, value any) Context {
	next := c
	next.data = cloneDataMap(c.data)
	if next.data == nil {
		next.data = make(map[string]any, 1)
	}
	next.data[key] = cloneValue(value)
	return next
}

// WithData returns a new Context with m merged into the data, overriding
// existing keys and merging nested maps.
func (c Context) WithData(m map[string]any) Context {
	next := c
	next.data = cloneDataMap(c.data)
	if next.data == nil {
		next.data = make(map[string]any, len(m))
	}
	// mergo only fails on type mismatches between dst and src; the
	// cloned destination map guarantees compatible types here.
	_ = mergo.Merge(&next.data, cloneDataMap(m), mergo.WithOverride)
	return next
}

// lookupPath walks nested maps along a dot-separated path, preserving the
// native Go types stored in the map.
func lookupPath(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	current := any(data)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1

		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
