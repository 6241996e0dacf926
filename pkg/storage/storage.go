// SPDX-License-Identifier: Apache-2.0

// Package storage defines the persistence contract for workflow instances
// and provides the in-memory reference implementation. Durable backends
// live in subpackages.
package storage

import (
	"context"
	"errors"

	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

var (
	// ErrNotFound is returned when no instance exists for an ID.
	ErrNotFound = errors.New("workflow instance not found")

	// ErrRevisionConflict is returned when a save loses an optimistic
	// concurrency race: another writer persisted a newer revision.
	ErrRevisionConflict = errors.New("workflow instance revision conflict")
)

// Filter narrows FindInstances results. Zero-valued fields match
// everything.
type Filter struct {
	// State matches instances in one lifecycle state.
	State workflow.State

	// Name matches instances of one workflow definition.
	Name string

	// Limit caps the number of returned instances; zero means no cap.
	Limit int

	// Offset skips that many instances, applied after sorting.
	Offset int
}

// Store persists workflow instances.
//
// Implementations must return isolated copies: a caller mutating a loaded
// instance must not affect stored state until it calls Save. Save enforces
// optimistic concurrency through Instance.Revision and increments it on
// success.
type Store interface {
	// Save persists the instance, creating it when new. When the stored
	// revision is newer than the caller's, Save returns
	// ErrRevisionConflict and persists nothing.
	Save(ctx context.Context, instance *workflow.Instance) error

	// Load returns the instance, or ErrNotFound.
	Load(ctx context.Context, id string) (*workflow.Instance, error)

	// Exists reports whether an instance with the ID is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// Delete removes the instance, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// FindInstances returns instances matching the filter, newest first.
	FindInstances(ctx context.Context, filter Filter) ([]*workflow.Instance, error)

	// Close releases backend resources.
	Close() error
}
