// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// MemoryStore is the in-memory Store. State is lost on process exit; it
// serves tests, examples and single-run tooling.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*workflow.Instance
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]*workflow.Instance)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, instance *workflow.Instance) error {
	if instance == nil || instance.ID == "" {
		return fmt.Errorf("instance must have an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.instances[instance.ID]; ok && prev.Revision != instance.Revision {
		return fmt.Errorf("%w: %s has revision %d, caller has %d",
			ErrRevisionConflict, instance.ID, prev.Revision, instance.Revision)
	}

	stored := instance.Clone()
	stored.Revision++
	s.instances[instance.ID] = stored
	instance.Revision = stored.Revision
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (*workflow.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, ok := s.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return instance.Clone(), nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.instances[id]
	return ok, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.instances, id)
	return nil
}

// FindInstances implements Store. Results are sorted newest first, with
// the instance ID breaking creation-time ties.
func (s *MemoryStore) FindInstances(_ context.Context, filter Filter) ([]*workflow.Instance, error) {
	s.mu.RLock()
	matched := make([]*workflow.Instance, 0, len(s.instances))
	for _, instance := range s.instances {
		if filter.State != "" && instance.State != filter.State {
			continue
		}
		if filter.Name != "" && (instance.Definition == nil || instance.Definition.Name() != filter.Name) {
			continue
		}
		matched = append(matched, instance.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(a, b int) bool {
		if !matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return matched[a].CreatedAt.After(matched[b].CreatedAt)
		}
		return matched[a].ID < matched[b].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*workflow.Instance{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Close implements Store. It is a no-op for the in-memory store.
func (*MemoryStore) Close() error { return nil }
