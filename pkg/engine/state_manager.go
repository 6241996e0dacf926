// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// stateManager is the single write path for instance state. Every
// mutation goes through save, which advances UpdatedAt strictly
// monotonically before delegating to the store; the store enforces
// optimistic concurrency through the revision counter.
type stateManager struct {
	store storage.Store
}

func newStateManager(store storage.Store) *stateManager {
	return &stateManager{store: store}
}

func (m *stateManager) save(ctx context.Context, instance *workflow.Instance) error {
	now := time.Now().UTC()
	// Wall clocks can stand still or step backwards; the ordering
	// guarantee on UpdatedAt must not.
	if !now.After(instance.UpdatedAt) {
		now = instance.UpdatedAt.Add(time.Nanosecond)
	}
	instance.UpdatedAt = now
	return m.store.Save(ctx, instance)
}

func (m *stateManager) load(ctx context.Context, id string) (*workflow.Instance, error) {
	return m.store.Load(ctx, id)
}

// transition moves the instance to next and persists.
func (m *stateManager) transition(ctx context.Context, instance *workflow.Instance, next workflow.State) error {
	if err := instance.TransitionTo(next); err != nil {
		return err
	}
	return m.save(ctx, instance)
}

// setCurrentStep moves the cursor onto the in-flight step and persists,
// so status reads taken during a long-running action point at the step
// actually executing.
func (m *stateManager) setCurrentStep(ctx context.Context, instance *workflow.Instance, stepID string) error {
	if instance.CurrentStepID == stepID {
		return nil
	}
	instance.CurrentStepID = stepID
	return m.save(ctx, instance)
}

// completeStep records a completed step, merges its result data, advances
// the current step and persists, all as one revision.
func (m *stateManager) completeStep(
	ctx context.Context, instance *workflow.Instance, stepID string, data map[string]any,
) error {
	if err := instance.MergeData(data); err != nil {
		return err
	}
	instance.MarkStepCompleted(stepID)
	instance.CurrentStepID = stepID
	return m.save(ctx, instance)
}

// recordFailure appends a failure log entry and persists.
func (m *stateManager) recordFailure(
	ctx context.Context, instance *workflow.Instance, stepID, errMsg string,
) error {
	instance.RecordStepFailure(stepID, errMsg)
	return m.save(ctx, instance)
}
