// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), filepath.Join(t.TempDir(), "flowstate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestInstance(t *testing.T, id string) *workflow.Instance {
	t.Helper()

	def, err := workflow.Create("payments").
		AddStep("charge", "payments.charge", workflow.WithRetryAttempts(3)).
		AddStep("receipt", "email").
		Build()
	require.NoError(t, err)
	return workflow.NewInstance(id, def, map[string]any{"amount": 42.5})
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	instance := newTestInstance(t, "id-1")
	require.NoError(t, instance.TransitionTo(workflow.StateRunning))
	instance.MarkStepCompleted("charge")
	instance.CurrentStepID = "charge"
	instance.RecordStepFailure("receipt", "smtp down")
	require.NoError(t, store.Save(ctx, instance))
	assert.Equal(t, int64(1), instance.Revision)

	loaded, err := store.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", loaded.ID)
	assert.Equal(t, workflow.StateRunning, loaded.State)
	assert.Equal(t, "charge", loaded.CurrentStepID)
	assert.Equal(t, []string{"charge"}, loaded.CompletedSteps)
	require.Len(t, loaded.FailedSteps, 1)
	assert.Equal(t, "smtp down", loaded.FailedSteps[0].Error)
	assert.Equal(t, int64(1), loaded.Revision)
	// JSON numbers come back as float64; the value must survive.
	assert.InEpsilon(t, 42.5, loaded.Data["amount"], 1e-9)

	// Definition snapshot round-trips with validation intact.
	assert.Equal(t, "payments", loaded.Definition.Name())
	charge, ok := loaded.Definition.Step("charge")
	require.True(t, ok)
	assert.Equal(t, 3, charge.RetryAttempts)
	receipt, ok := loaded.Definition.Step("receipt")
	require.True(t, ok)
	assert.Equal(t, workflow.RetryAttemptsUnset, receipt.RetryAttempts)
}

func TestStoreUpdateExistingInstance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	instance := newTestInstance(t, "id-1")
	require.NoError(t, store.Save(ctx, instance))

	require.NoError(t, instance.TransitionTo(workflow.StateRunning))
	instance.MarkStepCompleted("charge")
	instance.UpdatedAt = instance.UpdatedAt.Add(time.Millisecond)
	require.NoError(t, store.Save(ctx, instance))
	assert.Equal(t, int64(2), instance.Revision)

	loaded, err := store.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateRunning, loaded.State)
	assert.Equal(t, int64(2), loaded.Revision)
}

func TestStoreRevisionConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, newTestInstance(t, "id-1")))

	first, err := store.Load(ctx, "id-1")
	require.NoError(t, err)
	second, err := store.Load(ctx, "id-1")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, first))

	err = store.Save(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrRevisionConflict))
}

func TestStoreNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Load(ctx, "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = store.Delete(ctx, "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	exists, err := store.Exists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreFindInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	old := newTestInstance(t, "id-old")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, old))

	running := newTestInstance(t, "id-running")
	require.NoError(t, running.TransitionTo(workflow.StateRunning))
	require.NoError(t, store.Save(ctx, running))

	t.Run("newest first", func(t *testing.T) {
		all, err := store.FindInstances(ctx, storage.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "id-running", all[0].ID)
	})

	t.Run("state filter", func(t *testing.T) {
		got, err := store.FindInstances(ctx, storage.Filter{State: workflow.StateRunning})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "id-running", got[0].ID)
	})

	t.Run("name filter", func(t *testing.T) {
		got, err := store.FindInstances(ctx, storage.Filter{Name: "payments"})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		none, err := store.FindInstances(ctx, storage.Filter{Name: "ghost"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := store.FindInstances(ctx, storage.Filter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flowstate.db")

	store, err := New(ctx, path)
	require.NoError(t, err)

	instance := newTestInstance(t, "id-1")
	require.NoError(t, instance.TransitionTo(workflow.StateRunning))
	require.NoError(t, instance.TransitionTo(workflow.StateWaiting))
	instance.MarkStepCompleted("charge")
	require.NoError(t, store.Save(ctx, instance))
	require.NoError(t, store.Close())

	reopened, err := New(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	loaded, err := reopened.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateWaiting, loaded.State)
	assert.Equal(t, []string{"charge"}, loaded.CompletedSteps)
}
