// SPDX-License-Identifier: Apache-2.0

package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

func testInstance(t *testing.T, id, name string) *workflow.Instance {
	t.Helper()

	def, err := workflow.Create(name).
		AddStep("a", "log").
		AddStep("b", "log").
		Build()
	require.NoError(t, err)
	return workflow.NewInstance(id, def, map[string]any{"k": "v"})
}

func TestMemoryStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	instance := testInstance(t, "id-1", "wf")
	instance.MarkStepCompleted("a")
	instance.RecordStepFailure("b", "boom")
	require.NoError(t, store.Save(ctx, instance))
	assert.Equal(t, int64(1), instance.Revision)

	loaded, err := store.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, loaded.ID)
	assert.Equal(t, workflow.StatePending, loaded.State)
	assert.Equal(t, map[string]any{"k": "v"}, loaded.Data)
	assert.Equal(t, []string{"a"}, loaded.CompletedSteps)
	require.Len(t, loaded.FailedSteps, 1)
	assert.Equal(t, "boom", loaded.FailedSteps[0].Error)
	assert.Equal(t, "wf", loaded.Definition.Name())
}

func TestMemoryStoreIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	instance := testInstance(t, "id-1", "wf")
	require.NoError(t, store.Save(ctx, instance))

	// Mutating the caller's copy after save must not leak into the store.
	instance.Data["k"] = "mutated"

	loaded, err := store.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Data["k"])

	// Mutating a loaded copy must not leak either.
	loaded.Data["k"] = "mutated"
	again, err := store.Load(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Data["k"])
}

func TestMemoryStoreRevisionConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	instance := testInstance(t, "id-1", "wf")
	require.NoError(t, store.Save(ctx, instance))

	first, err := store.Load(ctx, "id-1")
	require.NoError(t, err)
	second, err := store.Load(ctx, "id-1")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, first))

	err = store.Save(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrRevisionConflict))
}

func TestMemoryStoreNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, err := store.Load(ctx, "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = store.Delete(ctx, "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	exists, err := store.Exists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, store.Save(ctx, testInstance(t, "id-1", "wf")))
	require.NoError(t, store.Delete(ctx, "id-1"))

	exists, err := store.Exists(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreFindInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore()

	old := testInstance(t, "id-old", "alpha")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, old))

	mid := testInstance(t, "id-mid", "beta")
	mid.CreatedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, mid.TransitionTo(workflow.StateRunning))
	require.NoError(t, store.Save(ctx, mid))

	fresh := testInstance(t, "id-new", "alpha")
	require.NoError(t, store.Save(ctx, fresh))

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		all, err := store.FindInstances(ctx, storage.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "id-new", all[0].ID)
		assert.Equal(t, "id-mid", all[1].ID)
		assert.Equal(t, "id-old", all[2].ID)
	})

	t.Run("filter by state", func(t *testing.T) {
		t.Parallel()

		running, err := store.FindInstances(ctx, storage.Filter{State: workflow.StateRunning})
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, "id-mid", running[0].ID)
	})

	t.Run("filter by name", func(t *testing.T) {
		t.Parallel()

		alphas, err := store.FindInstances(ctx, storage.Filter{Name: "alpha"})
		require.NoError(t, err)
		assert.Len(t, alphas, 2)
	})

	t.Run("limit and offset", func(t *testing.T) {
		t.Parallel()

		page, err := store.FindInstances(ctx, storage.Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "id-mid", page[0].ID)

		empty, err := store.FindInstances(ctx, storage.Filter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
