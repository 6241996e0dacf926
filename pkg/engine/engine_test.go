// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/engine"
	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// newTestEngine wires an engine over a fresh memory store with the given
// fakes and a memory event sink.
func newTestEngine(t *testing.T, fakes ...*fakeAction) (*engine.Engine, *storage.MemoryStore, *engine.MemorySink) {
	t.Helper()

	registry, err := registryWith(fakes...)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	sink := engine.NewMemorySink()
	eng, err := engine.New(store,
		engine.WithRegistry(registry),
		engine.WithEventSink(sink),
	)
	require.NoError(t, err)
	return eng, store, sink
}

// staleExistsStore simulates the window where two Starts with the same ID
// both pass the existence check before either has saved.
type staleExistsStore struct {
	*storage.MemoryStore
}

func (*staleExistsStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}

func TestStartRacingSameIDSurfacesDuplicate(t *testing.T) {
	t.Parallel()

	step := &fakeAction{name: "step"}
	registry, err := registryWith(step)
	require.NoError(t, err)

	store := &staleExistsStore{storage.NewMemoryStore()}
	eng, err := engine.New(store,
		engine.WithRegistry(registry),
		engine.WithEventSink(engine.NewMemorySink()),
	)
	require.NoError(t, err)

	def, err := workflow.Create("wf").AddStep("step", "step").Build()
	require.NoError(t, err)

	_, err = eng.Start(context.Background(), "racer", def, nil)
	require.NoError(t, err)

	// The loser of the race hits the store's revision check on its first
	// save and must still see the duplicate-instance error.
	_, err = eng.Start(context.Background(), "racer", def, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrDuplicateInstance)
	assert.NotErrorIs(t, err, storage.ErrRevisionConflict)
}

func TestStartRunsSequentialWorkflow(t *testing.T) {
	t.Parallel()

	validate := &fakeAction{name: "validate"}
	charge := &fakeAction{name: "charge"}
	notify := &fakeAction{name: "notify"}
	eng, store, sink := newTestEngine(t, validate, charge, notify)

	def, err := workflow.Create("order").
		AddStep("validate", "validate").
		AddStep("charge", "charge").
		AddStep("notify", "notify").
		Build()
	require.NoError(t, err)

	id, err := eng.Start(context.Background(), "", def, map[string]any{"amount": 10})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.Equal(t, 1, validate.callCount())
	assert.Equal(t, 1, charge.callCount())
	assert.Equal(t, 1, notify.callCount())

	final, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, final.State)
	assert.Equal(t, []string{"validate", "charge", "notify"}, final.CompletedSteps)
	assert.Equal(t, "notify", final.CurrentStepID)
	assert.Equal(t, 100.0, final.Progress())

	// Each step's result data accumulated into the instance.
	assert.Equal(t, true, final.Data["validate_done"])
	assert.Equal(t, true, final.Data["charge_done"])
	assert.Equal(t, true, final.Data["notify_done"])

	// Lifecycle events in order.
	types := make([]engine.EventType, 0, len(sink.Events()))
	for _, e := range sink.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []engine.EventType{
		engine.EventWorkflowStarted,
		engine.EventStepCompleted,
		engine.EventStepCompleted,
		engine.EventStepCompleted,
		engine.EventWorkflowCompleted,
	}, types)
}

func TestStartFollowsGuardedTransitions(t *testing.T) {
	t.Parallel()

	check := &fakeAction{name: "check"}
	premium := &fakeAction{name: "premium-perk"}
	basic := &fakeAction{name: "basic-note"}

	def, err := workflow.Create("signup").
		AddStep("check", "check").
		AddStep("perk", "premium-perk").
		AddStep("note", "basic-note").
		TransitionWhen("check", "perk", `user.plan === "premium"`).
		TransitionWhen("check", "note", `user.plan !== "premium"`).
		Build()
	require.NoError(t, err)

	t.Run("premium branch", func(t *testing.T) {
		t.Parallel()

		eng, store, _ := newTestEngine(t, check, premium, basic)
		id, err := eng.Start(context.Background(), "", def, map[string]any{
			"user": map[string]any{"plan": "premium"},
		})
		require.NoError(t, err)

		final, err := store.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, workflow.StateCompleted, final.State)
		assert.Equal(t, []string{"check", "perk"}, final.CompletedSteps)
		assert.NotContains(t, final.CompletedSteps, "note")
	})

	t.Run("basic branch", func(t *testing.T) {
		t.Parallel()

		check2 := &fakeAction{name: "check"}
		premium2 := &fakeAction{name: "premium-perk"}
		basic2 := &fakeAction{name: "basic-note"}
		eng, store, _ := newTestEngine(t, check2, premium2, basic2)

		id, err := eng.Start(context.Background(), "", def, map[string]any{
			"user": map[string]any{"plan": "free"},
		})
		require.NoError(t, err)

		final, err := store.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, []string{"check", "note"}, final.CompletedSteps)
		assert.Equal(t, 0, premium2.callCount())
	})
}

func TestStepConditionsSkipWithoutFailing(t *testing.T) {
	t.Parallel()

	first := &fakeAction{name: "first"}
	gated := &fakeAction{name: "gated"}
	last := &fakeAction{name: "last"}
	eng, store, _ := newTestEngine(t, first, gated, last)

	def, err := workflow.Create("wf").
		AddStep("first", "first").
		AddStep("gated", "gated", workflow.WithCondition(`user.plan === "premium"`)).
		AddStep("last", "last").
		Build()
	require.NoError(t, err)

	id, err := eng.Start(context.Background(), "", def, map[string]any{
		"user": map[string]any{"plan": "free"},
	})
	require.NoError(t, err)

	final, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, final.State)
	// The skipped step counts as processed but its action never ran.
	assert.Equal(t, []string{"first", "gated", "last"}, final.CompletedSteps)
	assert.Equal(t, 0, gated.callCount())
	assert.Equal(t, 1, last.callCount())
}

func TestStepDataVisibleDownstream(t *testing.T) {
	t.Parallel()

	producer := &fakeAction{
		name: "producer",
		script: []workflow.ActionResult{
			workflow.Success(map[string]any{"token": "abc123"}),
		},
	}
	consumer := &fakeAction{name: "consumer"}
	eng, _, _ := newTestEngine(t, producer, consumer)

	def, err := workflow.Create("wf").
		AddStep("produce", "producer").
		AddStep("consume", "consumer").
		Build()
	require.NoError(t, err)

	_, err = eng.Start(context.Background(), "", def, nil)
	require.NoError(t, err)

	wfCtx, ok := consumer.lastContext()
	require.True(t, ok)
	assert.Equal(t, "abc123", wfCtx.Get("token"))
}

func TestStartWithYAMLDefinition(t *testing.T) {
	t.Parallel()

	hello := &fakeAction{name: "hello"}
	eng, store, _ := newTestEngine(t, hello)

	id, err := eng.Start(context.Background(), "", []byte(`
name: greeting
steps:
  - id: say-hello
    action: hello
`), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, hello.callCount())
	final, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "greeting", final.Definition.Name())
	assert.Equal(t, workflow.StateCompleted, final.State)
}

func TestStartRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	a := &fakeAction{name: "a"}
	eng, _, _ := newTestEngine(t, a)

	def, err := workflow.Create("wf").AddStep("one", "a").Build()
	require.NoError(t, err)

	_, err = eng.Start(context.Background(), "fixed-id", def, nil)
	require.NoError(t, err)

	_, err = eng.Start(context.Background(), "fixed-id", def, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrDuplicateInstance))
}

func TestStartRejectsUnsupportedDefinition(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(t)

	_, err := eng.Start(context.Background(), "", 42, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrUnsupportedDefinition))
}

func TestCancel(t *testing.T) {
	t.Parallel()

	gate := &fakeAction{name: "gated", gate: func(workflow.Context) bool { return false }}
	eng, store, sink := newTestEngine(t, gate)

	def, err := workflow.Create("wf").AddStep("one", "gated").Build()
	require.NoError(t, err)

	// The gate defers the only step, parking the instance as waiting.
	id, err := eng.Start(context.Background(), "", def, nil)
	require.NoError(t, err)

	parked, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, workflow.StateWaiting, parked.State)

	require.NoError(t, eng.Cancel(context.Background(), id, "operator request"))

	final, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCancelled, final.State)
	assert.Equal(t, "operator request", final.ErrorMessage)
	assert.Len(t, sink.EventsOfType(engine.EventWorkflowCancelled), 1)

	// Cancelling twice fails: the instance is terminal.
	err = eng.Cancel(context.Background(), id, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrNotCancellable))
}

func TestResumeWaitingInstance(t *testing.T) {
	t.Parallel()

	open := false
	gated := &fakeAction{name: "gated", gate: func(workflow.Context) bool { return open }}
	after := &fakeAction{name: "after"}
	eng, store, _ := newTestEngine(t, gated, after)

	def, err := workflow.Create("wf").
		AddStep("gated", "gated").
		AddStep("after", "after").
		Build()
	require.NoError(t, err)

	id, err := eng.Start(context.Background(), "", def, nil)
	require.NoError(t, err)

	parked, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, workflow.StateWaiting, parked.State)
	assert.Equal(t, 0, gated.callCount())

	// The external condition clears; Resume drives it to completion.
	open = true
	require.NoError(t, eng.Resume(context.Background(), id))

	final, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, final.State)
	assert.Equal(t, []string{"gated", "after"}, final.CompletedSteps)
}

func TestResumeSkipsCompletedSteps(t *testing.T) {
	t.Parallel()

	a := &fakeAction{name: "a"}
	b := &fakeAction{name: "b"}

	registry, err := registryWith(a, b)
	require.NoError(t, err)
	store := storage.NewMemoryStore()
	eng, err := engine.New(store, engine.WithRegistry(registry))
	require.NoError(t, err)

	def, err := workflow.Create("wf").
		AddStep("a", "a").
		AddStep("b", "b").
		Build()
	require.NoError(t, err)

	// Simulate a process that died after step a: the persisted instance
	// is waiting with a completed.
	crashed := workflow.NewInstance("survivor", def, map[string]any{"seed": 1})
	require.NoError(t, crashed.TransitionTo(workflow.StateRunning))
	crashed.MarkStepCompleted("a")
	crashed.CurrentStepID = "a"
	require.NoError(t, crashed.TransitionTo(workflow.StateWaiting))
	require.NoError(t, store.Save(context.Background(), crashed))

	require.NoError(t, eng.Resume(context.Background(), "survivor"))

	assert.Equal(t, 0, a.callCount(), "completed step must not re-execute")
	assert.Equal(t, 1, b.callCount())

	final, err := store.Load(context.Background(), "survivor")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, final.State)
	assert.Equal(t, []string{"a", "b"}, final.CompletedSteps)
}

func TestResumeStateChecks(t *testing.T) {
	t.Parallel()

	a := &fakeAction{name: "a"}
	eng, store, _ := newTestEngine(t, a)

	def, err := workflow.Create("wf").AddStep("one", "a").Build()
	require.NoError(t, err)

	id, err := eng.Start(context.Background(), "", def, nil)
	require.NoError(t, err)

	// Completed instances are terminal.
	err = eng.Resume(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrNotResumable))

	// Running instances are already being driven.
	running := workflow.NewInstance("running-one", def, nil)
	require.NoError(t, running.TransitionTo(workflow.StateRunning))
	require.NoError(t, store.Save(context.Background(), running))

	err = eng.Resume(context.Background(), "running-one")
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrAlreadyRunning))

	// Unknown instances report not found.
	err = eng.Resume(context.Background(), "ghost")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListAndStatus(t *testing.T) {
	t.Parallel()

	a := &fakeAction{name: "a"}
	eng, _, _ := newTestEngine(t, a)

	def, err := workflow.Create("listing").AddStep("one", "a").Build()
	require.NoError(t, err)

	id, err := eng.Start(context.Background(), "", def, nil)
	require.NoError(t, err)

	summaries, err := eng.List(context.Background(), storage.Filter{Name: "listing"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ID)
	assert.Equal(t, workflow.StateCompleted, summaries[0].State)
	assert.Equal(t, 100.0, summaries[0].Progress)

	status, err := eng.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "listing", status.Name)
	assert.Equal(t, workflow.StateCompleted, status.State)
}

func TestDefaultEngineHelpers(t *testing.T) {
	a := &fakeAction{name: "a"}
	eng, _, _ := newTestEngine(t, a)

	prev := engine.Default()
	engine.SetDefault(eng)
	t.Cleanup(func() { engine.SetDefault(prev) })

	def, err := workflow.Create("wf").AddStep("one", "a").Build()
	require.NoError(t, err)

	id, err := engine.StartWorkflow(context.Background(), "", def, nil)
	require.NoError(t, err)

	instance, err := engine.GetWorkflow(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, instance.State)

	summaries, err := engine.ListWorkflows(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, summaries)
}

func TestEngineRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := engine.New(nil)
	require.Error(t, err)
}

func TestEngineDefaultRegistryCarriesBuiltins(t *testing.T) {
	t.Parallel()

	eng, err := engine.New(storage.NewMemoryStore(), engine.WithEventSink(engine.NewMemorySink()))
	require.NoError(t, err)

	for _, name := range []string{"log", "delay", "email", "http", "condition"} {
		_, err := eng.Registry().Resolve(name)
		assert.NoError(t, err, name)
	}
	_, err = eng.Registry().Resolve("builtin.log")
	assert.NoError(t, err)
}

var _ action.Action = (*fakeAction)(nil)
