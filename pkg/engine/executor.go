// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/logger"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
	"github.com/flowstate-dev/flowstate/pkg/workflow/conditions"
)

// defaultStepTimeout bounds a single action invocation when neither the
// step nor the action declares a timeout.
const defaultStepTimeout = 5 * time.Minute

// executor drives one instance through its definition graph: it picks the
// next executable step, runs its action with retry and timeout, merges
// result data and persists after every state change.
type executor struct {
	registry *action.Registry
	state    *stateManager
	sink     EventSink
}

func newExecutor(registry *action.Registry, state *stateManager, sink EventSink) *executor {
	return &executor{registry: registry, state: state, sink: sink}
}

// pickStatus classifies the outcome of scanning for the next step.
type pickStatus int

const (
	// pickNone means no candidate remains; the workflow is complete.
	pickNone pickStatus = iota

	// pickDeferred means candidates exist but none is executable now.
	pickDeferred

	// pickSkip means the candidate's conditions evaluate false.
	pickSkip

	// pickRun means the candidate should execute.
	pickRun
)

// run drives the instance until it completes, parks or fails. Calling run
// on a completed instance is a no-op.
func (e *executor) run(ctx context.Context, instance *workflow.Instance) error {
	if instance.State == workflow.StateCompleted {
		return nil
	}

	def := instance.Definition
	// Each iteration completes or skips exactly one step, so the step
	// count bounds the loop.
	for iter := 0; iter <= def.StepCount(); iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		stepID, status := e.pickNext(ctx, instance)
		switch status {
		case pickNone:
			return e.completeWorkflow(ctx, instance)

		case pickDeferred:
			return e.parkWorkflow(ctx, instance)

		case pickSkip:
			logger.Debugw("skipping step, conditions not met",
				"workflow_id", instance.ID, "step_id", stepID)
			if err := e.state.completeStep(ctx, instance, stepID, nil); err != nil {
				return err
			}

		case pickRun:
			if err := e.executeStep(ctx, instance, stepID); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("workflow %s did not settle after visiting every step", instance.ID)
}

// pickNext walks the transition frontier from the current step, through
// already-completed steps, and returns the first actionable candidate.
// Transition guards are evaluated in declaration order; a guard that does
// not parse disables its edge.
func (e *executor) pickNext(ctx context.Context, instance *workflow.Instance) (string, pickStatus) {
	def := instance.Definition
	queue := def.NextSteps(instance.CurrentStepID, instance.Data)
	// A crash or failure can leave the cursor on a step that never
	// completed; that step is the frontier, not its successors.
	if cur := instance.CurrentStepID; cur != "" && !instance.HasCompleted(cur) {
		if step, ok := def.Step(cur); ok {
			queue = []workflow.Step{step}
		}
	}
	visited := make(map[string]bool)
	deferred := false

	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]
		if visited[step.ID] {
			continue
		}
		visited[step.ID] = true

		if instance.HasCompleted(step.ID) {
			queue = append(queue, def.NextSteps(step.ID, instance.Data)...)
			continue
		}

		if !e.prerequisitesMet(instance, step) {
			deferred = true
			continue
		}

		if !stepConditionsMet(step.Conditions, instance.Data) {
			return step.ID, pickSkip
		}

		if act, err := e.registry.Resolve(step.ActionRef); err == nil {
			wfCtx := workflow.NewContext(instance.ID, step.ID, instance.Data, step.Config)
			if !act.CanExecute(ctx, wfCtx) {
				deferred = true
				continue
			}
		}
		// Resolution errors surface as a step failure in executeStep.

		return step.ID, pickRun
	}

	if deferred {
		return "", pickDeferred
	}
	return "", pickNone
}

func (e *executor) prerequisitesMet(instance *workflow.Instance, step workflow.Step) bool {
	for _, id := range step.Prerequisites {
		if !instance.HasCompleted(id) {
			return false
		}
	}
	return true
}

// stepConditionsMet evaluates step-level conditions, AND-joined. Unlike
// transition guards, a condition that does not parse leaves the step
// eligible.
func stepConditionsMet(predicates []string, data map[string]any) bool {
	for _, predicate := range predicates {
		ok, err := conditions.Evaluate(predicate, data)
		if err != nil {
			continue
		}
		if !ok {
			return false
		}
	}
	return true
}

// executeStep runs one step's action with retry and timeout, then records
// the outcome. A fatal failure triggers compensation and fails the
// workflow.
func (e *executor) executeStep(ctx context.Context, instance *workflow.Instance, stepID string) error {
	step, ok := instance.Definition.Step(stepID)
	if !ok {
		return e.failWorkflow(ctx, instance, stepID,
			fmt.Errorf("step %s not found in definition", stepID))
	}

	act, err := e.registry.Resolve(step.ActionRef)
	if err != nil {
		return e.failWorkflow(ctx, instance, stepID, err)
	}

	settings := action.SettingsFor(act)
	if settings.Condition != "" {
		if met, cerr := conditions.Evaluate(settings.Condition, instance.Data); cerr == nil && !met {
			logger.Debugw("skipping step, action condition not met",
				"workflow_id", instance.ID, "step_id", stepID)
			return e.state.completeStep(ctx, instance, stepID, nil)
		}
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = settings.Timeout
	}
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}

	retries := step.RetryAttempts
	if retries == workflow.RetryAttemptsUnset {
		retries = settings.RetryAttempts
	}

	// The cursor points at the step being executed, persisted before the
	// action runs so concurrent status reads (and a failure record) name
	// the in-flight step, not the last completed one.
	if err := e.state.setCurrentStep(ctx, instance, stepID); err != nil {
		return err
	}

	wfCtx := workflow.NewContext(instance.ID, stepID, instance.Data, step.Config)

	attempt := 0
	operation := func() (workflow.ActionResult, error) {
		attempt++
		result := invokeWithTimeout(ctx, act, wfCtx, timeout)
		if !result.Succeeded() {
			e.emit(ctx, instance, EventStepFailed, map[string]any{
				"step_id":      stepID,
				"attempt":      attempt,
				"max_attempts": retries + 1,
				"error":        result.ErrorMessage(),
			})
			return workflow.ActionResult{}, errors.New(result.ErrorMessage())
		}
		return result, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy(settings.Backoff)),
		backoff.WithMaxTries(uint(retries+1)), // includes the initial attempt
		backoff.WithNotify(func(_ error, duration time.Duration) {
			logger.Debugf("retrying step %s after %v", stepID, duration)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			// The caller's context ended; leave the instance as-is so a
			// later Resume can pick it up.
			return ctx.Err()
		}
		return e.failWorkflow(ctx, instance, stepID, err)
	}

	if err := e.state.completeStep(ctx, instance, stepID, result.Data()); err != nil {
		return err
	}
	e.emit(ctx, instance, EventStepCompleted, map[string]any{
		"step_id":  stepID,
		"attempts": attempt,
	})
	return nil
}

// invokeWithTimeout runs one action attempt under a deadline. A timed-out
// attempt yields a failure result, which the retry loop treats like any
// other failed attempt.
func invokeWithTimeout(
	ctx context.Context, act action.Action, wfCtx workflow.Context, timeout time.Duration,
) workflow.ActionResult {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan workflow.ActionResult, 1)
	go func() {
		done <- act.Execute(attemptCtx, wfCtx)
	}()

	select {
	case result := <-done:
		return result
	case <-attemptCtx.Done():
		return workflow.Failure(fmt.Sprintf("step timed out after %s", timeout))
	}
}

// completeWorkflow transitions the instance to completed and announces it.
func (e *executor) completeWorkflow(ctx context.Context, instance *workflow.Instance) error {
	if instance.State == workflow.StateCompleted {
		return nil
	}
	if err := e.state.transition(ctx, instance, workflow.StateCompleted); err != nil {
		return err
	}
	e.emit(ctx, instance, EventWorkflowCompleted, map[string]any{
		"completed_steps": len(instance.CompletedSteps),
	})
	return nil
}

// parkWorkflow transitions the instance to waiting: candidates exist but
// none can execute yet.
func (e *executor) parkWorkflow(ctx context.Context, instance *workflow.Instance) error {
	logger.Infow("workflow waiting, no executable step",
		"workflow_id", instance.ID, "current_step", instance.CurrentStepID)
	return e.state.transition(ctx, instance, workflow.StateWaiting)
}

// failWorkflow records the fatal step failure, compensates completed
// steps in reverse order, fails the instance and re-raises the error.
func (e *executor) failWorkflow(
	ctx context.Context, instance *workflow.Instance, stepID string, cause error,
) error {
	instance.CurrentStepID = stepID
	if err := e.state.recordFailure(ctx, instance, stepID, cause.Error()); err != nil {
		logger.Errorw("failed to record step failure",
			"workflow_id", instance.ID, "step_id", stepID, "error", err)
	}

	e.compensate(ctx, instance)

	instance.ErrorMessage = cause.Error()
	if err := e.state.transition(ctx, instance, workflow.StateFailed); err != nil {
		logger.Errorw("failed to fail workflow",
			"workflow_id", instance.ID, "error", err)
	}
	e.emit(ctx, instance, EventWorkflowFailed, map[string]any{
		"step_id": stepID,
		"error":   cause.Error(),
	})

	return &StepExecutionError{
		WorkflowID: instance.ID,
		StepID:     stepID,
		Err:        cause,
		Data:       instance.Data,
	}
}

// compensate runs compensation actions for completed steps in reverse
// completion order. Compensation failures are logged and recorded but do
// not stop remaining compensations, and compensations are never
// themselves compensated.
func (e *executor) compensate(ctx context.Context, instance *workflow.Instance) {
	for i := len(instance.CompletedSteps) - 1; i >= 0; i-- {
		stepID := instance.CompletedSteps[i]
		step, ok := instance.Definition.Step(stepID)
		if !ok || step.CompensationRef == "" {
			continue
		}

		act, err := e.registry.Resolve(step.CompensationRef)
		if err != nil {
			e.recordCompensationFailure(ctx, instance, stepID, err.Error())
			continue
		}

		wfCtx := workflow.NewContext(instance.ID, stepID, instance.Data, step.Config)
		result := invokeWithTimeout(ctx, act, wfCtx, defaultStepTimeout)
		if !result.Succeeded() {
			e.recordCompensationFailure(ctx, instance, stepID, result.ErrorMessage())
			continue
		}
		logger.Infow("compensated step",
			"workflow_id", instance.ID, "step_id", stepID,
			"compensation", step.CompensationRef)
	}
}

func (e *executor) recordCompensationFailure(
	ctx context.Context, instance *workflow.Instance, stepID, errMsg string,
) {
	logger.Errorw("compensation failed",
		"workflow_id", instance.ID, "step_id", stepID, "error", errMsg)
	if err := e.state.recordFailure(ctx, instance, stepID, "compensation: "+errMsg); err != nil {
		logger.Errorw("failed to record compensation failure",
			"workflow_id", instance.ID, "step_id", stepID, "error", err)
	}
}

// emit publishes a lifecycle event. Sink errors are logged, never
// propagated: events are observational.
func (e *executor) emit(ctx context.Context, instance *workflow.Instance, t EventType, payload map[string]any) {
	emit(ctx, e.sink, instance, t, payload)
}

func emit(ctx context.Context, sink EventSink, instance *workflow.Instance, t EventType, payload map[string]any) {
	if sink == nil {
		return
	}
	event := Event{
		Type:       t,
		WorkflowID: instance.ID,
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
	}
	if instance.Definition != nil {
		event.WorkflowName = instance.Definition.Name()
	}
	if err := sink.Publish(ctx, event); err != nil {
		logger.Warnw("event sink rejected event",
			"type", string(t), "workflow_id", instance.ID, "error", err)
	}
}

// backoffPolicy maps a declarative retry policy to a backoff source.
func backoffPolicy(b action.Backoff) backoff.BackOff {
	switch b.Strategy {
	case action.BackoffFixed:
		return &fixedBackOff{delay: b.Delay}
	case action.BackoffLinear:
		return &linearBackOff{delay: b.Delay, maxDelay: b.MaxDelay}
	default:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = b.Delay
		exp.MaxInterval = b.MaxDelay
		exp.Reset()
		return exp
	}
}

// fixedBackOff waits the same delay between every attempt.
type fixedBackOff struct {
	delay time.Duration
}

func (f *fixedBackOff) NextBackOff() time.Duration { return f.delay }
func (*fixedBackOff) Reset()                       {}

// linearBackOff waits delay, 2*delay, 3*delay... capped at maxDelay.
type linearBackOff struct {
	delay    time.Duration
	maxDelay time.Duration
	attempt  int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	next := time.Duration(l.attempt) * l.delay
	if l.maxDelay > 0 && next > l.maxDelay {
		return l.maxDelay
	}
	return next
}

func (l *linearBackOff) Reset() { l.attempt = 0 }
