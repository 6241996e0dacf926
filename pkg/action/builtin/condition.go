// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"

	"github.com/flowstate-dev/flowstate/pkg/workflow"
	"github.com/flowstate-dev/flowstate/pkg/workflow/conditions"
)

// ConditionAction evaluates a predicate against the instance data and
// records the verdict under condition_met. Downstream transitions can
// branch on it.
//
// Config:
//
//	condition: the predicate to evaluate (required)
type ConditionAction struct{}

// Name implements action.Action.
func (*ConditionAction) Name() string { return "condition" }

// Description implements action.Action.
func (*ConditionAction) Description() string {
	return "evaluates a predicate against instance data"
}

// CanExecute implements action.Action.
func (*ConditionAction) CanExecute(_ context.Context, _ workflow.Context) bool { return true }

// Execute implements action.Action.
func (*ConditionAction) Execute(_ context.Context, wfCtx workflow.Context) workflow.ActionResult {
	predicate := configString(wfCtx, "condition")
	if predicate == "" {
		return workflow.Failure("condition requires a condition config value")
	}

	met, err := conditions.Evaluate(predicate, wfCtx.Data())
	if err != nil {
		return workflow.Failure(err.Error())
	}
	return workflow.Success(map[string]any{"condition_met": met})
}
