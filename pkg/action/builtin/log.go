// SPDX-License-Identifier: Apache-2.0

// Package builtin bundles the actions every engine installation carries:
// log, delay, email, http and condition. Call Register to install them
// into a registry under both their short and qualified names.
package builtin

import (
	"context"

	"github.com/flowstate-dev/flowstate/pkg/logger"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// LogAction writes a message to the structured log.
//
// Config:
//
//	message: the text to log (default "log step executed")
//	level:   debug, info, warn or error (default info)
type LogAction struct{}

// Name implements action.Action.
func (*LogAction) Name() string { return "log" }

// Description implements action.Action.
func (*LogAction) Description() string { return "writes a message to the structured log" }

// CanExecute implements action.Action.
func (*LogAction) CanExecute(_ context.Context, _ workflow.Context) bool { return true }

// Execute implements action.Action.
func (*LogAction) Execute(_ context.Context, wfCtx workflow.Context) workflow.ActionResult {
	message := configString(wfCtx, "message")
	if message == "" {
		message = "log step executed"
	}

	level := configString(wfCtx, "level")
	fields := []any{"workflow_id", wfCtx.WorkflowID(), "step_id", wfCtx.StepID()}
	switch level {
	case "debug":
		logger.Debugw(message, fields...)
	case "warn":
		logger.Warnw(message, fields...)
	case "error":
		logger.Errorw(message, fields...)
	default:
		logger.Infow(message, fields...)
	}

	return workflow.Success(map[string]any{"logged": true})
}
