// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// DelayAction sleeps for a configured duration. It honors context
// cancellation, so a cancelled instance does not hold the executor.
//
// Config:
//
//	duration: a Go duration string ("5s", "1m") or integer seconds
type DelayAction struct{}

// Name implements action.Action.
func (*DelayAction) Name() string { return "delay" }

// Description implements action.Action.
func (*DelayAction) Description() string { return "waits for a configured duration" }

// CanExecute implements action.Action.
func (*DelayAction) CanExecute(_ context.Context, _ workflow.Context) bool { return true }

// Execute implements action.Action.
func (*DelayAction) Execute(ctx context.Context, wfCtx workflow.Context) workflow.ActionResult {
	raw, _ := wfCtx.ConfigValue("duration")
	d, err := delayDuration(raw)
	if err != nil {
		return workflow.Failure(err.Error())
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return workflow.Failure(ctx.Err().Error())
	case <-timer.C:
		return workflow.Success(map[string]any{"delayed": d.String()})
	}
}

// ActionSettings implements action.Configurable. Delays are not retried;
// a timed-out delay will not succeed on a second try.
func (*DelayAction) ActionSettings() action.Settings {
	return action.Settings{RetryAttempts: 0, Backoff: action.DefaultBackoff()}
}

func delayDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid delay duration %q", t)
		}
		return d, nil
	case int:
		if t <= 0 {
			return 0, fmt.Errorf("invalid delay duration %d", t)
		}
		return time.Duration(t) * time.Second, nil
	case float64:
		if t <= 0 {
			return 0, fmt.Errorf("invalid delay duration %v", t)
		}
		return time.Duration(t * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("delay requires a duration config value")
	}
}
