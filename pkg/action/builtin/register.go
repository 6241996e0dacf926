// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// Register installs the bundled actions into the registry under their
// short names and their "builtin."-qualified names.
func Register(r *action.Registry) error {
	factories := map[string]action.Factory{
		"log":       func() action.Action { return &LogAction{} },
		"delay":     func() action.Action { return &DelayAction{} },
		"email":     func() action.Action { return NewEmailAction() },
		"http":      func() action.Action { return NewHTTPAction() },
		"condition": func() action.Action { return &ConditionAction{} },
	}

	for name, f := range factories {
		if err := r.RegisterBuiltin(name, f); err != nil {
			return err
		}
		if err := r.RegisterQualified("builtin."+name, f); err != nil {
			return err
		}
	}
	return nil
}

// configString reads a string configuration value, empty when absent or
// not a string.
func configString(wfCtx workflow.Context, key string) string {
	v, _ := wfCtx.ConfigValue(key)
	s, _ := v.(string)
	return s
}
