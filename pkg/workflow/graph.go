// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"github.com/flowstate-dev/flowstate/pkg/workflow/conditions"
)

// FirstStep returns the entry step of the graph: the unique step with no
// incoming transition. If no such step exists (or several do), the first
// step by insertion order is returned. The second return value is false
// only for an empty definition.
func (d *Definition) FirstStep() (Step, bool) {
	if len(d.steps) == 0 {
		return Step{}, false
	}

	incoming := make(map[string]int, len(d.steps))
	for _, t := range d.transitions {
		incoming[t.ToStepID]++
	}

	var roots []int
	for i := range d.steps {
		if incoming[d.steps[i].ID] == 0 {
			roots = append(roots, i)
		}
	}

	if len(roots) == 1 {
		return d.steps[roots[0]].clone(), true
	}
	return d.steps[0].clone(), true
}

// NextSteps returns the candidate steps reachable from currentID given the
// instance data. With an empty currentID it returns the first step.
//
// Each outgoing transition is considered in declaration order; guarded
// transitions are followed only when their condition evaluates true
// against data. An unparseable transition condition is treated as false:
// the edge is not followed. Multiple matching transitions yield multiple
// candidates; that is the sole fan-out mechanism.
func (d *Definition) NextSteps(currentID string, data map[string]any) []Step {
	if currentID == "" {
		if first, ok := d.FirstStep(); ok {
			return []Step{first}
		}
		return nil
	}

	var next []Step
	for _, t := range d.transitions {
		if t.FromStepID != currentID {
			continue
		}
		if t.Condition != "" {
			ok, err := conditions.Evaluate(t.Condition, data)
			if err != nil || !ok {
				continue
			}
		}
		if s, ok := d.Step(t.ToStepID); ok {
			next = append(next, s)
		}
	}
	return next
}

// IsTerminal reports whether the step has no outgoing transitions.
func (d *Definition) IsTerminal(stepID string) bool {
	for _, t := range d.transitions {
		if t.FromStepID == stepID {
			return false
		}
	}
	return true
}
