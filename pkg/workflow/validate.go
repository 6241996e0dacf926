// SPDX-License-Identifier: Apache-2.0

package workflow

import "fmt"

// validate checks the definition invariants: name pattern, non-empty step
// set, bounded size, valid per-step settings, and referential integrity of
// transitions and prerequisites.
func (d *Definition) validate() error {
	if d.name == "" || !namePattern.MatchString(d.name) {
		return NewError(KindInvalidName,
			fmt.Sprintf("workflow name %q must match %s", d.name, namePattern.String()), nil)
	}

	if len(d.steps) == 0 {
		return NewError(KindEmptyWorkflow, "workflow must have at least one step", nil)
	}

	if len(d.steps) > maxWorkflowSteps {
		return NewError(KindInvalidStepID,
			fmt.Sprintf("too many steps: %d (max %d)", len(d.steps), maxWorkflowSteps), nil)
	}

	for i := range d.steps {
		if err := d.validateStep(&d.steps[i]); err != nil {
			return err
		}
	}

	for _, t := range d.transitions {
		if !d.HasStep(t.FromStepID) {
			return NewError(KindInvalidTransition,
				fmt.Sprintf("transition references unknown step %q", t.FromStepID), nil)
		}
		if !d.HasStep(t.ToStepID) {
			return NewError(KindInvalidTransition,
				fmt.Sprintf("transition references unknown step %q", t.ToStepID), nil)
		}
	}

	return d.validatePrerequisites()
}

// validateStep checks a single step's settings.
func (d *Definition) validateStep(s *Step) error {
	if s.ID == "" {
		return NewError(KindInvalidStepID, "step ID is required", nil)
	}

	if s.RetryAttempts != RetryAttemptsUnset &&
		(s.RetryAttempts < 0 || s.RetryAttempts > MaxRetryAttempts) {
		return NewError(KindInvalidRetryAttempts,
			fmt.Sprintf("step %s: retry_attempts %d outside 0-%d", s.ID, s.RetryAttempts, MaxRetryAttempts), nil)
	}

	if s.Timeout < 0 {
		return NewError(KindInvalidTimeout,
			fmt.Sprintf("step %s: timeout must be positive", s.ID), nil)
	}

	for _, cond := range s.Conditions {
		if cond == "" {
			return NewError(KindInvalidCondition,
				fmt.Sprintf("step %s: empty condition", s.ID), nil)
		}
	}

	for _, pre := range s.Prerequisites {
		if !d.HasStep(pre) {
			return NewError(KindInvalidStepID,
				fmt.Sprintf("step %s: prerequisite %q does not exist", s.ID, pre), nil)
		}
	}

	return nil
}

// validatePrerequisites detects circular prerequisite chains using DFS.
func (d *Definition) validatePrerequisites() error {
	graph := make(map[string][]string, len(d.steps))
	for i := range d.steps {
		graph[d.steps[i].ID] = d.steps[i].Prerequisites
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(string) bool
	hasCycle = func(nodeID string) bool {
		visited[nodeID] = true
		recStack[nodeID] = true

		for _, preID := range graph[nodeID] {
			if !visited[preID] {
				if hasCycle(preID) {
					return true
				}
			} else if recStack[preID] {
				return true
			}
		}

		recStack[nodeID] = false
		return false
	}

	for i := range d.steps {
		if !visited[d.steps[i].ID] {
			if hasCycle(d.steps[i].ID) {
				return NewError(KindInvalidStepID,
					fmt.Sprintf("circular prerequisite chain involving step %s", d.steps[i].ID), nil)
			}
		}
	}

	return nil
}
