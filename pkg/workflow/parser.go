// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// timeoutPattern accepts duration strings like "30s", "5m", "2h", "1d".
var timeoutPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// timeoutUnits maps duration suffixes to their base duration.
var timeoutUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseYAML parses a declarative workflow definition from YAML (or JSON,
// which is a subset).
func ParseYAML(data []byte) (*Definition, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewError(KindInvalidName, "unparseable workflow document", err)
	}
	return Parse(doc)
}

// Parse builds a Definition from a declarative map.
//
// Recognized fields: name (required), version (default "1.0"), steps
// (required, a list of step records or an id-keyed map), transitions
// (optional; sequential transitions in step order are implied when
// omitted), metadata (opaque).
//
// Step record fields: id (required in list form), action, parameters or
// config, timeout ("30s"/"5m"/"2h"/"1d" or positive integer seconds),
// retry_attempts (0-10), compensation, conditions, prerequisites.
//
// Map-form steps carry no usable ordering in Go, so they are normalized
// in lexical id order; declare explicit transitions when using that form.
func Parse(doc map[string]any) (*Definition, error) {
	name, _ := doc["name"].(string)

	version := DefaultVersion
	if v, ok := doc["version"].(string); ok && v != "" {
		version = v
	}

	steps, err := parseSteps(doc["steps"])
	if err != nil {
		return nil, err
	}

	transitions, err := parseTransitions(doc["transitions"])
	if err != nil {
		return nil, err
	}
	if len(transitions) == 0 {
		transitions = sequentialTransitions(steps)
	}

	metadata, _ := doc["metadata"].(map[string]any)

	return NewDefinition(name, version, steps, transitions, metadata)
}

// parseSteps normalizes the two accepted step layouts into an ordered
// slice of Steps.
func parseSteps(v any) ([]Step, error) {
	switch t := v.(type) {
	case []any:
		steps := make([]Step, 0, len(t))
		for i, raw := range t {
			rec, ok := raw.(map[string]any)
			if !ok {
				return nil, NewError(KindInvalidStepID,
					fmt.Sprintf("step %d is not a map", i), nil)
			}
			id, _ := rec["id"].(string)
			if id == "" {
				return nil, NewError(KindInvalidStepID,
					fmt.Sprintf("step %d has no id", i), nil)
			}
			step, err := parseStep(id, rec)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
		}
		return steps, nil

	case map[string]any:
		ids := make([]string, 0, len(t))
		for id := range t {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		steps := make([]Step, 0, len(ids))
		for _, id := range ids {
			rec, ok := t[id].(map[string]any)
			if !ok {
				return nil, NewError(KindInvalidStepID,
					fmt.Sprintf("step %s is not a map", id), nil)
			}
			step, err := parseStep(id, rec)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)
		}
		return steps, nil

	case nil:
		return nil, NewError(KindEmptyWorkflow, "workflow must have at least one step", nil)

	default:
		return nil, NewError(KindEmptyWorkflow, "steps must be a list or an id-keyed map", nil)
	}
}

// parseStep builds a Step from one declarative record.
func parseStep(id string, rec map[string]any) (Step, error) {
	step := Step{
		ID:            id,
		RetryAttempts: RetryAttemptsUnset,
	}

	if action, ok := rec["action"].(string); ok {
		step.ActionRef = action
	}

	// "parameters" is an alias for "config".
	if cfg, ok := rec["config"].(map[string]any); ok {
		step.Config = cloneDataMap(cfg)
	} else if params, ok := rec["parameters"].(map[string]any); ok {
		step.Config = cloneDataMap(params)
	}

	if raw, ok := rec["timeout"]; ok {
		timeout, err := ParseTimeout(raw)
		if err != nil {
			return Step{}, NewError(KindInvalidTimeout,
				fmt.Sprintf("step %s: %v", id, err), nil)
		}
		step.Timeout = timeout
	}

	if raw, ok := rec["retry_attempts"]; ok {
		n, ok := toInt(raw)
		if !ok || n < 0 || n > MaxRetryAttempts {
			return Step{}, NewError(KindInvalidRetryAttempts,
				fmt.Sprintf("step %s: retry_attempts %v outside 0-%d", id, raw, MaxRetryAttempts), nil)
		}
		step.RetryAttempts = n
	}

	if comp, ok := rec["compensation"].(string); ok {
		step.CompensationRef = comp
	}

	var err error
	if step.Conditions, err = toStrings(rec["conditions"]); err != nil {
		return Step{}, NewError(KindInvalidCondition,
			fmt.Sprintf("step %s: conditions must be strings", id), nil)
	}
	if step.Prerequisites, err = toStrings(rec["prerequisites"]); err != nil {
		return Step{}, NewError(KindInvalidStepID,
			fmt.Sprintf("step %s: prerequisites must be strings", id), nil)
	}

	return step, nil
}

// parseTransitions reads the explicit transition list.
func parseTransitions(v any) ([]Transition, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, nil
	}

	out := make([]Transition, 0, len(raw))
	for i, entry := range raw {
		rec, ok := entry.(map[string]any)
		if !ok {
			return nil, NewError(KindInvalidTransition,
				fmt.Sprintf("transition %d is not a map", i), nil)
		}
		from, _ := rec["from"].(string)
		to, _ := rec["to"].(string)
		if from == "" || to == "" {
			return nil, NewError(KindInvalidTransition,
				fmt.Sprintf("transition %d requires from and to", i), nil)
		}
		cond, _ := rec["condition"].(string)
		out = append(out, Transition{FromStepID: from, ToStepID: to, Condition: cond})
	}
	return out, nil
}

// ParseTimeout converts a declarative timeout value to a duration. It
// accepts a duration string matching ^\d+[smhd]$ or a positive integer
// number of seconds.
func ParseTimeout(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		m := timeoutPattern.FindStringSubmatch(t)
		if m == nil {
			return 0, fmt.Errorf("invalid timeout %q (want e.g. \"30s\", \"5m\", \"2h\", \"1d\")", t)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid timeout %q", t)
		}
		return time.Duration(n) * timeoutUnits[m[2]], nil

	default:
		n, ok := toInt(v)
		if !ok || n <= 0 {
			return 0, fmt.Errorf("invalid timeout %v", v)
		}
		return time.Duration(n) * time.Second, nil
	}
}

// toInt normalizes the integer types YAML and JSON decoders produce.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	default:
		return 0, false
	}
}

// toStrings converts a []any of strings. A nil input yields nil.
func toStrings(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return cloneStrings(ss), nil
		}
		return nil, fmt.Errorf("not a list")
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("not a string: %v", e)
		}
		out = append(out, s)
	}
	return out, nil
}
