// SPDX-License-Identifier: Apache-2.0

package workflow

// cloneDataMap creates a deep copy of a nested data map. Nested
// map[string]any and []any values are copied recursively; scalar values
// are shared (they are immutable from the engine's point of view).
func cloneDataMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies nested maps and slices within a data value.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDataMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// cloneStrings copies a string slice.
func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
