// SPDX-License-Identifier: Apache-2.0

package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCEL(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"user":  map[string]any{"plan": "premium", "age": 42},
		"total": 99.5,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"field equality", `data.user.plan == "premium"`, true},
		{"conjunction", `data.user.age > 40 && data.total < 100.0`, true},
		{"map membership", `"plan" in data.user`, true},
		{"negative", `data.user.plan == "basic"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := EvaluateCEL(tt.expr, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateCELThroughPrefix(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(`cel:data.user.plan == "premium"`, map[string]any{
		"user": map[string]any{"plan": "premium"},
	})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateCELErrors(t *testing.T) {
	t.Parallel()

	t.Run("compile error", func(t *testing.T) {
		t.Parallel()

		_, err := EvaluateCEL(`data.user ==`, map[string]any{})
		require.Error(t, err)
	})

	t.Run("non-boolean result", func(t *testing.T) {
		t.Parallel()

		_, err := EvaluateCEL(`data.total`, map[string]any{"total": 3})
		require.Error(t, err)
	})
}
