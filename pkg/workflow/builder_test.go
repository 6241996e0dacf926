// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderHappyPath(t *testing.T) {
	t.Parallel()

	def, err := Create("order-fulfillment").
		Version("2.0").
		Metadata("team", "commerce").
		AddStep("reserve", "inventory.reserve",
			WithConfig(map[string]any{"warehouse": "eu-1"}),
			WithCompensation("inventory.release"),
		).
		AddStep("charge", "payments.charge",
			WithRetryAttempts(3),
			WithTimeout(30*time.Second),
		).
		AddStep("notify", "email").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "order-fulfillment", def.Name())
	assert.Equal(t, "2.0", def.Version())
	assert.Equal(t, 3, def.StepCount())
	assert.Equal(t, "commerce", def.Metadata()["team"])

	charge, ok := def.Step("charge")
	require.True(t, ok)
	assert.Equal(t, 3, charge.RetryAttempts)
	assert.Equal(t, 30*time.Second, charge.Timeout)

	notify, ok := def.Step("notify")
	require.True(t, ok)
	assert.Equal(t, RetryAttemptsUnset, notify.RetryAttempts)

	// Without explicit transitions the steps chain sequentially.
	assert.Equal(t, []Transition{
		{FromStepID: "reserve", ToStepID: "charge"},
		{FromStepID: "charge", ToStepID: "notify"},
	}, def.Transitions())
}

func TestBuilderStickyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() (*Definition, error)
		wantKind string
	}{
		{
			name: "invalid name",
			build: func() (*Definition, error) {
				return Create("9lives").AddStep("a", "log").Build()
			},
			wantKind: KindInvalidName,
		},
		{
			name: "duplicate step",
			build: func() (*Definition, error) {
				return Create("wf").AddStep("a", "log").AddStep("a", "log").Build()
			},
			wantKind: KindDuplicateStepID,
		},
		{
			name: "retry attempts out of range",
			build: func() (*Definition, error) {
				return Create("wf").AddStep("a", "log", WithRetryAttempts(11)).Build()
			},
			wantKind: KindInvalidRetryAttempts,
		},
		{
			name: "negative retry attempts",
			build: func() (*Definition, error) {
				return Create("wf").AddStep("a", "log", WithRetryAttempts(-1)).Build()
			},
			wantKind: KindInvalidRetryAttempts,
		},
		{
			name: "zero timeout",
			build: func() (*Definition, error) {
				return Create("wf").AddStep("a", "log", WithTimeout(0)).Build()
			},
			wantKind: KindInvalidTimeout,
		},
		{
			name: "no steps",
			build: func() (*Definition, error) {
				return Create("wf").Build()
			},
			wantKind: KindEmptyWorkflow,
		},
		{
			name: "zero delay",
			build: func() (*Definition, error) {
				return Create("wf").Delay("wait", 0).Build()
			},
			wantKind: KindInvalidDelay,
		},
		{
			name: "empty condition",
			build: func() (*Definition, error) {
				return Create("wf").AddStep("a", "log", WithCondition("")).Build()
			},
			wantKind: KindInvalidCondition,
		},
		{
			name: "first error wins",
			build: func() (*Definition, error) {
				return Create("wf").
					AddStep("a", "log", WithRetryAttempts(99)).
					AddStep("a", "log").
					Build()
			},
			wantKind: KindInvalidRetryAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.build()
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.wantKind), "want kind %s, got %v", tt.wantKind, err)
		})
	}
}

func TestBuilderRetryAttemptsBoundaries(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 10} {
		def, err := Create("wf").AddStep("a", "log", WithRetryAttempts(n)).Build()
		require.NoError(t, err)
		step, _ := def.Step("a")
		assert.Equal(t, n, step.RetryAttempts)
	}
}

func TestBuilderWhenScope(t *testing.T) {
	t.Parallel()

	def, err := Create("wf").
		AddStep("always", "log").
		When(`user.plan === "premium"`, func(b *Builder) {
			b.AddStep("perk", "email")
			b.When("user.credits > 0", func(b *Builder) {
				b.AddStep("bonus", "log", WithCondition("user.active == true"))
			})
		}).
		AddStep("after", "log").
		Build()
	require.NoError(t, err)

	always, _ := def.Step("always")
	assert.Empty(t, always.Conditions)

	perk, _ := def.Step("perk")
	assert.Equal(t, []string{`user.plan === "premium"`}, perk.Conditions)

	bonus, _ := def.Step("bonus")
	assert.Equal(t, []string{
		`user.plan === "premium"`,
		"user.credits > 0",
		"user.active == true",
	}, bonus.Conditions)

	// Steps after the scope are unconditioned again.
	after, _ := def.Step("after")
	assert.Empty(t, after.Conditions)
}

func TestBuilderSugarSteps(t *testing.T) {
	t.Parallel()

	def, err := Create("wf").
		Email("welcome", "user@example.com", "Welcome", "Hello!").
		HTTP("ping", "GET", "https://example.com/health").
		Delay("cooldown", 5*time.Second).
		Condition("gate", "user.age >= 18").
		Build()
	require.NoError(t, err)

	email, _ := def.Step("welcome")
	assert.Equal(t, "email", email.ActionRef)
	assert.Equal(t, "user@example.com", email.Config["to"])

	ping, _ := def.Step("ping")
	assert.Equal(t, "http", ping.ActionRef)
	assert.Equal(t, "GET", ping.Config["method"])

	cooldown, _ := def.Step("cooldown")
	assert.Equal(t, "delay", cooldown.ActionRef)
	assert.Equal(t, "5s", cooldown.Config["duration"])

	gate, _ := def.Step("gate")
	assert.Equal(t, "condition", gate.ActionRef)
	assert.Equal(t, "user.age >= 18", gate.Config["condition"])
}

func TestBuilderExplicitTransitions(t *testing.T) {
	t.Parallel()

	def, err := Create("wf").
		AddStep("check", "condition").
		AddStep("approve", "log").
		AddStep("reject", "log").
		TransitionWhen("check", "approve", "score >= 700").
		TransitionWhen("check", "reject", "score < 700").
		Build()
	require.NoError(t, err)

	require.Len(t, def.Transitions(), 2)
	assert.Equal(t, "score >= 700", def.Transitions()[0].Condition)
}
