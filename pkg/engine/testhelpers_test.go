// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"sync"

	"github.com/flowstate-dev/flowstate/pkg/action"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// recorder captures cross-action invocation order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

// fakeAction is a scriptable action for executor tests. Results are
// consumed per invocation; when the script runs out the last entry
// repeats. A nil script always succeeds with "<name>_done": true.
type fakeAction struct {
	mu       sync.Mutex
	name     string
	script   []workflow.ActionResult
	gate     func(workflow.Context) bool
	settings action.Settings
	rec      *recorder
	calls    int
	contexts []workflow.Context
}

var _ action.Action = (*fakeAction)(nil)
var _ action.Configurable = (*fakeAction)(nil)

func (f *fakeAction) Name() string        { return f.name }
func (f *fakeAction) Description() string { return "test action" }

func (f *fakeAction) CanExecute(_ context.Context, wfCtx workflow.Context) bool {
	if f.gate == nil {
		return true
	}
	return f.gate(wfCtx)
}

func (f *fakeAction) Execute(_ context.Context, wfCtx workflow.Context) workflow.ActionResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.contexts = append(f.contexts, wfCtx)
	if f.rec != nil {
		f.rec.record(f.name)
	}

	if len(f.script) == 0 {
		return workflow.Success(map[string]any{f.name + "_done": true})
	}
	result := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return result
}

func (f *fakeAction) ActionSettings() action.Settings { return f.settings }

func (f *fakeAction) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAction) lastContext() (workflow.Context, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.contexts) == 0 {
		return workflow.Context{}, false
	}
	return f.contexts[len(f.contexts)-1], true
}

// registryWith builds a registry containing the given fakes, each
// registered under its name. The factory hands out the shared instance so
// tests can observe calls.
func registryWith(fakes ...*fakeAction) (*action.Registry, error) {
	r := action.NewRegistry()
	for _, f := range fakes {
		f := f
		if err := r.Register(f.name, func() action.Action { return f }); err != nil {
			return nil, err
		}
	}
	return r, nil
}
