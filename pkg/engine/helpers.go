// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/workflow"
)

// The package-level default engine backs the convenience functions below,
// for programs that run a single engine.
var (
	defaultMu     sync.RWMutex
	defaultEngine *Engine
)

// SetDefault installs the process-wide default engine.
func SetDefault(e *Engine) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultEngine = e
}

// Default returns the process-wide default engine, or nil when none is
// installed.
func Default() *Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

func requireDefault() (*Engine, error) {
	if e := Default(); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("no default engine installed, call engine.SetDefault first")
}

// StartWorkflow starts a workflow on the default engine.
func StartWorkflow(ctx context.Context, id string, def any, initialData map[string]any) (string, error) {
	e, err := requireDefault()
	if err != nil {
		return "", err
	}
	return e.Start(ctx, id, def, initialData)
}

// GetWorkflow loads an instance from the default engine.
func GetWorkflow(ctx context.Context, id string) (*workflow.Instance, error) {
	e, err := requireDefault()
	if err != nil {
		return nil, err
	}
	return e.Get(ctx, id)
}

// CancelWorkflow cancels an instance on the default engine.
func CancelWorkflow(ctx context.Context, id, reason string) error {
	e, err := requireDefault()
	if err != nil {
		return err
	}
	return e.Cancel(ctx, id, reason)
}

// ListWorkflows lists instances on the default engine.
func ListWorkflows(ctx context.Context, filter storage.Filter) ([]Summary, error) {
	e, err := requireDefault()
	if err != nil {
		return nil, err
	}
	return e.List(ctx, filter)
}
