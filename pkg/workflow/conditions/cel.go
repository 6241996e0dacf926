// SPDX-License-Identifier: Apache-2.0

package conditions

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celPrefix marks a predicate as a CEL expression instead of the built-in
// comparison grammar.
const celPrefix = "cel:"

// celEnv is the shared CEL environment. Expressions see the instance data
// map as the variable "data".
var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error

	// celCache holds compiled programs keyed by expression source.
	celCache sync.Map // string -> cel.Program
)

func environment() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// EvaluateCEL compiles and evaluates a CEL expression against the data
// map. The expression must produce a boolean. Compiled programs are cached
// by source, so repeated evaluation of the same predicate is cheap.
func EvaluateCEL(expr string, data map[string]any) (bool, error) {
	prg, err := compile(expr)
	if err != nil {
		return false, err
	}

	if data == nil {
		data = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{"data": data})
	if err != nil {
		return false, fmt.Errorf("evaluating CEL expression: %w", err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q did not produce a boolean", expr)
	}
	return b, nil
}

func compile(expr string) (cel.Program, error) {
	if cached, ok := celCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}

	env, err := environment()
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling CEL expression: %w", iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building CEL program: %w", err)
	}

	celCache.Store(expr, prg)
	return prg, nil
}
