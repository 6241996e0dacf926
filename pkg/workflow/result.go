// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"dario.cat/mergo"
)

// ActionResult is the immutable outcome of one action invocation: either
// Success carrying data to merge into the instance, or Failure carrying an
// error message. Failure never contributes data.
type ActionResult struct {
	success  bool
	data     map[string]any
	metadata map[string]any
	errMsg   string
}

// Success creates a successful result whose data will be merged into the
// instance.
func Success(data map[string]any) ActionResult {
	return ActionResult{success: true, data: cloneDataMap(data)}
}

// SuccessWithMetadata creates a successful result with attached metadata.
func SuccessWithMetadata(data, metadata map[string]any) ActionResult {
	r := Success(data)
	r.metadata = cloneDataMap(metadata)
	return r
}

// Failure creates a failed result with an error message.
func Failure(errMsg string) ActionResult {
	return ActionResult{errMsg: errMsg}
}

// FailureWithMetadata creates a failed result with attached metadata.
func FailureWithMetadata(errMsg string, metadata map[string]any) ActionResult {
	r := Failure(errMsg)
	r.metadata = cloneDataMap(metadata)
	return r
}

// Succeeded reports whether the action succeeded.
func (r ActionResult) Succeeded() bool { return r.success }

// Data returns a copy of the result data. It is nil for failures.
func (r ActionResult) Data() map[string]any {
	if !r.success {
		return nil
	}
	return cloneDataMap(r.data)
}

// Metadata returns a copy of the result metadata.
func (r ActionResult) Metadata() map[string]any { return cloneDataMap(r.metadata) }

// ErrorMessage returns the failure message, empty for successes.
func (r ActionResult) ErrorMessage() string { return r.errMsg }

// Merge returns a new successful result with m merged over the existing
// data. Merging into a failure is a no-op.
func (r ActionResult) Merge(m map[string]any) ActionResult {
	if !r.success {
		return r
	}
	next := r
	next.data = cloneDataMap(r.data)
	if next.data == nil {
		next.data = make(map[string]any, len(m))
	}
	_ = mergo.Merge(&next.data, cloneDataMap(m), mergo.WithOverride)
	return next
}
