// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowstate-dev/flowstate/pkg/logger"
)

// EventType identifies a lifecycle event.
type EventType string

// Lifecycle event types published by the engine.
const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventWorkflowCancelled EventType = "workflow.cancelled"
	EventStepCompleted     EventType = "step.completed"
	EventStepFailed        EventType = "step.failed"
)

// Event is one lifecycle notification. Events are observational: sink
// failures never affect instance state.
type Event struct {
	// Type identifies the lifecycle moment.
	Type EventType `json:"type"`

	// WorkflowID is the instance ID.
	WorkflowID string `json:"workflow_id"`

	// WorkflowName is the definition name.
	WorkflowName string `json:"workflow_name"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Payload carries event-specific fields (step_id, attempt, error).
	Payload map[string]any `json:"payload,omitempty"`
}

// EventSink receives lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// LogSink writes events to the structured log.
type LogSink struct{}

// Publish implements EventSink.
func (LogSink) Publish(_ context.Context, event Event) error {
	logger.Infow("workflow event",
		"type", string(event.Type),
		"workflow_id", event.WorkflowID,
		"workflow_name", event.WorkflowName,
		"payload", event.Payload,
	)
	return nil
}

// MemorySink records events in memory, for tests and inspection.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish implements EventSink.
func (s *MemorySink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events, in publication order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

// EventsOfType returns recorded events of one type, in publication order.
func (s *MemorySink) EventsOfType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// MultiSink fans events out to several sinks. Each sink is attempted even
// when an earlier one fails; the first error is returned.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
