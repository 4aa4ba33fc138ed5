// Package executor defines the contract between the request handler and the
// agent logic that performs the actual work for a task. The handler depends
// on agents only through this interface, so multiple concrete agents can be
// served without touching the handler.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/imagesmith/imagesmith/pkg/a2a"
)

// AgentExecutor performs the work for a task. Execute publishes progress and
// artifacts to the event queue as they are produced and returns once the
// work is done or has failed. Cancellation is cooperative: Cancel requests a
// stop, and the executor decides how quickly to honor it; it may still emit
// further events before doing so.
//
// Failures must carry a machine-readable code (see ExecutionError); the
// handler maps them into the task's terminal failed state and into the
// response surfaced to the caller.
type AgentExecutor interface {
	Execute(ctx context.Context, rc *RequestContext, queue EventQueue) error
	Cancel(ctx context.Context, rc *RequestContext, queue EventQueue) error
}

// RequestContext is the task context an executor is invoked with.
type RequestContext struct {
	TaskID    string
	ContextID string
	Message   *a2a.Message
	// CurrentTask is the stored task when the request continues an existing
	// one, nil for fresh submissions.
	CurrentTask *a2a.Task
	Metadata    map[string]any
}

// UserInput returns the text content of the inbound message.
func (rc *RequestContext) UserInput() string {
	if rc.Message == nil {
		return ""
	}
	return rc.Message.Text()
}

// ExecutionError is an executor failure with a machine-readable code.
type ExecutionError struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("execution error [%s]: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("execution error [%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError builds an ExecutionError wrapping cause.
func NewExecutionError(code, message string, cause error) *ExecutionError {
	return &ExecutionError{Code: code, Message: message, Cause: cause}
}

// EventQueue accepts result units published by an executor. Events are
// *a2a.TaskStatusUpdateEvent or *a2a.TaskArtifactUpdateEvent values.
type EventQueue interface {
	// Enqueue adds an event to the queue for processing.
	Enqueue(ctx context.Context, event any) error
	// Close marks the queue as done; no further events are accepted.
	Close() error
}

// SimpleEventQueue is a buffered-channel EventQueue. The handler drains
// Events while the executor runs.
type SimpleEventQueue struct {
	events chan any
	mu     sync.RWMutex
	closed bool
}

// NewSimpleEventQueue creates a queue with the given buffer size.
func NewSimpleEventQueue(bufferSize int) *SimpleEventQueue {
	return &SimpleEventQueue{events: make(chan any, bufferSize)}
}

// Enqueue implements EventQueue.
func (q *SimpleEventQueue) Enqueue(ctx context.Context, event any) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("event queue is closed")
	}

	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements EventQueue.
func (q *SimpleEventQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.events)
		q.closed = true
	}
	return nil
}

// Events returns the receive side of the queue. It is closed by Close.
func (q *SimpleEventQueue) Events() <-chan any {
	return q.events
}
