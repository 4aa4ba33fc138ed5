// Package handler bridges protocol requests to the task lifecycle and the
// agent executor. It validates requests against the agent card, resolves or
// creates tasks in the store, runs the executor, and returns or streams the
// results.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/imagesmith/imagesmith/internal/jsonrpc2"
	"github.com/imagesmith/imagesmith/pkg/a2a"
	"github.com/imagesmith/imagesmith/pkg/executor"
	"github.com/imagesmith/imagesmith/pkg/taskstore"
)

// ErrorCodeMetadataKey is the task metadata key carrying the
// machine-readable code of a failed execution.
const ErrorCodeMetadataKey = "errorCode"

// eventQueueSize bounds the in-flight events between executor and handler.
const eventQueueSize = 32

// RequestHandler implements jsonrpc2.TaskHandler on top of a task store and
// an agent executor.
type RequestHandler struct {
	card  *a2a.AgentCard
	store taskstore.Store
	exec  executor.AgentExecutor

	mu      sync.Mutex
	running map[string]context.CancelFunc

	// subscribers receive store-applied update events, used by the
	// websocket event endpoint.
	subMu       sync.Mutex
	subscribers map[string][]chan any
}

// New creates a RequestHandler. The card is the single source of truth for
// capability gating; requests requiring a capability it does not advertise
// are refused before any task is created.
func New(card *a2a.AgentCard, store taskstore.Store, exec executor.AgentExecutor) *RequestHandler {
	return &RequestHandler{
		card:        card,
		store:       store,
		exec:        exec,
		running:     make(map[string]context.CancelFunc),
		subscribers: make(map[string][]chan any),
	}
}

// Card returns the advertised agent card.
func (h *RequestHandler) Card() *a2a.AgentCard {
	return h.card
}

// SendTask handles tasks/send: run the task to completion and return the
// final task. Requests for a task already in a terminal state return its
// stored artifacts without invoking the executor again.
func (h *RequestHandler) SendTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
	if err := h.validateSend(params); err != nil {
		return nil, err
	}

	if existing, done, err := h.resolveExisting(ctx, params.ID); err != nil {
		return nil, err
	} else if done {
		return existing, nil
	}

	task, err := h.createTask(ctx, params)
	if err != nil {
		return nil, err
	}
	return h.runTask(ctx, task, params, nil)
}

// SubscribeToTask handles tasks/sendSubscribe: same pipeline as SendTask,
// but every update is forwarded through the stream writer as it arrives.
// Refused before task creation when the card does not advertise streaming.
func (h *RequestHandler) SubscribeToTask(ctx context.Context, params *a2a.TaskSendParams, sink *jsonrpc2.StreamWriter) error {
	if !h.card.Capabilities.Streaming {
		return a2a.NewUnsupportedOperationError("streaming is not advertised by the agent card")
	}
	if err := h.validateSend(params); err != nil {
		return err
	}

	if existing, done, err := h.resolveExisting(ctx, params.ID); err != nil {
		return err
	} else if done {
		// Replay the stored terminal result as a short stream.
		for _, artifact := range existing.Artifacts {
			if err := sink.WriteArtifactUpdate(&a2a.TaskArtifactUpdateEvent{ID: existing.ID, Artifact: artifact}); err != nil {
				return err
			}
		}
		return sink.WriteStatusUpdate(&a2a.TaskStatusUpdateEvent{ID: existing.ID, Status: existing.Status, Final: true})
	}

	task, err := h.createTask(ctx, params)
	if err != nil {
		return err
	}
	_, err = h.runTask(ctx, task, params, sink)
	return err
}

// GetTask handles tasks/get: a read of stored task state. Never invokes the
// executor.
func (h *RequestHandler) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	if params.ID == "" {
		return nil, &a2a.ValidationError{Field: "id", Reason: "task id is required"}
	}
	task, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, mapStoreError(err, params.ID)
	}
	truncateHistory(task, params.HistoryLength)
	return task, nil
}

// CancelTask handles tasks/cancel. Cancellation is cooperative: the
// executor is signaled and decides how quickly to honor it. Canceling a
// terminal task is a no-op returning the stored terminal state.
func (h *RequestHandler) CancelTask(ctx context.Context, params *a2a.TaskIdParams) (*a2a.Task, error) {
	if params.ID == "" {
		return nil, &a2a.ValidationError{Field: "id", Reason: "task id is required"}
	}

	task, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, mapStoreError(err, params.ID)
	}
	if task.Status.State.Terminal() {
		return task, nil
	}

	// Signal the running executor, if any, then let it observe the signal.
	h.mu.Lock()
	cancel := h.running[params.ID]
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	rc := &executor.RequestContext{TaskID: params.ID, CurrentTask: task}
	if task.ContextID != nil {
		rc.ContextID = *task.ContextID
	}
	queue := executor.NewSimpleEventQueue(eventQueueSize)
	if err := h.exec.Cancel(ctx, rc, queue); err != nil {
		return nil, a2a.NewTaskNotCancelableError(params.ID)
	}
	queue.Close()
	for event := range queue.Events() {
		h.applyEvent(ctx, params.ID, event)
	}

	// The executor may have recorded the transition already; make sure the
	// task ends canceled either way.
	updated, err := h.store.Update(ctx, params.ID, func(t *a2a.Task) error {
		if t.Status.State.Terminal() {
			return nil
		}
		t.Status = a2a.NewStatus(a2a.TaskStateCanceled, nil)
		return nil
	})
	if err != nil {
		if errors.Is(err, taskstore.ErrInvalidTransition) {
			return h.store.Get(ctx, params.ID)
		}
		return nil, mapStoreError(err, params.ID)
	}
	h.notifySubscribers(params.ID, &a2a.TaskStatusUpdateEvent{ID: params.ID, Status: updated.Status, Final: true})
	return updated, nil
}

// validateSend checks request shape and content modes against the card.
func (h *RequestHandler) validateSend(params *a2a.TaskSendParams) error {
	if len(params.Message.Parts) == 0 {
		return &a2a.ValidationError{Field: "message", Reason: "message must have at least one part"}
	}
	for _, part := range params.Message.Parts {
		switch part.Type {
		case a2a.PartTypeText:
			if !h.card.SupportsInputMode("text") && !h.card.SupportsInputMode("text/plain") {
				return &a2a.ValidationError{Field: "message", Reason: "text input is not a declared input mode"}
			}
		case a2a.PartTypeFile:
			if part.File == nil {
				return &a2a.ValidationError{Field: "message", Reason: "file part missing content"}
			}
			if part.File.MimeType != nil && !h.card.SupportsInputMode(*part.File.MimeType) {
				return &a2a.ValidationError{
					Field:  "message",
					Reason: fmt.Sprintf("input mode %q is not declared by the agent card", *part.File.MimeType),
				}
			}
		}
	}
	return nil
}

// resolveExisting returns the stored task when params target a known ID.
// done is true when the stored result should be returned as-is: terminal
// tasks are an idempotent read of completed work, and non-terminal tasks
// are already being worked, so a duplicate send returns the current
// snapshot rather than re-invoking the executor.
func (h *RequestHandler) resolveExisting(ctx context.Context, id string) (*a2a.Task, bool, error) {
	if id == "" {
		return nil, false, nil
	}
	task, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, taskstore.ErrTaskNotFound) {
			return nil, false, nil
		}
		return nil, false, mapStoreError(err, id)
	}
	return task, true, nil
}

func (h *RequestHandler) createTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
	if params.ID == "" {
		params.ID = uuid.NewString()
	}
	// A concurrent send may win the creation race; the winner owns the
	// execution and the loser surfaces ErrTaskExists.
	task, err := h.store.Create(ctx, params.ID, params.SessionID, &params.Message)
	if err != nil {
		return nil, mapStoreError(err, params.ID)
	}
	return task, nil
}

// runTask drives one task through the executor: submitted → working, drain
// the executor's events into the store (and the sink, when streaming), then
// apply the terminal transition. Late events arriving after the task is
// terminal are discarded.
func (h *RequestHandler) runTask(ctx context.Context, task *a2a.Task, params *a2a.TaskSendParams, sink *jsonrpc2.StreamWriter) (*a2a.Task, error) {
	taskID := task.ID

	working, err := h.store.Update(ctx, taskID, func(t *a2a.Task) error {
		t.Status = a2a.NewStatus(a2a.TaskStateWorking, nil)
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, taskID)
	}
	h.forward(sink, taskID, &a2a.TaskStatusUpdateEvent{ID: taskID, Status: working.Status})

	rc := &executor.RequestContext{
		TaskID:      taskID,
		Message:     &params.Message,
		CurrentTask: working,
		Metadata:    params.Metadata,
	}
	if params.SessionID != nil {
		rc.ContextID = *params.SessionID
	}

	execCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.running[taskID] = cancel
	h.mu.Unlock()
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.running, taskID)
		h.mu.Unlock()
	}()

	queue := executor.NewSimpleEventQueue(eventQueueSize)
	done := make(chan error, 1)
	go func() {
		done <- h.exec.Execute(execCtx, rc, queue)
		queue.Close()
	}()

	var terminalForwarded bool
	for event := range queue.Events() {
		if applied := h.applyEvent(ctx, taskID, event); applied {
			h.forward(sink, taskID, event)
			if status, ok := event.(*a2a.TaskStatusUpdateEvent); ok && status.Status.State.Terminal() {
				terminalForwarded = true
			}
		}
	}
	execErr := <-done

	final, err := h.finishTask(ctx, taskID, execErr)
	if err != nil {
		return nil, err
	}
	// Executors that report their own terminal status already closed the
	// stream for subscribers. Synthesize the final update only otherwise.
	if !terminalForwarded {
		h.forward(sink, taskID, &a2a.TaskStatusUpdateEvent{ID: taskID, Status: final.Status, Final: true})
	}

	truncateHistory(final, params.HistoryLength)
	return final, nil
}

// finishTask applies the terminal transition the executor outcome calls
// for, unless the drained events already left the task terminal.
func (h *RequestHandler) finishTask(ctx context.Context, taskID string, execErr error) (*a2a.Task, error) {
	final, err := h.store.Update(ctx, taskID, func(t *a2a.Task) error {
		if t.Status.State.Terminal() {
			return nil
		}
		if execErr != nil {
			msg := a2a.NewTextMessage("agent", execErr.Error())
			t.Status = a2a.NewStatus(a2a.TaskStateFailed, &msg)
			var execFailure *executor.ExecutionError
			if errors.As(execErr, &execFailure) {
				if t.Metadata == nil {
					t.Metadata = make(map[string]any)
				}
				t.Metadata[ErrorCodeMetadataKey] = execFailure.Code
			}
			return nil
		}
		t.Status = a2a.NewStatus(a2a.TaskStateCompleted, nil)
		return nil
	})
	if err != nil {
		if errors.Is(err, taskstore.ErrInvalidTransition) {
			// A cancellation won the race to the terminal state.
			return h.store.Get(ctx, taskID)
		}
		return nil, mapStoreError(err, taskID)
	}
	return final, nil
}

// applyEvent records one executor event in the store. Events targeting a
// task already in a terminal state are discarded, which is how late units
// after a cancellation are tolerated.
func (h *RequestHandler) applyEvent(ctx context.Context, taskID string, event any) bool {
	var err error
	switch ev := event.(type) {
	case *a2a.TaskStatusUpdateEvent:
		_, err = h.store.Update(ctx, taskID, func(t *a2a.Task) error {
			t.Status = ev.Status
			return nil
		})
	case *a2a.TaskArtifactUpdateEvent:
		_, err = h.store.Update(ctx, taskID, func(t *a2a.Task) error {
			t.Artifacts = append(t.Artifacts, ev.Artifact)
			return nil
		})
	default:
		slog.Warn("discarding unknown executor event", "task", taskID, "event", fmt.Sprintf("%T", event))
		return false
	}
	if err != nil {
		if errors.Is(err, taskstore.ErrInvalidTransition) {
			slog.Debug("discarding late executor event", "task", taskID)
			return false
		}
		slog.Error("failed to record executor event", "task", taskID, "error", err)
		return false
	}
	h.notifySubscribers(taskID, event)
	return true
}

// forward pushes an update to the streaming sink, when there is one, and to
// websocket subscribers.
func (h *RequestHandler) forward(sink *jsonrpc2.StreamWriter, taskID string, event any) {
	h.notifySubscribers(taskID, event)
	if sink == nil {
		return
	}
	var err error
	switch ev := event.(type) {
	case *a2a.TaskStatusUpdateEvent:
		err = sink.WriteStatusUpdate(ev)
	case *a2a.TaskArtifactUpdateEvent:
		err = sink.WriteArtifactUpdate(ev)
	}
	if err != nil {
		slog.Warn("failed to forward update to stream", "task", taskID, "error", err)
	}
}

// Subscribe registers a channel receiving all subsequent update events for
// a task. The returned func unregisters it.
func (h *RequestHandler) Subscribe(taskID string) (<-chan any, func()) {
	ch := make(chan any, eventQueueSize)
	h.subMu.Lock()
	h.subscribers[taskID] = append(h.subscribers[taskID], ch)
	h.subMu.Unlock()

	unsubscribe := func() {
		h.subMu.Lock()
		defer h.subMu.Unlock()
		subs := h.subscribers[taskID]
		for i, c := range subs {
			if c == ch {
				h.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsubscribe
}

func (h *RequestHandler) notifySubscribers(taskID string, event any) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, ch := range h.subscribers[taskID] {
		select {
		case ch <- event:
		default: // slow subscriber, drop rather than stall the task
		}
	}
}

func mapStoreError(err error, taskID string) error {
	switch {
	case errors.Is(err, taskstore.ErrTaskNotFound):
		return a2a.NewTaskNotFoundError(taskID)
	case errors.Is(err, taskstore.ErrTaskExists):
		return a2a.NewInvalidRequestError(fmt.Sprintf("task already exists: %s", taskID))
	case errors.Is(err, taskstore.ErrInvalidTransition):
		return a2a.NewInternalError(err.Error())
	default:
		return a2a.NewInternalError(err.Error())
	}
}

func truncateHistory(task *a2a.Task, historyLength *int) {
	if historyLength == nil || *historyLength < 0 || len(task.History) <= *historyLength {
		return
	}
	task.History = task.History[len(task.History)-*historyLength:]
}

// Compile-time interface compliance check.
var _ jsonrpc2.TaskHandler = (*RequestHandler)(nil)
