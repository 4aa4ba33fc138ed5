package jsonrpc2

import (
	"context"
	"sync"
	"time"

	"github.com/imagesmith/imagesmith/pkg/a2a"
)

// mockTaskHandler is a scripted TaskHandler for transport tests.
type mockTaskHandler struct {
	mu    sync.Mutex
	tasks map[string]*a2a.Task

	// failWith, when set, is returned from every method.
	failWith error
}

func newMockTaskHandler() *mockTaskHandler {
	return &mockTaskHandler{tasks: make(map[string]*a2a.Task)}
}

func (h *mockTaskHandler) SendTask(_ context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
	if h.failWith != nil {
		return nil, h.failWith
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	task := &a2a.Task{
		ID: params.ID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateCompleted,
			Timestamp: &now,
		},
		History:   []a2a.Message{params.Message},
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.tasks[params.ID] = task
	return task, nil
}

func (h *mockTaskHandler) GetTask(_ context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	if h.failWith != nil {
		return nil, h.failWith
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	task, ok := h.tasks[params.ID]
	if !ok {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}
	return task, nil
}

func (h *mockTaskHandler) CancelTask(_ context.Context, params *a2a.TaskIdParams) (*a2a.Task, error) {
	if h.failWith != nil {
		return nil, h.failWith
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	task, ok := h.tasks[params.ID]
	if !ok {
		return nil, a2a.NewTaskNotFoundError(params.ID)
	}
	task.Status = a2a.NewStatus(a2a.TaskStateCanceled, nil)
	return task, nil
}

func (h *mockTaskHandler) SubscribeToTask(_ context.Context, params *a2a.TaskSendParams, sink *StreamWriter) error {
	if h.failWith != nil {
		return h.failWith
	}

	if err := sink.WriteStatusUpdate(&a2a.TaskStatusUpdateEvent{
		ID:     params.ID,
		Status: a2a.NewStatus(a2a.TaskStateWorking, nil),
	}); err != nil {
		return err
	}
	return sink.WriteStatusUpdate(&a2a.TaskStatusUpdateEvent{
		ID:     params.ID,
		Status: a2a.NewStatus(a2a.TaskStateCompleted, nil),
		Final:  true,
	})
}

var _ TaskHandler = (*mockTaskHandler)(nil)
