package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/imagesmith/imagesmith/internal/jsonrpc2"
	"github.com/imagesmith/imagesmith/pkg/a2a"
	"github.com/imagesmith/imagesmith/pkg/executor"
	"github.com/imagesmith/imagesmith/pkg/taskstore"
)

func sendParams(id, prompt string) *a2a.TaskSendParams {
	return &a2a.TaskSendParams{ID: id, Message: a2a.NewTextMessage("user", prompt)}
}

func TestSendTaskCompletes(t *testing.T) {
	exec := &mockExecutor{}
	h := New(testCard(true), taskstore.NewMemoryStore(), exec)

	task, err := h.SendTask(context.Background(), sendParams("task-1", "generate a red circle"))
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("Expected completed state, got %s", task.Status.State)
	}
	if len(task.Artifacts) != 1 {
		t.Fatalf("Expected one artifact, got %d", len(task.Artifacts))
	}
	artifact := task.Artifacts[0]
	if artifact.Name == nil || *artifact.Name != "image_task-1" {
		t.Errorf("Expected artifact named image_task-1, got %v", artifact.Name)
	}
	if len(artifact.Parts) != 1 || artifact.Parts[0].Type != a2a.PartTypeFile {
		t.Fatalf("Expected a single file part, got %v", artifact.Parts)
	}
	if mt := artifact.Parts[0].File.MimeType; mt == nil || *mt != "image/png" {
		t.Errorf("Expected image/png part, got %v", mt)
	}
	if len(task.History) != 1 || task.History[0].Text() != "generate a red circle" {
		t.Errorf("Expected inbound message in history, got %v", task.History)
	}
	if exec.Executions() != 1 {
		t.Errorf("Expected one execution, got %d", exec.Executions())
	}
}

func TestSendTaskGeneratesID(t *testing.T) {
	h := New(testCard(true), taskstore.NewMemoryStore(), &mockExecutor{})

	task, err := h.SendTask(context.Background(), sendParams("", "prompt"))
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("Expected a generated task ID")
	}
}

func TestSendTaskDuplicateReturnsStoredResult(t *testing.T) {
	exec := &mockExecutor{}
	h := New(testCard(true), taskstore.NewMemoryStore(), exec)
	ctx := context.Background()

	first, err := h.SendTask(ctx, sendParams("task-1", "generate a red circle"))
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	second, err := h.SendTask(ctx, sendParams("task-1", "generate a red circle"))
	if err != nil {
		t.Fatalf("Duplicate SendTask failed: %v", err)
	}

	if second.Status.State != first.Status.State {
		t.Errorf("Expected stored state %s, got %s", first.Status.State, second.Status.State)
	}
	if len(second.Artifacts) != len(first.Artifacts) {
		t.Errorf("Expected stored artifacts to be returned")
	}
	if exec.Executions() != 1 {
		t.Errorf("Expected duplicate send not to re-invoke the executor, got %d executions", exec.Executions())
	}
}

func TestSendTaskExecutionFailure(t *testing.T) {
	exec := &mockExecutor{
		executeFn: func(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error {
			return executor.NewExecutionError("quota_exceeded", "Gemini API quota exceeded", nil)
		},
	}
	h := New(testCard(true), taskstore.NewMemoryStore(), exec)

	task, err := h.SendTask(context.Background(), sendParams("task-1", "generate a red circle"))
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("Expected failed state, got %s", task.Status.State)
	}
	if task.Status.Message == nil || task.Status.Message.Text() == "" {
		t.Error("Expected the failure detail in the status message")
	}
	if code, ok := task.Metadata[ErrorCodeMetadataKey]; !ok || code != "quota_exceeded" {
		t.Errorf("Expected errorCode metadata quota_exceeded, got %v", task.Metadata)
	}
}

func TestLateExecutorEventsDiscarded(t *testing.T) {
	exec := &mockExecutor{
		executeFn: func(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error {
			if err := queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
				ID:     rc.TaskID,
				Status: a2a.NewStatus(a2a.TaskStateCanceled, nil),
				Final:  true,
			}); err != nil {
				return err
			}
			// Units still in flight when the task went terminal.
			if err := queue.Enqueue(ctx, &a2a.TaskArtifactUpdateEvent{
				ID: rc.TaskID,
				Artifact: a2a.NewArtifact("image_late", []a2a.Part{
					a2a.NewFilePart("img_late", "image/png", "bGF0ZQ=="),
				}),
			}); err != nil {
				return err
			}
			return queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
				ID:     rc.TaskID,
				Status: a2a.NewStatus(a2a.TaskStateWorking, nil),
			})
		},
	}
	h := New(testCard(true), taskstore.NewMemoryStore(), exec)
	ctx := context.Background()

	task, err := h.SendTask(ctx, sendParams("task-1", "prompt"))
	if err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}
	if task.Status.State != a2a.TaskStateCanceled {
		t.Errorf("Expected the task to stay canceled, got %s", task.Status.State)
	}
	if len(task.Artifacts) != 0 {
		t.Errorf("Expected late artifacts to be discarded, got %d", len(task.Artifacts))
	}

	stored, err := h.GetTask(ctx, &a2a.TaskQueryParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.Status.State != a2a.TaskStateCanceled || len(stored.Artifacts) != 0 {
		t.Errorf("Expected stored task unchanged by late events, got %s with %d artifacts",
			stored.Status.State, len(stored.Artifacts))
	}
}

func TestSendTaskValidation(t *testing.T) {
	h := New(testCard(true), taskstore.NewMemoryStore(), &mockExecutor{})
	ctx := context.Background()

	t.Run("empty message", func(t *testing.T) {
		_, err := h.SendTask(ctx, &a2a.TaskSendParams{ID: "task-1", Message: a2a.Message{Role: "user"}})
		var valErr *a2a.ValidationError
		if !errors.As(err, &valErr) {
			t.Fatalf("Expected *ValidationError, got %v", err)
		}
	})

	t.Run("undeclared input mode", func(t *testing.T) {
		params := &a2a.TaskSendParams{
			ID: "task-2",
			Message: a2a.Message{
				Role:  "user",
				Parts: []a2a.Part{a2a.NewFilePart("clip.mp4", "video/mp4", "AAAA")},
			},
		}
		_, err := h.SendTask(ctx, params)
		var valErr *a2a.ValidationError
		if !errors.As(err, &valErr) {
			t.Fatalf("Expected *ValidationError, got %v", err)
		}
	})

	// Validation failures must not leave tasks behind.
	if _, err := h.GetTask(ctx, &a2a.TaskQueryParams{ID: "task-1"}); err == nil {
		t.Error("Expected no task to be created for an invalid request")
	}
}

func TestGetTask(t *testing.T) {
	h := New(testCard(true), taskstore.NewMemoryStore(), &mockExecutor{})
	ctx := context.Background()

	if _, err := h.SendTask(ctx, sendParams("task-1", "prompt")); err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	task, err := h.GetTask(ctx, &a2a.TaskQueryParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("Expected completed state, got %s", task.Status.State)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	h := New(testCard(true), taskstore.NewMemoryStore(), &mockExecutor{})

	_, err := h.GetTask(context.Background(), &a2a.TaskQueryParams{ID: "missing"})
	var rpcErr *a2a.JSONRPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected *JSONRPCError, got %v", err)
	}
	if rpcErr.Code != a2a.CodeTaskNotFound {
		t.Errorf("Expected code %d, got %d", a2a.CodeTaskNotFound, rpcErr.Code)
	}
}

func TestGetTaskTruncatesHistory(t *testing.T) {
	store := taskstore.NewMemoryStore()
	h := New(testCard(true), store, &mockExecutor{})
	ctx := context.Background()

	if _, err := h.SendTask(ctx, sendParams("task-1", "prompt")); err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	zero := 0
	task, err := h.GetTask(ctx, &a2a.TaskQueryParams{ID: "task-1", HistoryLength: &zero})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(task.History) != 0 {
		t.Errorf("Expected truncated history, got %d messages", len(task.History))
	}

	// The stored record keeps the full history.
	full, err := h.GetTask(ctx, &a2a.TaskQueryParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if len(full.History) != 1 {
		t.Errorf("Expected full history without a limit, got %d messages", len(full.History))
	}
}

func TestCancelTaskTerminalIsNoop(t *testing.T) {
	exec := &mockExecutor{}
	h := New(testCard(true), taskstore.NewMemoryStore(), exec)
	ctx := context.Background()

	if _, err := h.SendTask(ctx, sendParams("task-1", "prompt")); err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	task, err := h.CancelTask(ctx, &a2a.TaskIdParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Errorf("Expected canceling a completed task to return completed, got %s", task.Status.State)
	}
	if exec.Cancellations() != 0 {
		t.Errorf("Expected no executor cancel for a terminal task, got %d", exec.Cancellations())
	}
}

func TestCancelTaskNotFound(t *testing.T) {
	h := New(testCard(true), taskstore.NewMemoryStore(), &mockExecutor{})

	_, err := h.CancelTask(context.Background(), &a2a.TaskIdParams{ID: "missing"})
	var rpcErr *a2a.JSONRPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected *JSONRPCError, got %v", err)
	}
	if rpcErr.Code != a2a.CodeTaskNotFound {
		t.Errorf("Expected code %d, got %d", a2a.CodeTaskNotFound, rpcErr.Code)
	}
}

func TestCancelPendingTask(t *testing.T) {
	store := taskstore.NewMemoryStore()
	exec := &mockExecutor{}
	h := New(testCard(true), store, exec)
	ctx := context.Background()

	// A task that was accepted but never started, as after a restart.
	msg := a2a.NewTextMessage("user", "prompt")
	if _, err := store.Create(ctx, "task-1", nil, &msg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	task, err := h.CancelTask(ctx, &a2a.TaskIdParams{ID: "task-1"})
	if err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	if task.Status.State != a2a.TaskStateCanceled {
		t.Errorf("Expected canceled state, got %s", task.Status.State)
	}
	if exec.Cancellations() != 1 {
		t.Errorf("Expected one executor cancel, got %d", exec.Cancellations())
	}
}

func TestSubscribeToTaskRequiresStreamingCapability(t *testing.T) {
	h := New(testCard(false), taskstore.NewMemoryStore(), &mockExecutor{})

	rec := httptest.NewRecorder()
	sink := jsonrpc2.NewStreamWriter(rec, 1)
	err := h.SubscribeToTask(context.Background(), sendParams("task-1", "prompt"), sink)

	var rpcErr *a2a.JSONRPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Expected *JSONRPCError, got %v", err)
	}
	if rpcErr.Code != a2a.CodeUnsupportedOperation {
		t.Errorf("Expected code %d, got %d", a2a.CodeUnsupportedOperation, rpcErr.Code)
	}
	if sink.Started() {
		t.Error("Expected nothing to be written before the capability gate")
	}
	// The gate fires before any task is created.
	if _, err := h.GetTask(context.Background(), &a2a.TaskQueryParams{ID: "task-1"}); err == nil {
		t.Error("Expected no task to exist after a refused subscribe")
	}
}

func TestSubscribeToTaskStreams(t *testing.T) {
	h := New(testCard(true), taskstore.NewMemoryStore(), &mockExecutor{})

	rec := httptest.NewRecorder()
	sink := jsonrpc2.NewStreamWriter(rec, 1)
	if err := h.SubscribeToTask(context.Background(), sendParams("task-1", "generate a red circle"), sink); err != nil {
		t.Fatalf("SubscribeToTask failed: %v", err)
	}

	events := decodeStream(t, rec)
	if len(events) < 3 {
		t.Fatalf("Expected at least working, artifact, final events, got %d", len(events))
	}

	first, ok := events[0].(*a2a.TaskStatusUpdateEvent)
	if !ok || first.Status.State != a2a.TaskStateWorking {
		t.Errorf("Expected first event to be a working status, got %v", events[0])
	}

	var sawArtifact bool
	for _, ev := range events {
		if _, ok := ev.(*a2a.TaskArtifactUpdateEvent); ok {
			sawArtifact = true
		}
	}
	if !sawArtifact {
		t.Error("Expected an artifact update in the stream")
	}

	last, ok := events[len(events)-1].(*a2a.TaskStatusUpdateEvent)
	if !ok || !last.Final || last.Status.State != a2a.TaskStateCompleted {
		t.Errorf("Expected a final completed status, got %v", events[len(events)-1])
	}
}

func TestSubscribeSelfFinalizingExecutorSingleFinal(t *testing.T) {
	exec := &mockExecutor{
		executeFn: func(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error {
			if err := queue.Enqueue(ctx, &a2a.TaskArtifactUpdateEvent{
				ID: rc.TaskID,
				Artifact: a2a.NewArtifact("image_"+rc.TaskID, []a2a.Part{
					a2a.NewFilePart("img_1", "image/png", "aW1n"),
				}),
			}); err != nil {
				return err
			}
			return queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
				ID:     rc.TaskID,
				Status: a2a.NewStatus(a2a.TaskStateCompleted, nil),
				Final:  true,
			})
		},
	}
	h := New(testCard(true), taskstore.NewMemoryStore(), exec)

	rec := httptest.NewRecorder()
	sink := jsonrpc2.NewStreamWriter(rec, 1)
	if err := h.SubscribeToTask(context.Background(), sendParams("task-1", "generate a red circle"), sink); err != nil {
		t.Fatalf("SubscribeToTask failed: %v", err)
	}

	events := decodeStream(t, rec)
	var finals int
	for _, ev := range events {
		if status, ok := ev.(*a2a.TaskStatusUpdateEvent); ok && status.Status.State.Terminal() {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("Expected exactly one terminal status in the stream, got %d", finals)
	}

	last, ok := events[len(events)-1].(*a2a.TaskStatusUpdateEvent)
	if !ok || !last.Final || last.Status.State != a2a.TaskStateCompleted {
		t.Errorf("Expected the stream to end with a final completed status, got %v", events[len(events)-1])
	}
}

func TestSubscribeToTerminalTaskReplays(t *testing.T) {
	exec := &mockExecutor{}
	h := New(testCard(true), taskstore.NewMemoryStore(), exec)
	ctx := context.Background()

	if _, err := h.SendTask(ctx, sendParams("task-1", "generate a red circle")); err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	rec := httptest.NewRecorder()
	sink := jsonrpc2.NewStreamWriter(rec, 2)
	if err := h.SubscribeToTask(ctx, sendParams("task-1", "generate a red circle"), sink); err != nil {
		t.Fatalf("SubscribeToTask failed: %v", err)
	}

	if exec.Executions() != 1 {
		t.Errorf("Expected replay not to re-invoke the executor, got %d executions", exec.Executions())
	}

	events := decodeStream(t, rec)
	if len(events) != 2 {
		t.Fatalf("Expected artifact replay plus final status, got %d events", len(events))
	}
	last, ok := events[len(events)-1].(*a2a.TaskStatusUpdateEvent)
	if !ok || !last.Final {
		t.Errorf("Expected the replay to end with a final status, got %v", events[len(events)-1])
	}
}

func TestSubscribeDeliversStoreAppliedEvents(t *testing.T) {
	h := New(testCard(true), taskstore.NewMemoryStore(), &mockExecutor{})

	ch, unsubscribe := h.Subscribe("task-1")
	defer unsubscribe()

	if _, err := h.SendTask(context.Background(), sendParams("task-1", "prompt")); err != nil {
		t.Fatalf("SendTask failed: %v", err)
	}

	var sawFinal bool
	for len(ch) > 0 {
		ev := <-ch
		if status, ok := ev.(*a2a.TaskStatusUpdateEvent); ok && status.Final {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("Expected subscribers to observe the final status update")
	}
}

// decodeStream parses the concatenated JSON-RPC responses a stream writer
// produced and returns the decoded result events in order.
func decodeStream(t *testing.T, rec *httptest.ResponseRecorder) []any {
	t.Helper()

	var events []any
	dec := json.NewDecoder(rec.Body)
	for {
		var raw struct {
			Result json.RawMessage `json:"result"`
			Error  *a2a.JSONRPCError
		}
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Failed to decode stream: %v", err)
		}
		if raw.Error != nil {
			t.Fatalf("Unexpected stream error: %v", raw.Error)
		}

		var shape struct {
			Status   *a2a.TaskStatus `json:"status"`
			Artifact *a2a.Artifact   `json:"artifact"`
		}
		if err := json.Unmarshal(raw.Result, &shape); err != nil {
			t.Fatalf("Failed to sniff stream result: %v", err)
		}
		switch {
		case shape.Status != nil:
			var ev a2a.TaskStatusUpdateEvent
			if err := json.Unmarshal(raw.Result, &ev); err != nil {
				t.Fatalf("Failed to decode status update: %v", err)
			}
			events = append(events, &ev)
		case shape.Artifact != nil:
			var ev a2a.TaskArtifactUpdateEvent
			if err := json.Unmarshal(raw.Result, &ev); err != nil {
				t.Fatalf("Failed to decode artifact update: %v", err)
			}
			events = append(events, &ev)
		default:
			t.Fatalf("Unrecognized stream result: %s", raw.Result)
		}
	}
	return events
}
