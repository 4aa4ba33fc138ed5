package a2a

// JSON-RPC 2.0 envelopes for the protocol methods. The method names follow
// the task-centric surface: tasks/send, tasks/get, tasks/cancel, and
// tasks/sendSubscribe for streaming delivery.

// JSONRPCRequest is the generic request envelope.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"` // "2.0"
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse is the generic response envelope.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc,omitempty"` // "2.0"
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// SendTaskRequest is a request to send a message and run a task to
// completion (tasks/send).
type SendTaskRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"` // "tasks/send"
	Params  TaskSendParams `json:"params"`
}

// SendTaskResponse carries the final task for a tasks/send request.
type SendTaskResponse struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      any           `json:"id"`
	Result  *Task         `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// SendTaskStreamingRequest is a request to send a message and subscribe to
// incremental updates (tasks/sendSubscribe).
type SendTaskStreamingRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"` // "tasks/sendSubscribe"
	Params  TaskSendParams `json:"params"`
}

// SendTaskStreamingResponse is one event of a streaming task. Result is
// either a *TaskStatusUpdateEvent or a *TaskArtifactUpdateEvent.
type SendTaskStreamingResponse struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// GetStatusUpdate returns the status update if the result contains one.
func (r *SendTaskStreamingResponse) GetStatusUpdate() *TaskStatusUpdateEvent {
	if u, ok := r.Result.(*TaskStatusUpdateEvent); ok {
		return u
	}
	return nil
}

// GetArtifactUpdate returns the artifact update if the result contains one.
func (r *SendTaskStreamingResponse) GetArtifactUpdate() *TaskArtifactUpdateEvent {
	if u, ok := r.Result.(*TaskArtifactUpdateEvent); ok {
		return u
	}
	return nil
}

// GetTaskRequest is a request to retrieve task details (tasks/get).
type GetTaskRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"` // "tasks/get"
	Params  TaskQueryParams `json:"params"`
}

// GetTaskResponse carries the stored task for a tasks/get request.
type GetTaskResponse struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      any           `json:"id"`
	Result  *Task         `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// CancelTaskRequest is a request to cancel a task (tasks/cancel).
type CancelTaskRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id,omitempty"`
	Method  string       `json:"method"` // "tasks/cancel"
	Params  TaskIdParams `json:"params"`
}

// CancelTaskResponse carries the task after a cancellation request.
type CancelTaskResponse struct {
	JSONRPC string        `json:"jsonrpc,omitempty"`
	ID      any           `json:"id"`
	Result  *Task         `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}
