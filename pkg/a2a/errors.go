package a2a

import "fmt"

// JSON-RPC error codes used by the protocol surface. Codes in the -32000
// range are protocol-specific task errors.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeTaskNotFound         = -32001
	CodeTaskNotCancelable    = -32002
	CodePushNotifUnsupported = -32003
	CodeUnsupportedOperation = -32004
)

// JSONRPCError represents a standard JSON-RPC error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for JSONRPCError.
func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// NewParseError reports an unparsable request payload.
func NewParseError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeParseError, Message: "Invalid JSON payload", Data: data}
}

// NewInvalidRequestError reports a malformed JSON-RPC envelope.
func NewInvalidRequestError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidRequest, Message: "Request payload validation error", Data: data}
}

// NewMethodNotFoundError reports an unknown method.
func NewMethodNotFoundError(method string) *JSONRPCError {
	return &JSONRPCError{Code: CodeMethodNotFound, Message: "Method not found", Data: method}
}

// NewInvalidParamsError reports malformed or incomplete request parameters.
func NewInvalidParamsError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidParams, Message: "Invalid parameters", Data: data}
}

// NewInternalError reports a server-side failure.
func NewInternalError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeInternalError, Message: "Internal error", Data: data}
}

// NewTaskNotFoundError reports an unknown task ID.
func NewTaskNotFoundError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: CodeTaskNotFound, Message: "Task not found", Data: taskID}
}

// NewTaskNotCancelableError reports a cancellation attempt on a task that
// cannot be canceled.
func NewTaskNotCancelableError(taskID string) *JSONRPCError {
	return &JSONRPCError{Code: CodeTaskNotCancelable, Message: "Task cannot be canceled", Data: taskID}
}

// NewPushNotificationUnsupportedError reports that push notifications are
// not advertised by the agent card.
func NewPushNotificationUnsupportedError() *JSONRPCError {
	return &JSONRPCError{Code: CodePushNotifUnsupported, Message: "Push Notification is not supported"}
}

// NewUnsupportedOperationError reports a request that requires a capability
// the agent card does not advertise.
func NewUnsupportedOperationError(data any) *JSONRPCError {
	return &JSONRPCError{Code: CodeUnsupportedOperation, Message: "This operation is not supported", Data: data}
}

// ValidationError reports malformed or incomplete configuration or request
// content. It is reported immediately and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}
