// Package jsonrpc2 implements the JSON-RPC 2.0 plumbing for the agent's
// protocol surface: request parsing, batch handling, method dispatch, and
// the chunked writer used by streaming methods.
package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/imagesmith/imagesmith/pkg/a2a"
)

// Request is the parsed JSON-RPC envelope with params left raw for
// per-method decoding.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// TaskHandler is the protocol-facing contract of the request handler. The
// transport decodes params and dispatches; capability gating, task
// lifecycle, and executor invocation all live behind this interface.
type TaskHandler interface {
	SendTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error)
	GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error)
	CancelTask(ctx context.Context, params *a2a.TaskIdParams) (*a2a.Task, error)

	// SubscribeToTask runs the task and forwards each update through the
	// stream writer as it is produced.
	SubscribeToTask(ctx context.Context, params *a2a.TaskSendParams, sink *StreamWriter) error
}

// Server is a JSON-RPC 2.0 HTTP endpoint dispatching to a TaskHandler.
type Server struct {
	handler TaskHandler
}

// NewServer creates a JSON-RPC server around handler.
func NewServer(handler TaskHandler) *Server {
	return &Server{handler: handler}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var isBatch bool
	for _, c := range body {
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			continue
		}
		isBatch = c == '['
		break
	}

	w.Header().Set("Content-Type", "application/json")

	if isBatch {
		s.handleBatch(r.Context(), w, body)
	} else {
		s.handleSingle(r.Context(), w, body)
	}
}

func (s *Server) handleSingle(ctx context.Context, w http.ResponseWriter, body []byte) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, a2a.NewParseError(err.Error()))
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, a2a.NewInvalidRequestError("jsonrpc must be '2.0'"))
		return
	}

	resp := s.process(ctx, w, req)
	if resp != nil {
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "method", req.Method, "error", err)
		}
	}
}

func (s *Server) handleBatch(ctx context.Context, w http.ResponseWriter, body []byte) {
	var requests []Request
	if err := json.Unmarshal(body, &requests); err != nil {
		writeError(w, nil, a2a.NewParseError(err.Error()))
		return
	}
	if len(requests) == 0 {
		writeError(w, nil, a2a.NewInvalidRequestError("batch request cannot be empty"))
		return
	}

	responses := make([]json.RawMessage, 0, len(requests))
	for _, req := range requests {
		var resp *a2a.JSONRPCResponse
		if req.JSONRPC != "2.0" {
			resp = errorResponse(req.ID, a2a.NewInvalidRequestError("jsonrpc must be '2.0'"))
		} else if req.Method == "tasks/sendSubscribe" {
			// A streaming response cannot share the connection with the
			// batched response array.
			resp = errorResponse(req.ID, a2a.NewInvalidRequestError("streaming methods are not allowed in batch requests"))
		} else {
			resp = s.process(ctx, w, req)
		}
		if resp != nil {
			raw, _ := json.Marshal(resp)
			responses = append(responses, raw)
		}
	}

	if len(responses) > 0 {
		w.Write([]byte("["))
		for i, resp := range responses {
			if i > 0 {
				w.Write([]byte(","))
			}
			w.Write(resp)
		}
		w.Write([]byte("]"))
	}
}

// process dispatches one request. Streaming methods write to w directly and
// return nil; notifications (no ID) are processed without a response.
func (s *Server) process(ctx context.Context, w http.ResponseWriter, req Request) *a2a.JSONRPCResponse {
	if req.ID == nil {
		s.processNotification(ctx, req)
		return nil
	}

	var (
		result any
		err    error
	)

	switch req.Method {
	case "tasks/send":
		var params a2a.TaskSendParams
		if err = json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, a2a.NewInvalidParamsError(err.Error()))
		}
		result, err = s.handler.SendTask(ctx, &params)

	case "tasks/get":
		var params a2a.TaskQueryParams
		if err = json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, a2a.NewInvalidParamsError(err.Error()))
		}
		result, err = s.handler.GetTask(ctx, &params)

	case "tasks/cancel":
		var params a2a.TaskIdParams
		if err = json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, a2a.NewInvalidParamsError(err.Error()))
		}
		result, err = s.handler.CancelTask(ctx, &params)

	case "tasks/sendSubscribe":
		var params a2a.TaskSendParams
		if err = json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, a2a.NewInvalidParamsError(err.Error()))
		}
		sink := NewStreamWriter(w, req.ID)
		if err = s.handler.SubscribeToTask(ctx, &params, sink); err != nil {
			// The capability gate and validation fail before anything is
			// written; surface those as a regular error response.
			if !sink.Started() {
				return errorResponse(req.ID, toJSONRPCError(err))
			}
			slog.Error("subscription ended with error", "method", req.Method, "error", err)
			sink.WriteError(toJSONRPCError(err))
		}
		sink.Close()
		return nil

	case "tasks/pushNotification/set", "tasks/pushNotification/get":
		return errorResponse(req.ID, a2a.NewPushNotificationUnsupportedError())

	case "tasks/resubscribe":
		return errorResponse(req.ID, a2a.NewUnsupportedOperationError(req.Method))

	default:
		return errorResponse(req.ID, a2a.NewMethodNotFoundError(req.Method))
	}

	if err != nil {
		return errorResponse(req.ID, toJSONRPCError(err))
	}
	return &a2a.JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// processNotification handles requests without an ID; results and errors
// are logged, not returned.
func (s *Server) processNotification(ctx context.Context, req Request) {
	switch req.Method {
	case "tasks/send":
		var params a2a.TaskSendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.Warn("bad notification params", "method", req.Method, "error", err)
			return
		}
		if _, err := s.handler.SendTask(ctx, &params); err != nil {
			slog.Warn("notification failed", "method", req.Method, "error", err)
		}
	case "tasks/cancel":
		var params a2a.TaskIdParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.Warn("bad notification params", "method", req.Method, "error", err)
			return
		}
		if _, err := s.handler.CancelTask(ctx, &params); err != nil {
			slog.Warn("notification failed", "method", req.Method, "error", err)
		}
	default:
		slog.Debug("ignoring notification", "method", req.Method)
	}
}

// toJSONRPCError maps handler errors onto protocol error objects.
func toJSONRPCError(err error) *a2a.JSONRPCError {
	var rpcErr *a2a.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	var valErr *a2a.ValidationError
	if errors.As(err, &valErr) {
		return a2a.NewInvalidParamsError(valErr.Error())
	}
	return a2a.NewInternalError(err.Error())
}

func errorResponse(id any, rpcErr *a2a.JSONRPCError) *a2a.JSONRPCResponse {
	return &a2a.JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

func writeError(w http.ResponseWriter, id any, rpcErr *a2a.JSONRPCError) {
	// JSON-RPC errors still travel on 200 OK.
	if err := json.NewEncoder(w).Encode(errorResponse(id, rpcErr)); err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}
