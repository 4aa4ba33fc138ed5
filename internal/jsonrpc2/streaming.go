package jsonrpc2

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/imagesmith/imagesmith/pkg/a2a"
)

// StreamWriter writes a sequence of JSON-RPC responses onto one chunked
// HTTP response body, one object per task update.
type StreamWriter struct {
	w       http.ResponseWriter
	id      any
	mu      sync.Mutex
	started bool
	closed  bool
}

// NewStreamWriter creates a StreamWriter for the given response ID. Nothing
// is written until the first update.
func NewStreamWriter(w http.ResponseWriter, id any) *StreamWriter {
	return &StreamWriter{w: w, id: id}
}

// Started reports whether anything has been written to the response yet.
func (sw *StreamWriter) Started() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.started
}

// WriteStatusUpdate sends a task status update to the client.
func (sw *StreamWriter) WriteStatusUpdate(update *a2a.TaskStatusUpdateEvent) error {
	return sw.write(update)
}

// WriteArtifactUpdate sends a task artifact update to the client.
func (sw *StreamWriter) WriteArtifactUpdate(update *a2a.TaskArtifactUpdateEvent) error {
	return sw.write(update)
}

// WriteError sends an error response and terminates the stream.
func (sw *StreamWriter) WriteError(rpcErr *a2a.JSONRPCError) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil
	}
	sw.closed = true
	sw.started = true

	return sw.encode(&a2a.JSONRPCResponse{JSONRPC: "2.0", ID: sw.id, Error: rpcErr})
}

// Close finalizes the stream; subsequent writes are dropped.
func (sw *StreamWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.closed = true
	return nil
}

func (sw *StreamWriter) write(result any) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return nil
	}
	if !sw.started {
		sw.w.Header().Set("Transfer-Encoding", "chunked")
		sw.started = true
	}

	return sw.encode(&a2a.JSONRPCResponse{JSONRPC: "2.0", ID: sw.id, Result: result})
}

func (sw *StreamWriter) encode(resp *a2a.JSONRPCResponse) error {
	err := json.NewEncoder(sw.w).Encode(resp)
	if err == nil {
		if flusher, ok := sw.w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
	return err
}
