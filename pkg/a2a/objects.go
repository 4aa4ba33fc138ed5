// Package a2a contains the protocol types exchanged between an image agent
// and its clients: the advertised agent card, tasks and their lifecycle
// states, messages, artifacts, and the JSON-RPC envelopes that carry them.
package a2a

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentCapabilities defines the optional protocol features an agent supports.
// A flag that is absent or false means the feature is unsupported and the
// server refuses requests that require it.
type AgentCapabilities struct {
	Streaming              bool `json:"streaming,omitempty"`
	PushNotifications      bool `json:"pushNotifications,omitempty"`
	StateTransitionHistory bool `json:"stateTransitionHistory,omitempty"`
}

// AgentCard provides metadata about an agent. A server advertises exactly
// one card per endpoint, served at the well-known discovery path.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        *string           `json:"description,omitempty"`
	URL                string            `json:"url"`
	Provider           *AgentProvider    `json:"provider,omitempty"`
	Version            string            `json:"version"`
	DocumentationURL   *string           `json:"documentationUrl,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill      `json:"skills"`
}

// AgentProvider identifies the organization behind the agent.
type AgentProvider struct {
	Organization string  `json:"organization"`
	URL          *string `json:"url,omitempty"`
}

// AgentSkill describes one advertised capability of the agent. The ID is
// stable and used by capability-aware clients for routing and filtering;
// Examples are documentation only.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateCanceled  TaskState = "canceled"
	TaskStateFailed    TaskState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed:
		return true
	}
	return false
}

// TaskStatus represents the current status of a task. Message carries the
// agent's status text, or the error detail for failed tasks.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Task is one unit of requested work and its tracked lifecycle. After
// creation it is owned by the task store; handlers hold only a transient
// reference during a single request cycle.
type Task struct {
	ID        string         `json:"id"`
	ContextID *string        `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Message represents a single message in a task conversation.
type Message struct {
	Role     string         `json:"role"` // "user" or "agent"
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text returns the concatenated text content of the message. For
// prompt-driven agents this is the user input.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartTypeText && p.Text != nil {
			out += *p.Text
		}
	}
	return out
}

// Part type discriminators.
const (
	PartTypeText = "text"
	PartTypeFile = "file"
	PartTypeData = "data"
)

// Part is a component of a message or artifact. It is a tagged union of
// text, file, and structured data parts.
type Part struct {
	Type     string         `json:"type"`
	Text     *string        `json:"text,omitempty"`
	File     *FileContent   `json:"file,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON validates that the part carries the content its type tag
// promises.
func (p *Part) UnmarshalJSON(data []byte) error {
	type partAlias Part
	var tmp struct {
		Type string `json:"type"`
		*partAlias
	}
	tmp.partAlias = (*partAlias)(p)

	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	switch tmp.Type {
	case PartTypeText:
		if tmp.Text == nil {
			return fmt.Errorf("text part missing 'text' field")
		}
	case PartTypeFile:
		if tmp.File == nil {
			return fmt.Errorf("file part missing 'file' field")
		}
		if err := tmp.File.Validate(); err != nil {
			return err
		}
	case PartTypeData:
		if tmp.Data == nil {
			return fmt.Errorf("data part missing 'data' field")
		}
	default:
		return fmt.Errorf("unknown part type: %q", tmp.Type)
	}

	// The outer Type field shadows the alias's during decoding.
	p.Type = tmp.Type
	return nil
}

// FileContent represents the content of a file, either inline as base64
// bytes or by URI.
type FileContent struct {
	Name     *string `json:"name,omitempty"`
	MimeType *string `json:"mimeType,omitempty"`
	Bytes    *string `json:"bytes,omitempty"`
	URI      *string `json:"uri,omitempty"`
}

// Validate ensures the file content carries either Bytes or URI, not both.
func (fc *FileContent) Validate() error {
	if (fc.Bytes == nil && fc.URI == nil) || (fc.Bytes != nil && fc.URI != nil) {
		return fmt.Errorf("file content must have either 'bytes' or 'uri', but not both")
	}
	return nil
}

// Artifact represents a piece of data produced by a task. Index, Append, and
// LastChunk support incremental delivery over streaming transports.
type Artifact struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Index       int            `json:"index,omitempty"`
	Append      *bool          `json:"append,omitempty"`
	LastChunk   *bool          `json:"lastChunk,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskSendParams provides parameters for sending a message to a task. An
// empty ID asks the server to mint one; a known ID continues or re-reads an
// existing task.
type TaskSendParams struct {
	ID            string         `json:"id"`
	SessionID     *string        `json:"sessionId,omitempty"`
	Message       Message        `json:"message"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskQueryParams provides parameters for querying a task.
type TaskQueryParams struct {
	ID            string         `json:"id"`
	HistoryLength *int           `json:"historyLength,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// TaskIdParams provides parameters containing just a task ID.
type TaskIdParams struct {
	ID       string         `json:"id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskStatusUpdateEvent signals a change in task status. Final marks the
// last event of a stream.
type TaskStatusUpdateEvent struct {
	ID       string         `json:"id"`
	Status   TaskStatus     `json:"status"`
	Final    bool           `json:"final,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskArtifactUpdateEvent signals a new or updated artifact.
type TaskArtifactUpdateEvent struct {
	ID       string         `json:"id"`
	Artifact Artifact       `json:"artifact"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
