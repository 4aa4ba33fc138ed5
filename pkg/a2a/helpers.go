package a2a

import (
	"time"

	"github.com/imagesmith/imagesmith/pkg/ptr"
)

// NewTextMessage builds a single-part text message from the given role.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:  role,
		Parts: []Part{{Type: PartTypeText, Text: &text}},
	}
}

// NewFilePart builds a file part carrying inline base64 bytes.
func NewFilePart(name, mimeType, b64 string) Part {
	return Part{
		Type: PartTypeFile,
		File: &FileContent{
			Name:     &name,
			MimeType: &mimeType,
			Bytes:    &b64,
		},
	}
}

// NewArtifact builds a named artifact from the given parts.
func NewArtifact(name string, parts []Part) Artifact {
	return Artifact{
		Name:      &name,
		Parts:     parts,
		LastChunk: ptr.Ptr(true),
	}
}

// NewStatus builds a task status stamped with the current time.
func NewStatus(state TaskState, msg *Message) TaskStatus {
	return TaskStatus{
		State:     state,
		Message:   msg,
		Timestamp: ptr.Ptr(time.Now().UTC()),
	}
}
