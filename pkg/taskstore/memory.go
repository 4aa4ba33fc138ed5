package taskstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/imagesmith/imagesmith/pkg/a2a"
	"github.com/imagesmith/imagesmith/pkg/ptr"
)

// MemoryStore is the in-memory baseline Store. Entries are never evicted
// and nothing is persisted. A process crash mid-execution leaves tasks in
// the working state with no automatic reconciliation.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*memoryEntry
}

// memoryEntry pairs a task with its own mutex so updates to one ID never
// block updates to another.
type memoryEntry struct {
	mu   sync.Mutex
	task *a2a.Task
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*memoryEntry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*a2a.Task, error) {
	s.mu.RLock()
	entry, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return cloneTask(entry.task), nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, id string, contextID *string, msg *a2a.Message) (*a2a.Task, error) {
	now := time.Now().UTC()
	task := &a2a.Task{
		ID:        id,
		ContextID: contextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateSubmitted,
			Timestamp: ptr.Ptr(now),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if msg != nil {
		task.History = []a2a.Message{*msg}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, id)
	}
	s.tasks[id] = &memoryEntry{task: task}
	return cloneTask(task), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id string, mutate Mutation) (*a2a.Task, error) {
	s.mu.RLock()
	entry, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	from := entry.task.Status.State
	next := cloneTask(entry.task)
	if err := mutate(next); err != nil {
		return nil, err
	}
	if !CanTransition(from, next.Status.State) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next.Status.State)
	}

	next.UpdatedAt = time.Now().UTC()
	entry.task = next
	return cloneTask(next), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(s.tasks, id)
	return nil
}

// cloneTask copies a task deeply enough that callers cannot mutate stored
// state through a returned snapshot.
func cloneTask(t *a2a.Task) *a2a.Task {
	out := *t
	if t.Status.Message != nil {
		msg := *t.Status.Message
		out.Status.Message = &msg
	}
	if t.Status.Timestamp != nil {
		ts := *t.Status.Timestamp
		out.Status.Timestamp = &ts
	}
	if t.ContextID != nil {
		cid := *t.ContextID
		out.ContextID = &cid
	}
	if t.Artifacts != nil {
		out.Artifacts = make([]a2a.Artifact, len(t.Artifacts))
		for i := range t.Artifacts {
			out.Artifacts[i] = cloneArtifact(t.Artifacts[i])
		}
	}
	if t.History != nil {
		out.History = make([]a2a.Message, len(t.History))
		for i := range t.History {
			out.History[i] = cloneMessage(t.History[i])
		}
	}
	out.Metadata = cloneMap(t.Metadata)
	return &out
}

func cloneArtifact(a a2a.Artifact) a2a.Artifact {
	out := a
	out.Name = clonePtr(a.Name)
	out.Description = clonePtr(a.Description)
	out.Append = clonePtr(a.Append)
	out.LastChunk = clonePtr(a.LastChunk)
	out.Parts = cloneParts(a.Parts)
	out.Metadata = cloneMap(a.Metadata)
	return out
}

func cloneMessage(m a2a.Message) a2a.Message {
	out := m
	out.Parts = cloneParts(m.Parts)
	out.Metadata = cloneMap(m.Metadata)
	return out
}

func cloneParts(parts []a2a.Part) []a2a.Part {
	if parts == nil {
		return nil
	}
	out := make([]a2a.Part, len(parts))
	for i, p := range parts {
		cp := p
		cp.Text = clonePtr(p.Text)
		if p.File != nil {
			file := a2a.FileContent{
				Name:     clonePtr(p.File.Name),
				MimeType: clonePtr(p.File.MimeType),
				Bytes:    clonePtr(p.File.Bytes),
				URI:      clonePtr(p.File.URI),
			}
			cp.File = &file
		}
		cp.Data = cloneMap(p.Data)
		cp.Metadata = cloneMap(p.Metadata)
		out[i] = cp
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
