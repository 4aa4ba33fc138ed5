// Package taskstore owns task records and enforces the legality of their
// state transitions. A store is constructed once at service start and
// injected wherever task state is read or mutated; it is the only shared
// mutable state in the task-handling subsystem.
package taskstore

import (
	"context"
	"errors"

	"github.com/imagesmith/imagesmith/pkg/a2a"
)

var (
	// ErrTaskNotFound reports an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskExists reports a creation attempt for an ID already present.
	// Callers wanting at-most-once creation must generate IDs
	// deterministically; creation is otherwise advisory.
	ErrTaskExists = errors.New("task already exists")
	// ErrInvalidTransition reports a state change that violates the task
	// state machine. It indicates a caller or executor bug and is surfaced,
	// never silently corrected.
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// Mutation mutates a task in place under the store's per-ID lock. Returning
// an error aborts the update without applying it.
type Mutation func(*a2a.Task) error

// Store persists task records and their state transitions.
//
// Concurrency contract: all operations on a given task ID are serialized
// relative to each other; operations on different IDs may proceed
// concurrently. No lock spans unrelated tasks.
type Store interface {
	// Get returns a snapshot of the task, or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*a2a.Task, error)

	// Create inserts a new task in the submitted state with the given
	// inbound message as its first history entry. Fails with ErrTaskExists
	// if the ID is already present.
	Create(ctx context.Context, id string, contextID *string, msg *a2a.Message) (*a2a.Task, error)

	// Update applies the mutation under the task's lock, validates the
	// resulting state transition, and advances the updated-at timestamp.
	// Fails with ErrTaskNotFound or ErrInvalidTransition.
	Update(ctx context.Context, id string, mutate Mutation) (*a2a.Task, error)

	// Delete removes a task, or returns ErrTaskNotFound.
	Delete(ctx context.Context, id string) error
}
