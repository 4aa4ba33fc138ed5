package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/imagesmith/imagesmith/pkg/a2a"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a durable Store backed by SQLite. It satisfies the same
// contract as MemoryStore; tasks survive restarts, but tasks left in the
// working state by a crash are resurfaced as-is with no reconciliation.
type SQLiteStore struct {
	db    *sql.DB
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

const createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    context_id TEXT,
    status_json TEXT NOT NULL,
    artifacts_json TEXT NOT NULL,
    history_json TEXT NOT NULL,
    metadata_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

// OpenSQLiteStore opens (creating if needed) a SQLite-backed task store at
// the given path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// "database is locked" errors under concurrent updates.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTasksTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}

	return &SQLiteStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// lockFor returns the mutex serializing operations on one task ID.
func (s *SQLiteStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*a2a.Task, error) {
	return s.readTask(ctx, id)
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, id string, contextID *string, msg *a2a.Message) (*a2a.Task, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	now := time.Now().UTC()
	task := &a2a.Task{
		ID:        id,
		ContextID: contextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateSubmitted,
			Timestamp: &now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if msg != nil {
		task.History = []a2a.Message{*msg}
	}

	statusJSON, artifactsJSON, historyJSON, metadataJSON, err := marshalTask(task)
	if err != nil {
		return nil, err
	}

	var ctxID sql.NullString
	if contextID != nil {
		ctxID = sql.NullString{String: *contextID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO tasks (id, context_id, status_json, artifacts_json, history_json, metadata_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ctxID, statusJSON, artifactsJSON, historyJSON, metadataJSON, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrTaskExists, id)
		}
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return task, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, id string, mutate Mutation) (*a2a.Task, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	task, err := s.readTask(ctx, id)
	if err != nil {
		return nil, err
	}

	from := task.Status.State
	if err := mutate(task); err != nil {
		return nil, err
	}
	if !CanTransition(from, task.Status.State) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, task.Status.State)
	}
	task.UpdatedAt = time.Now().UTC()

	statusJSON, artifactsJSON, historyJSON, metadataJSON, err := marshalTask(task)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET status_json = ?, artifacts_json = ?, history_json = ?, metadata_json = ?, updated_at = ?
WHERE id = ?`,
		statusJSON, artifactsJSON, historyJSON, metadataJSON, task.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	// Drop the per-task mutex so the lock table does not grow with every
	// task the store has ever seen.
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) readTask(ctx context.Context, id string) (*a2a.Task, error) {
	var (
		ctxID                                            sql.NullString
		statusJSON, artifactsJSON, historyJSON, metaJSON string
		createdAt, updatedAt                             time.Time
	)
	err := s.db.QueryRowContext(ctx, `
SELECT context_id, status_json, artifacts_json, history_json, metadata_json, created_at, updated_at
FROM tasks WHERE id = ?`, id).Scan(&ctxID, &statusJSON, &artifactsJSON, &historyJSON, &metaJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	task := &a2a.Task{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt}
	if ctxID.Valid {
		task.ContextID = &ctxID.String
	}
	if err := json.Unmarshal([]byte(statusJSON), &task.Status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	if err := json.Unmarshal([]byte(artifactsJSON), &task.Artifacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
	}
	if err := json.Unmarshal([]byte(historyJSON), &task.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &task.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return task, nil
}

func marshalTask(t *a2a.Task) (status, artifacts, history, metadata string, err error) {
	statusBytes, err := json.Marshal(t.Status)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal status: %w", err)
	}
	artifactsBytes, err := json.Marshal(orEmptyArtifacts(t.Artifacts))
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal artifacts: %w", err)
	}
	historyBytes, err := json.Marshal(orEmptyMessages(t.History))
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal history: %w", err)
	}
	metadataBytes, err := json.Marshal(orEmptyMap(t.Metadata))
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(statusBytes), string(artifactsBytes), string(historyBytes), string(metadataBytes), nil
}

func orEmptyArtifacts(a []a2a.Artifact) []a2a.Artifact {
	if a == nil {
		return []a2a.Artifact{}
	}
	return a
}

func orEmptyMessages(m []a2a.Message) []a2a.Message {
	if m == nil {
		return []a2a.Message{}
	}
	return m
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Compile-time interface compliance checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
