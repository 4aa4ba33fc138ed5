package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/imagesmith/imagesmith/pkg/a2a"
	"github.com/imagesmith/imagesmith/pkg/executor"
)

// mockExecutor is a scripted AgentExecutor for handler tests. By default it
// emits a working status and one image artifact, leaving the terminal
// transition to the handler.
type mockExecutor struct {
	mu       sync.Mutex
	executed int
	canceled int

	// executeFn overrides the default behavior when set.
	executeFn func(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error
}

func (m *mockExecutor) Executions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executed
}

func (m *mockExecutor) Cancellations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canceled
}

func (m *mockExecutor) Execute(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error {
	m.mu.Lock()
	m.executed++
	fn := m.executeFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, rc, queue)
	}

	working := a2a.NewTextMessage("agent", "Generating image...")
	if err := queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
		ID:     rc.TaskID,
		Status: a2a.NewStatus(a2a.TaskStateWorking, &working),
	}); err != nil {
		return err
	}

	b64 := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	artifact := a2a.NewArtifact(
		fmt.Sprintf("image_%s", rc.TaskID),
		[]a2a.Part{a2a.NewFilePart("img_1", "image/png", b64)},
	)
	return queue.Enqueue(ctx, &a2a.TaskArtifactUpdateEvent{ID: rc.TaskID, Artifact: artifact})
}

func (m *mockExecutor) Cancel(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error {
	m.mu.Lock()
	m.canceled++
	m.mu.Unlock()
	return nil
}

var _ executor.AgentExecutor = (*mockExecutor)(nil)

func testCard(streaming bool) *a2a.AgentCard {
	card, err := a2a.BuildCard(a2a.CardConfig{
		Name:        "Image Generator Agent",
		Version:     "test",
		Host:        "localhost",
		Port:        10011,
		InputModes:  []string{"text", "text/plain", "image/png"},
		OutputModes: []string{"text", "text/plain", "image/png"},
		Skills: []a2a.AgentSkill{{
			ID:   "image_generator",
			Name: "Image Generator",
		}},
		Streaming: streaming,
	})
	if err != nil {
		panic(err)
	}
	return card
}
