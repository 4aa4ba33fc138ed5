// Package agent implements the image generation executor: the component
// that performs the actual work for a task by calling the Gemini API.
package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/imagesmith/imagesmith/pkg/a2a"
	"github.com/imagesmith/imagesmith/pkg/executor"
)

// SupportedContentTypes are the content modes the image agent accepts and
// produces, advertised on the agent card.
var SupportedContentTypes = []string{"text", "text/plain", "image/png"}

// Machine-readable failure codes surfaced to callers.
const (
	CodeInvalidPrompt    = "invalid_prompt"
	CodeQuotaExceeded    = "quota_exceeded"
	CodeGenerationFailed = "generation_failed"
)

// Config configures the image agent.
type Config struct {
	// Model is the Gemini model used for generation.
	Model string
	// APIKey authenticates against the Gemini API.
	APIKey string
	// CacheBytes bounds the in-process image cache.
	CacheBytes int64
	// CacheTTL bounds how long generated images stay referencable.
	CacheTTL time.Duration
}

// DefaultConfig returns the default agent configuration (API key must still
// be supplied).
func DefaultConfig() Config {
	return Config{
		Model:      "gemini-2.0-flash-exp",
		CacheBytes: 256 << 20, // 256 MiB of image payloads
		CacheTTL:   time.Hour,
	}
}

// ImageAgent generates and edits images on demand. It implements
// executor.AgentExecutor; the request handler knows it only through that
// contract.
type ImageAgent struct {
	client *genai.Client
	model  *genai.GenerativeModel
	cache  *ImageCache
}

// New creates an ImageAgent talking to the Gemini API.
func New(ctx context.Context, cfg Config) (*ImageAgent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.CacheBytes <= 0 {
		cfg.CacheBytes = DefaultConfig().CacheBytes
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	cache, err := NewImageCache(cfg.CacheBytes, cfg.CacheTTL)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	return &ImageAgent{
		client: client,
		model:  client.GenerativeModel(cfg.Model),
		cache:  cache,
	}, nil
}

// Close releases the API client and the image cache.
func (a *ImageAgent) Close() error {
	a.cache.Close()
	return a.client.Close()
}

// GetImage returns a previously generated image from the context cache.
func (a *ImageAgent) GetImage(contextID, imageID string) (*ImageData, bool) {
	return a.cache.Get(contextID, imageID)
}

// Execute implements executor.AgentExecutor. It emits a working status,
// calls the model with the prompt (and any inbound images, for edits), and
// publishes the result as a single image artifact.
func (a *ImageAgent) Execute(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error {
	prompt := rc.UserInput()
	if strings.TrimSpace(prompt) == "" {
		return executor.NewExecutionError(CodeInvalidPrompt, "request contains no text prompt", nil)
	}

	working := a2a.NewTextMessage("agent", "Generating image...")
	if err := queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
		ID:     rc.TaskID,
		Status: a2a.NewStatus(a2a.TaskStateWorking, &working),
	}); err != nil {
		return err
	}

	parts, err := a.buildParts(prompt, rc)
	if err != nil {
		return err
	}

	slog.Info("invoking image model", "task", rc.TaskID, "context", rc.ContextID, "prompt_len", len(prompt))
	resp, err := a.model.GenerateContent(ctx, parts...)
	if err != nil {
		return mapModelError(err)
	}

	img, desc := extractImage(resp)
	if img == nil {
		return executor.NewExecutionError(CodeGenerationFailed, "model returned no image data", nil)
	}
	img.ID = fmt.Sprintf("img_%s", uuid.NewString())
	a.cache.Put(rc.ContextID, img)

	artifact := a2a.NewArtifact(
		fmt.Sprintf("image_%s", rc.TaskID),
		[]a2a.Part{a2a.NewFilePart(img.ID, img.MimeType, base64.StdEncoding.EncodeToString(img.Bytes))},
	)
	if desc != "" {
		artifact.Description = &desc
	}
	if err := queue.Enqueue(ctx, &a2a.TaskArtifactUpdateEvent{ID: rc.TaskID, Artifact: artifact}); err != nil {
		return err
	}

	return queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
		ID:     rc.TaskID,
		Status: a2a.NewStatus(a2a.TaskStateCompleted, nil),
		Final:  true,
	})
}

// Cancel implements executor.AgentExecutor. Generation is canceled through
// the execution context; here the cancellation is acknowledged by recording
// the canceled state.
func (a *ImageAgent) Cancel(ctx context.Context, rc *executor.RequestContext, queue executor.EventQueue) error {
	return queue.Enqueue(ctx, &a2a.TaskStatusUpdateEvent{
		ID:     rc.TaskID,
		Status: a2a.NewStatus(a2a.TaskStateCanceled, nil),
		Final:  true,
	})
}

// buildParts assembles the model input: the text prompt plus any inbound
// image parts (inline bytes or a reference to a cached image) for edit
// requests.
func (a *ImageAgent) buildParts(prompt string, rc *executor.RequestContext) ([]genai.Part, error) {
	parts := []genai.Part{genai.Text(prompt)}
	if rc.Message == nil {
		return parts, nil
	}

	for _, part := range rc.Message.Parts {
		if part.Type != a2a.PartTypeFile || part.File == nil {
			continue
		}
		switch {
		case part.File.Bytes != nil:
			data, err := base64.StdEncoding.DecodeString(*part.File.Bytes)
			if err != nil {
				return nil, executor.NewExecutionError(CodeInvalidPrompt, "inbound image is not valid base64", err)
			}
			mime := "image/png"
			if part.File.MimeType != nil {
				mime = *part.File.MimeType
			}
			parts = append(parts, genai.Blob{MIMEType: mime, Data: data})
		case part.File.Name != nil:
			// A bare name may reference an image generated earlier in this
			// context.
			if cached, ok := a.cache.Get(rc.ContextID, *part.File.Name); ok {
				parts = append(parts, genai.Blob{MIMEType: cached.MimeType, Data: cached.Bytes})
			}
		}
	}
	return parts, nil
}

// extractImage pulls the first inline image and any accompanying text out
// of the model response.
func extractImage(resp *genai.GenerateContentResponse) (*ImageData, string) {
	var (
		img  *ImageData
		desc strings.Builder
	)
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Blob:
				if img == nil && strings.HasPrefix(p.MIMEType, "image/") {
					img = &ImageData{MimeType: p.MIMEType, Bytes: p.Data}
				}
			case genai.Text:
				desc.WriteString(string(p))
			}
		}
	}
	return img, desc.String()
}

// mapModelError attaches machine-readable codes to Gemini API failures.
func mapModelError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 {
			return executor.NewExecutionError(CodeQuotaExceeded, "Gemini API quota exceeded", err)
		}
		return executor.NewExecutionError(CodeGenerationFailed, fmt.Sprintf("Gemini API error %d", apiErr.Code), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return executor.NewExecutionError(CodeGenerationFailed, "image generation failed", err)
}

// Compile-time interface compliance check.
var _ executor.AgentExecutor = (*ImageAgent)(nil)
