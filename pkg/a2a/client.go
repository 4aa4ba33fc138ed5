package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ClientConfig holds configuration for the protocol client.
type ClientConfig struct {
	// Timeout for buffered requests. Streaming requests are bounded by the
	// caller's context instead.
	Timeout time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// BaseURL overrides the URL from the agent card.
	BaseURL string
	// Headers are added to every request.
	Headers map[string]string
}

// DefaultClientConfig returns a default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 10 * time.Minute,
		Headers: make(map[string]string),
	}
}

// Client talks to a remote agent over the JSON-RPC surface described by its
// agent card.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	agentCard  *AgentCard
	baseURL    string
}

// NewClient creates a client for the agent described by card. Clients must
// fetch and cache the card before issuing capability-gated requests; see
// FetchCard.
func NewClient(card *AgentCard, config *ClientConfig) (*Client, error) {
	if card == nil {
		return nil, fmt.Errorf("agent card cannot be nil")
	}
	if config == nil {
		config = DefaultClientConfig()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = card.URL
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		agentCard:  card,
		baseURL:    baseURL,
	}, nil
}

// Card returns the agent card the client was built from.
func (c *Client) Card() *AgentCard {
	return c.agentCard
}

// SendTask sends a message and waits for the final task (tasks/send).
func (c *Client) SendTask(ctx context.Context, params *TaskSendParams) (*Task, error) {
	request := &SendTaskRequest{
		JSONRPC: "2.0",
		ID:      newRequestID(),
		Method:  "tasks/send",
		Params:  *params,
	}

	var response SendTaskResponse
	if err := c.call(ctx, request, &response); err != nil {
		return nil, fmt.Errorf("failed to send task: %w", err)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	return response.Result, nil
}

// SendTaskStream sends a message and invokes handler for every update event
// until the stream ends (tasks/sendSubscribe). Fails if the agent card does
// not advertise streaming.
func (c *Client) SendTaskStream(ctx context.Context, params *TaskSendParams, handler func(*SendTaskStreamingResponse) error) error {
	if !c.agentCard.Capabilities.Streaming {
		return NewUnsupportedOperationError("streaming is not advertised by the agent card")
	}

	request := &SendTaskStreamingRequest{
		JSONRPC: "2.0",
		ID:      newRequestID(),
		Method:  "tasks/sendSubscribe",
		Params:  *params,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(body))
	}

	// The server writes one JSON-RPC response object per update on a
	// chunked body; decode them as they arrive.
	dec := json.NewDecoder(httpResp.Body)
	for {
		var raw struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      any             `json:"id"`
			Result  json.RawMessage `json:"result"`
			Error   *JSONRPCError   `json:"error"`
		}
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to decode stream event: %w", err)
		}

		event := &SendTaskStreamingResponse{JSONRPC: raw.JSONRPC, ID: raw.ID, Error: raw.Error}
		if raw.Error == nil && len(raw.Result) > 0 {
			event.Result, err = decodeStreamResult(raw.Result)
			if err != nil {
				return err
			}
		}
		if err := handler(event); err != nil {
			return fmt.Errorf("event handler error: %w", err)
		}
		if raw.Error != nil {
			return nil
		}
		if u := event.GetStatusUpdate(); u != nil && u.Final {
			return nil
		}
	}
}

// decodeStreamResult distinguishes status updates from artifact updates by
// the fields present.
func decodeStreamResult(raw json.RawMessage) (any, error) {
	var probe struct {
		Status   *TaskStatus `json:"status"`
		Artifact *Artifact   `json:"artifact"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("failed to probe stream event: %w", err)
	}
	if probe.Artifact != nil {
		var u TaskArtifactUpdateEvent
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("failed to decode artifact update: %w", err)
		}
		return &u, nil
	}
	var u TaskStatusUpdateEvent
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode status update: %w", err)
	}
	return &u, nil
}

// GetTask retrieves task details by ID (tasks/get).
func (c *Client) GetTask(ctx context.Context, params *TaskQueryParams) (*Task, error) {
	request := &GetTaskRequest{
		JSONRPC: "2.0",
		ID:      newRequestID(),
		Method:  "tasks/get",
		Params:  *params,
	}

	var response GetTaskResponse
	if err := c.call(ctx, request, &response); err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	return response.Result, nil
}

// CancelTask requests cooperative cancellation of a task (tasks/cancel).
func (c *Client) CancelTask(ctx context.Context, params *TaskIdParams) (*Task, error) {
	request := &CancelTaskRequest{
		JSONRPC: "2.0",
		ID:      newRequestID(),
		Method:  "tasks/cancel",
		Params:  *params,
	}

	var response CancelTaskResponse
	if err := c.call(ctx, request, &response); err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	return response.Result, nil
}

// call sends a JSON-RPC request and unmarshals the buffered response.
func (c *Client) call(ctx context.Context, request any, response any) error {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(body))
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(respBody, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func newRequestID() string {
	return uuid.NewString()
}

// FetchCard retrieves the agent card from the well-known discovery path
// under baseURL.
func FetchCard(ctx context.Context, baseURL string, httpClient *http.Client) (*AgentCard, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	fullURL, err := url.JoinPath(baseURL, WellKnownCardPath)
	if err != nil {
		return nil, fmt.Errorf("failed to construct card URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	return &card, nil
}
