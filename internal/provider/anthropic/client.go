package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brightpath/llmgate/internal/domain"
)

// Client wraps the HTTP client for Anthropic Messages API calls.
type Client struct {
	apiKey     string
	baseURL    string
	version    string
	httpClient *http.Client
}

// NewClient creates a new Anthropic HTTP client.
func NewClient(config Config) *Client {
	return &Client{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		version: config.Version,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}
}

// Anthropic Messages API request/response structures.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Thinking    *thinkingParam     `json:"thinking,omitempty"`
	Tools       []toolParam        `json:"tools,omitempty"`
	ToolChoice  *toolChoiceParam   `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingParam struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type toolParam struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolChoiceParam struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Response represents the response from the Messages API.
type Response struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamResult represents a single result from the streaming API.
type StreamResult struct {
	Delta string
	Done  bool
	Error error
}

// Complete sends a non-streaming messages request.
func (c *Client) Complete(ctx context.Context, req anthropicRequest) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is not configured")
	}

	resp, err := c.execute(ctx, req, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp Response
	if decodeErr := json.NewDecoder(resp.Body).Decode(&apiResp); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return &apiResp, nil
}

// Stream sends a streaming messages request.
func (c *Client) Stream(ctx context.Context, req anthropicRequest) (<-chan StreamResult, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is not configured")
	}

	req.Stream = true

	//nolint:bodyclose // Response body is closed in processStreamResponse goroutine
	resp, err := c.execute(ctx, req, "text/event-stream")
	if err != nil {
		return nil, err
	}

	results := make(chan StreamResult)
	go c.processStreamResponse(ctx, resp, results)

	return results, nil
}

// execute creates and sends the HTTP request, classifying non-200
// responses into provider errors the retry policy can act on.
func (c *Client) execute(ctx context.Context, req anthropicRequest, accept string) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/messages",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", c.version)
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.ProviderError{
			Provider: providerName,
			Message:  fmt.Sprintf("request failed: %v", err),
			Err:      err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &domain.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}

// processStreamResponse reads server-sent events off the response body.
// Every send is guarded by ctx so the reader exits, and the body is
// closed, even when the consumer stops receiving.
func (c *Client) processStreamResponse(ctx context.Context, resp *http.Response, results chan<- StreamResult) {
	defer close(results)
	defer resp.Body.Close()

	send := func(result StreamResult) bool {
		select {
		case results <- result:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &event); err != nil {
			send(StreamResult{Error: fmt.Errorf("failed to decode stream event: %w", err)})
			return
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				if !send(StreamResult{Delta: event.Delta.Text}) {
					return
				}
			}
		case "message_stop":
			send(StreamResult{Done: true})
			return
		case "error":
			send(StreamResult{Error: &domain.ProviderError{
				Provider: providerName,
				Message:  event.Error.Message,
			}})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		send(StreamResult{Error: fmt.Errorf("stream read failed: %w", err)})
	}
}
