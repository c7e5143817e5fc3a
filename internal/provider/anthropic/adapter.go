// Package anthropic provides an adapter for the Anthropic Messages API.
// It implements the domain.Provider interface over a hand-rolled HTTP
// client; structured output uses forced tool selection with the contract
// schema as the tool's input schema.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/observability"
	"github.com/brightpath/llmgate/internal/schema"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 4096
)

// Thinking budgets per reasoning effort level.
const (
	lowThinkingBudget    = 1024
	mediumThinkingBudget = 4096
	highThinkingBudget   = 16384
)

// Provider implements the domain.Provider interface for Anthropic.
type Provider struct {
	client *Client
	name   string
}

// NewProvider creates a new Anthropic provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	return &Provider{
		client: NewClient(config),
		name:   providerName,
	}, nil
}

// Complete sends a completion request and returns the full response.
func (p *Provider) Complete(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
) (*domain.CompletionResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic API")

	resp, err := p.client.Complete(ctx, p.toAPIRequest(model, req))
	if err != nil {
		logger.Error("Anthropic API call failed", zap.Error(err))
		return nil, err
	}

	return p.toResult(model, req, resp), nil
}

// Stream sends a completion request and returns a stream of chunks.
func (p *Provider) Stream(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic streaming API")

	results, err := p.client.Stream(ctx, p.toAPIRequest(model, req))
	if err != nil {
		logger.Error("Anthropic stream failed to start", zap.Error(err))
		return nil, err
	}

	chunks := make(chan domain.StreamChunk)
	go func() {
		defer close(chunks)
		for result := range results {
			select {
			case chunks <- domain.StreamChunk{Delta: result.Delta, Done: result.Done, Error: result.Error}:
			case <-ctx.Done():
				return
			}
			if result.Done || result.Error != nil {
				return
			}
		}
	}()

	return chunks, nil
}

// CompleteStructured forces a tool call whose input schema is the
// contract schema and validates the tool input the model produced.
func (p *Provider) CompleteStructured(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
	s *domain.Schema,
) (*domain.CompletionResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if s == nil {
		return nil, errors.New("schema cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic structured output API")

	apiReq := p.toAPIRequest(model, req)
	apiReq.Tools = []toolParam{{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: s.SchemaDef,
	}}
	apiReq.ToolChoice = &toolChoiceParam{Type: "tool", Name: s.Name}

	resp, err := p.client.Complete(ctx, apiReq)
	if err != nil {
		logger.Error("Anthropic structured call failed", zap.Error(err))
		return nil, err
	}

	var payload json.RawMessage
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == s.Name {
			payload = block.Input
			break
		}
	}
	if payload == nil {
		return nil, &domain.SchemaValidationError{
			Schema: s.Name,
			Reason: "response contains no tool_use block",
		}
	}

	if err := schema.Validate(payload, s); err != nil {
		return nil, err
	}

	result := p.toResult(model, req, resp)
	result.Content = ""
	result.Structured = payload
	return result, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// toAPIRequest converts a domain request to the Messages API shape.
// System messages move to the top-level system field since the Messages
// API only accepts user and assistant turns.
func (p *Provider) toAPIRequest(model domain.ModelDescriptor, req *domain.CompletionRequest) anthropicRequest {
	var system []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	apiReq := anthropicRequest{
		Model:     model.ProviderModel,
		MaxTokens: req.MaxTokens,
		Messages:  messages,
	}
	if apiReq.MaxTokens <= 0 {
		apiReq.MaxTokens = defaultMaxTokens
	}
	if len(system) > 0 {
		apiReq.System = joinSystem(system)
	}

	if budget := thinkingBudget(req.ReasoningEffort); budget > 0 {
		apiReq.Thinking = &thinkingParam{Type: "enabled", BudgetTokens: budget}
	} else if req.Temperature > 0 {
		// Temperature cannot be combined with extended thinking.
		temp := req.Temperature
		apiReq.Temperature = &temp
	}

	return apiReq
}

func thinkingBudget(effort domain.ReasoningEffort) int {
	switch effort {
	case domain.ReasoningLow:
		return lowThinkingBudget
	case domain.ReasoningMedium:
		return mediumThinkingBudget
	case domain.ReasoningHigh:
		return highThinkingBudget
	default:
		return 0
	}
}

func joinSystem(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	out := parts[0]
	for _, part := range parts[1:] {
		out += "\n\n" + part
	}
	return out
}

// toResult converts an API response to a domain result.
func (p *Provider) toResult(
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
	resp *Response,
) *domain.CompletionResult {
	content := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	usage := domain.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	if usage.TotalTokens == 0 {
		usage.InputTokens = domain.EstimateMessageTokens(req.Messages)
		usage.OutputTokens = domain.EstimateTokens(content)
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		usage.Estimated = true
	}

	id := resp.ID
	if id == "" {
		id = fmt.Sprintf("msg-%d", time.Now().UnixNano())
	}

	return &domain.CompletionResult{
		ID:         id,
		Model:      model.LogicalID,
		Provider:   p.name,
		Content:    content,
		Usage:      usage,
		FinishTime: time.Now(),
	}
}
