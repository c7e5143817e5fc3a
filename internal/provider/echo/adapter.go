// Package echo provides a testing provider that echoes back input messages.
// It implements the domain.Provider interface without making external API
// calls, providing deterministic responses for testing and development.
package echo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/observability"
	"github.com/brightpath/llmgate/internal/schema"
)

const (
	providerName = "echo"
	chunkDelay   = 10 * time.Millisecond
)

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	name string
}

// NewProvider creates a new echo provider.
// No configuration is required as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{
		name: providerName,
	}
}

// Complete sends a completion request and returns the echoed response.
func (p *Provider) Complete(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
) (*domain.CompletionResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	echoContent := buildEchoContent(req.Messages)

	inputTokens := domain.EstimateMessageTokens(req.Messages)
	outputTokens := domain.EstimateTokens(echoContent)

	return &domain.CompletionResult{
		ID:       fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Model:    model.LogicalID,
		Provider: p.name,
		Content:  echoContent,
		Usage: domain.Usage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
			Estimated:    true,
		},
		FinishTime: time.Now(),
	}, nil
}

// Stream sends a completion request and returns a stream of echo chunks.
func (p *Provider) Stream(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
) (<-chan domain.StreamChunk, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("streaming echo request")

	echoContent := buildEchoContent(req.Messages)

	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)

		words := strings.Fields(echoContent)
		if len(words) == 0 {
			select {
			case chunks <- domain.StreamChunk{Delta: "", Done: true, Error: nil}:
			case <-ctx.Done():
			}
			return
		}

		for i, word := range words {
			delta := word
			if i < len(words)-1 {
				delta += " "
			}

			select {
			case <-ctx.Done():
				return
			case chunks <- domain.StreamChunk{Delta: delta, Done: false, Error: nil}:
				time.Sleep(chunkDelay)
			}
		}

		select {
		case chunks <- domain.StreamChunk{Delta: "", Done: true, Error: nil}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}

// CompleteStructured synthesizes a payload from the schema definition:
// every declared property gets the zero value of its declared type. The
// result always validates, which makes structured flows testable
// without a live provider.
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

	payload := synthesizePayload(s.SchemaDef)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesized payload: %w", err)
	}

	if err := schema.Validate(data, s); err != nil {
		return nil, err
	}

	result, err := p.Complete(ctx, model, req)
	if err != nil {
		return nil, err
	}

	result.Content = ""
	result.Structured = data
	return result, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// buildEchoContent constructs the echo response from request messages.
func buildEchoContent(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("[%s]: %s\n", msg.Role, msg.Content))
	}
	return builder.String()
}

// synthesizePayload builds an object with zero values for every declared property.
func synthesizePayload(def map[string]any) map[string]any {
	payload := make(map[string]any)

	properties, ok := def["properties"].(map[string]any)
	if !ok {
		return payload
	}

	for name, raw := range properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			payload[name] = ""
			continue
		}

		switch prop["type"] {
		case "number", "integer":
			payload[name] = 0
		case "boolean":
			payload[name] = false
		case "array":
			payload[name] = []any{}
		case "object":
			payload[name] = map[string]any{}
		default:
			payload[name] = ""
		}
	}

	return payload
}
