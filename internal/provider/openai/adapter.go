// Package openai provides an adapter for the OpenAI API using the official
// SDK. It implements the domain.Provider interface and handles conversion
// between domain types and SDK types, including structured output via the
// json_schema response format.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/observability"
	"github.com/brightpath/llmgate/internal/schema"
)

const providerName = "openai"

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client openai.Client
	name   string
}

// NewProvider creates a new OpenAI provider.
// Retries are handled by the gateway's retry policy, so SDK-level
// retries are disabled.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	return &Provider{
		client: openai.NewClient(opts...),
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
	logger.Debug("calling OpenAI API")

	params := p.toSDKParams(model, req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, p.wrapErr(err)
	}

	logger.Debug("OpenAI API call succeeded")

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
	logger.Debug("calling OpenAI streaming API")

	params := p.toSDKParams(model, req)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	chunks := make(chan domain.StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()
		defer logger.Debug("OpenAI stream completed")

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}

			delta := chunk.Choices[0].Delta.Content
			done := chunk.Choices[0].FinishReason != ""

			select {
			case chunks <- domain.StreamChunk{Delta: delta, Done: done, Error: nil}:
			case <-ctx.Done():
				return
			}

			if done {
				return
			}
		}

		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			select {
			case chunks <- domain.StreamChunk{Delta: "", Done: false, Error: p.wrapErr(err)}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// CompleteStructured requests a completion constrained to the schema via
// the json_schema response format and validates the returned payload.
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
	logger.Debug("calling OpenAI structured output API")

	params := p.toSDKParams(model, req)

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   s.Name,
		Schema: s.SchemaDef,
		Strict: openai.Bool(true),
	}
	if s.Description != "" {
		schemaParam.Description = openai.String(s.Description)
	}
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI structured call failed", zap.Error(err))
		return nil, p.wrapErr(err)
	}

	result := p.toResult(model, req, resp)

	payload := []byte(result.Content)
	if err := schema.Validate(payload, s); err != nil {
		return nil, err
	}

	result.Content = ""
	result.Structured = json.RawMessage(payload)
	return result, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// toSDKParams converts a domain request to SDK ChatCompletionNewParams.
func (p *Provider) toSDKParams(model domain.ModelDescriptor, req *domain.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleAssistant:
			messages[i] = openai.AssistantMessage(msg.Content)
		case domain.RoleSystem:
			messages[i] = openai.SystemMessage(msg.Content)
		default:
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model.ProviderModel),
		Messages: messages,
	}

	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	// Disable is a Gemini-ism; OpenAI models only know the three levels.
	if req.ReasoningEffort != "" && req.ReasoningEffort != domain.ReasoningDisable {
		params.ReasoningEffort = shared.ReasoningEffort(req.ReasoningEffort)
	}

	return params
}

// toResult converts an SDK response to a domain result. Missing usage
// blocks are backfilled with deterministic token estimates.
func (p *Provider) toResult(
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
	resp *openai.ChatCompletion,
) *domain.CompletionResult {
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := domain.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	if usage.TotalTokens == 0 {
		usage.InputTokens = domain.EstimateMessageTokens(req.Messages)
		usage.OutputTokens = domain.EstimateTokens(content)
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
		usage.Estimated = true
	}

	return &domain.CompletionResult{
		ID:         resp.ID,
		Model:      model.LogicalID,
		Provider:   p.name,
		Content:    content,
		Usage:      usage,
		FinishTime: time.Now(),
	}
}

// wrapErr converts SDK errors into classified provider errors.
func (p *Provider) wrapErr(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &domain.ProviderError{
			Provider:   p.name,
			StatusCode: apierr.StatusCode,
			Message:    apierr.Message,
			Err:        err,
		}
	}

	return &domain.ProviderError{
		Provider:   p.name,
		StatusCode: 0,
		Message:    fmt.Sprintf("request failed: %v", err),
		Err:        err,
	}
}
