package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/registry"
)

type stubProvider struct {
	name string
}

func (p *stubProvider) Complete(
	_ context.Context,
	model domain.ModelDescriptor,
	_ *domain.CompletionRequest,
) (*domain.CompletionResult, error) {
	return &domain.CompletionResult{Model: model.LogicalID, Provider: p.name}, nil
}

func (p *stubProvider) CompleteStructured(
	ctx context.Context,
	model domain.ModelDescriptor,
	req *domain.CompletionRequest,
	_ *domain.Schema,
) (*domain.CompletionResult, error) {
	return p.Complete(ctx, model, req)
}

func (p *stubProvider) Stream(
	_ context.Context,
	_ domain.ModelDescriptor,
	_ *domain.CompletionRequest,
) (<-chan domain.StreamChunk, error) {
	chunks := make(chan domain.StreamChunk)
	close(chunks)
	return chunks, nil
}

func (p *stubProvider) Name() string { return p.name }

func defaultConfig() registry.Config {
	return registry.Config{
		DefaultModelFast:      "gpt-4o-mini",
		DefaultModelReasoning: "o4-mini",
	}
}

func TestNew(t *testing.T) {
	t.Run("should build registry with default aliases", func(t *testing.T) {
		r, err := registry.New(defaultConfig())

		require.NoError(t, err)
		require.NotNil(t, r)
	})

	t.Run("should reject alias pointing at unknown model", func(t *testing.T) {
		_, err := registry.New(registry.Config{
			DefaultModelFast:      "no-such-model",
			DefaultModelReasoning: "",
		})

		require.Error(t, err)
		require.Contains(t, err.Error(), "no-such-model")
	})

	t.Run("should tolerate empty alias targets", func(t *testing.T) {
		r, err := registry.New(registry.Config{DefaultModelFast: "", DefaultModelReasoning: ""})
		require.NoError(t, err)

		_, err = r.Resolve(registry.AliasFast)
		require.ErrorIs(t, err, domain.ErrUnknownModel)
	})
}

func TestRegistry_Resolve(t *testing.T) {
	r, err := registry.New(defaultConfig())
	require.NoError(t, err)

	t.Run("should resolve logical id to full descriptor", func(t *testing.T) {
		desc, err := r.Resolve("claude-haiku-3-5")

		require.NoError(t, err)
		require.Equal(t, "anthropic", desc.ProviderID)
		require.Equal(t, "claude-3-5-haiku-20241022", desc.ProviderModel)
		require.True(t, desc.SupportsStreaming)
	})

	t.Run("should resolve role aliases", func(t *testing.T) {
		fast, err := r.Resolve(registry.AliasFast)
		require.NoError(t, err)
		require.Equal(t, "gpt-4o-mini", fast.LogicalID)

		reasoning, err := r.Resolve(registry.AliasReasoning)
		require.NoError(t, err)
		require.Equal(t, "o4-mini", reasoning.LogicalID)
		require.True(t, reasoning.SupportsReasoning)
	})

	t.Run("should be deterministic across calls", func(t *testing.T) {
		first, err := r.Resolve("gpt-4o")
		require.NoError(t, err)

		second, err := r.Resolve("gpt-4o")
		require.NoError(t, err)
		require.Equal(t, first, second)
	})

	t.Run("should reject unknown model", func(t *testing.T) {
		_, err := r.Resolve("gpt-99")
		require.ErrorIs(t, err, domain.ErrUnknownModel)
	})

	t.Run("should reject empty model id", func(t *testing.T) {
		_, err := r.Resolve("")
		require.ErrorIs(t, err, domain.ErrUnknownModel)
	})
}

func TestRegistry_Supports(t *testing.T) {
	r, err := registry.New(defaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name       string
		model      string
		capability domain.Capability
		want       bool
	}{
		{name: "streaming on gpt-4o", model: "gpt-4o", capability: domain.CapabilityStreaming, want: true},
		{name: "reasoning on o4-mini", model: "o4-mini", capability: domain.CapabilityReasoning, want: true},
		{name: "reasoning on gpt-4o-mini", model: "gpt-4o-mini", capability: domain.CapabilityReasoning, want: false},
		{name: "structured via fast alias", model: registry.AliasFast, capability: domain.CapabilityStructuredOutput, want: true},
		{name: "unknown model", model: "gpt-99", capability: domain.CapabilityStreaming, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, r.Supports(tt.model, tt.capability))
		})
	}
}

func TestRegistry_Providers(t *testing.T) {
	t.Run("should register and return provider", func(t *testing.T) {
		r, err := registry.New(defaultConfig())
		require.NoError(t, err)

		stub := &stubProvider{name: "openai"}
		require.NoError(t, r.RegisterProvider(stub))

		provider, err := r.Provider("openai")
		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
	})

	t.Run("should reject duplicate registration", func(t *testing.T) {
		r, err := registry.New(defaultConfig())
		require.NoError(t, err)

		require.NoError(t, r.RegisterProvider(&stubProvider{name: "openai"}))
		err = r.RegisterProvider(&stubProvider{name: "openai"})
		require.Error(t, err)
	})

	t.Run("should reject nil provider", func(t *testing.T) {
		r, err := registry.New(defaultConfig())
		require.NoError(t, err)

		require.Error(t, r.RegisterProvider(nil))
	})

	t.Run("should fail lookup for unregistered provider", func(t *testing.T) {
		r, err := registry.New(defaultConfig())
		require.NoError(t, err)

		_, err = r.Provider("anthropic")
		require.Error(t, err)
	})
}

func TestRegistry_Models(t *testing.T) {
	r, err := registry.New(defaultConfig())
	require.NoError(t, err)

	models := r.Models()
	require.Contains(t, models, "gpt-4o")
	require.Contains(t, models, "claude-sonnet-4")
	require.Contains(t, models, "echo-1")
}
