// Package registry maps logical model ids to descriptors and provider
// adapters. The table is populated once at process start and is
// read-only afterwards; there is no runtime registration of models.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/brightpath/llmgate/internal/domain"
)

// Role aliases recognized by convention: callers may ask for a model by
// role rather than by exact identifier.
const (
	AliasFast      = "fast"
	AliasReasoning = "reasoning"
)

// Config selects the logical ids the role aliases resolve to.
type Config struct {
	DefaultModelFast      string
	DefaultModelReasoning string
}

// Registry implements the domain.ModelRegistry interface.
type Registry struct {
	mu        sync.RWMutex
	models    map[string]domain.ModelDescriptor
	aliases   map[string]string
	providers map[string]domain.Provider
}

// New creates a registry populated with the fixed descriptor table.
func New(cfg Config) (*Registry, error) {
	r := &Registry{
		mu:        sync.RWMutex{},
		models:    make(map[string]domain.ModelDescriptor),
		aliases:   make(map[string]string),
		providers: make(map[string]domain.Provider),
	}

	for _, desc := range defaultDescriptors() {
		if desc.InputCostPer1K < 0 || desc.OutputCostPer1K < 0 {
			return nil, fmt.Errorf("model %s has negative cost", desc.LogicalID)
		}
		r.models[desc.LogicalID] = desc
	}

	for alias, target := range map[string]string{
		AliasFast:      cfg.DefaultModelFast,
		AliasReasoning: cfg.DefaultModelReasoning,
	} {
		if target == "" {
			continue
		}
		if _, ok := r.models[target]; !ok {
			return nil, fmt.Errorf("alias %s points at unknown model %s", alias, target)
		}
		r.aliases[alias] = target
	}

	return r, nil
}

// RegisterProvider adds a provider adapter. Called during startup wiring only.
func (r *Registry) RegisterProvider(provider domain.Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.providers[name] = provider
	return nil
}

// Resolve maps a logical id or role alias to its descriptor.
func (r *Registry) Resolve(logicalID string) (domain.ModelDescriptor, error) {
	if logicalID == "" {
		return domain.ModelDescriptor{}, fmt.Errorf("%w: empty model id", domain.ErrUnknownModel)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[logicalID]; ok {
		logicalID = target
	}

	desc, ok := r.models[logicalID]
	if !ok {
		return domain.ModelDescriptor{}, fmt.Errorf("%w: %s", domain.ErrUnknownModel, logicalID)
	}

	return desc, nil
}

// Supports reports whether the model advertises the capability. Unknown
// models support nothing.
func (r *Registry) Supports(logicalID string, c domain.Capability) bool {
	desc, err := r.Resolve(logicalID)
	if err != nil {
		return false
	}
	return desc.Supports(c)
}

// Provider returns the adapter registered under the given provider id.
func (r *Registry) Provider(providerID string) (domain.Provider, error) {
	if providerID == "" {
		return nil, errors.New("provider id cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[providerID]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", providerID)
	}

	return provider, nil
}

// Models returns the logical ids of every registered model.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	return ids
}

// defaultDescriptors is the fixed configuration table the registry is
// populated from. Pricing is USD per 1K tokens.
func defaultDescriptors() []domain.ModelDescriptor {
	return []domain.ModelDescriptor{
		{
			LogicalID:          "gpt-4o",
			ProviderID:         "openai",
			ProviderModel:      "gpt-4o",
			SupportsStreaming:  true,
			SupportsStructured: true,
			InputCostPer1K:     0.0025,
			OutputCostPer1K:    0.01,
		},
		{
			LogicalID:          "gpt-4o-mini",
			ProviderID:         "openai",
			ProviderModel:      "gpt-4o-mini",
			SupportsStreaming:  true,
			SupportsStructured: true,
			InputCostPer1K:     0.00015,
			OutputCostPer1K:    0.0006,
		},
		{
			LogicalID:          "o4-mini",
			ProviderID:         "openai",
			ProviderModel:      "o4-mini",
			SupportsStreaming:  true,
			SupportsStructured: true,
			SupportsReasoning:  true,
			InputCostPer1K:     0.0011,
			OutputCostPer1K:    0.0044,
		},
		{
			LogicalID:          "claude-haiku-3-5",
			ProviderID:         "anthropic",
			ProviderModel:      "claude-3-5-haiku-20241022",
			SupportsStreaming:  true,
			SupportsStructured: true,
			InputCostPer1K:     0.0008,
			OutputCostPer1K:    0.004,
		},
		{
			LogicalID:          "claude-sonnet-4",
			ProviderID:         "anthropic",
			ProviderModel:      "claude-sonnet-4-20250514",
			SupportsStreaming:  true,
			SupportsStructured: true,
			SupportsReasoning:  true,
			InputCostPer1K:     0.003,
			OutputCostPer1K:    0.015,
		},
		{
			LogicalID:         "echo-1",
			ProviderID:        "echo",
			ProviderModel:     "echo-1",
			SupportsStreaming: true,
			// Structured echo responses are synthesized from the schema.
			SupportsStructured: true,
			InputCostPer1K:     0,
			OutputCostPer1K:    0,
		},
	}
}
