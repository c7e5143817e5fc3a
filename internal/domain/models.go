package domain

import (
	"encoding/json"
	"time"
)

// Message roles recognized by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single turn in a conversation. Order within a
// request is significant and is preserved verbatim to the provider.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// ReasoningEffort controls the reasoning depth for models that support it.
type ReasoningEffort string

// Reasoning effort levels. Disable is only honored by providers whose
// models allow turning reasoning off entirely.
const (
	ReasoningDisable ReasoningEffort = "disable"
	ReasoningLow     ReasoningEffort = "low"
	ReasoningMedium  ReasoningEffort = "medium"
	ReasoningHigh    ReasoningEffort = "high"
)

// CompletionRequest represents a unified LLM request. It is caller-owned
// and never mutated by the gateway.
type CompletionRequest struct {
	Model           string            `json:"model"`
	Messages        []Message         `json:"messages"`
	SystemPrompt    string            `json:"system_prompt,omitempty"`
	Temperature     float64           `json:"temperature,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	Stream          bool              `json:"stream,omitempty"`
	ReasoningEffort ReasoningEffort   `json:"reasoning_effort,omitempty"`
	ResponseSchema  *Schema           `json:"response_schema,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Schema is a structured-output contract. SchemaDef is a JSON Schema
// object (type, properties, required) forwarded to the provider and used
// to validate the returned payload.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	SchemaDef   map[string]any `json:"schema"`
}

// CompletionResult represents a unified LLM response.
type CompletionResult struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"` // logical id the caller asked for
	Provider   string          `json:"provider"`
	Content    string          `json:"content"`
	Structured json.RawMessage `json:"structured,omitempty"`
	Usage      Usage           `json:"usage"`
	Latency    time.Duration   `json:"latency_ns"`
	FinishTime time.Time       `json:"finish_time"`
}

// StreamChunk represents a single streaming response chunk. The final
// chunk of a healthy stream has Done set; a terminated stream carries a
// non-nil Error on its last chunk instead.
type StreamChunk struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
	Error error  `json:"error,omitempty"`
}

// Usage tracks token consumption. Estimated marks counts derived from
// the deterministic token estimator rather than the provider response;
// estimated numbers are an approximation, not billed truth.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost,omitempty"`
	Estimated    bool    `json:"estimated,omitempty"`
}

// Capability identifies an optional model feature.
type Capability string

// Capabilities a model descriptor can advertise.
const (
	CapabilityStreaming        Capability = "streaming"
	CapabilityStructuredOutput Capability = "structured_output"
	CapabilityReasoning        Capability = "reasoning"
)

// ModelDescriptor maps a logical model id to its provider and capability
// set. Descriptors are immutable once the registry is populated.
type ModelDescriptor struct {
	LogicalID          string
	ProviderID         string
	ProviderModel      string // the provider's own model string
	SupportsStreaming  bool
	SupportsStructured bool
	SupportsReasoning  bool
	InputCostPer1K     float64 // USD per 1K input tokens
	OutputCostPer1K    float64 // USD per 1K output tokens
}

// Supports reports whether the descriptor advertises the capability.
func (d ModelDescriptor) Supports(c Capability) bool {
	switch c {
	case CapabilityStreaming:
		return d.SupportsStreaming
	case CapabilityStructuredOutput:
		return d.SupportsStructured
	case CapabilityReasoning:
		return d.SupportsReasoning
	default:
		return false
	}
}

// Decision is the outcome of a rate-limit check. ResetAt is only set
// when the request was denied and names the next local midnight.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// BatchItem holds the outcome of one request within a batch. Exactly one
// of Result and Err is set once the item has settled.
type BatchItem struct {
	Index   int                `json:"index"`
	Request *CompletionRequest `json:"-"`
	Result  *CompletionResult  `json:"result,omitempty"`
	Err     error              `json:"-"`
}
