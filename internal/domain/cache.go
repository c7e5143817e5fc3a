package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/observability"
)

// ErrCacheMiss indicates no cached entry was found.
var ErrCacheMiss = errors.New("cache miss")

// ResponseCache stores completion results keyed by request content so a
// repeated identical request can be answered without a provider call.
type ResponseCache interface {
	// Get retrieves the cached result for an identical earlier request,
	// or ErrCacheMiss when none is stored.
	Get(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Set stores the result produced for the request.
	Set(ctx context.Context, req *CompletionRequest, result *CompletionResult) error
}

// CacheStore is the byte-level backend a ResponseCacheService writes
// through. Get returns ErrCacheMiss for absent or expired keys.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// ResponseCacheService implements exact-match response caching: the key
// is a hash over every request field that can change the provider's
// answer, so two requests collide only when a provider call for one
// would be interchangeable with a call for the other.
type ResponseCacheService struct {
	store CacheStore
	ttl   time.Duration
}

// NewResponseCacheService creates a response cache backed by store.
// Entries expire after ttl.
func NewResponseCacheService(store CacheStore, ttl time.Duration) *ResponseCacheService {
	return &ResponseCacheService{
		store: store,
		ttl:   ttl,
	}
}

// Get retrieves the cached result for an identical earlier request.
func (s *ResponseCacheService) Get(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	key, err := s.cacheKey(req)
	if err != nil {
		return nil, err
	}

	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var result CompletionResult
	if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", unmarshalErr)
	}

	observability.FromContext(ctx).Debug("response cache hit",
		zap.String("cache_key", key))
	return &result, nil
}

// Set stores the result produced for the request.
func (s *ResponseCacheService) Set(ctx context.Context, req *CompletionRequest, result *CompletionResult) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}
	if result == nil {
		return errors.New("result cannot be nil")
	}

	key, err := s.cacheKey(req)
	if err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if setErr := s.store.Set(ctx, key, data, s.ttl); setErr != nil {
		return fmt.Errorf("failed to store cached result: %w", setErr)
	}

	observability.FromContext(ctx).Debug("response cached",
		zap.String("cache_key", key),
		zap.Int("data_size", len(data)))
	return nil
}

// cacheKeyData pins the set of fields hashed into the cache key.
// Messages are the prepared sequence, system prompt already folded in.
type cacheKeyData struct {
	Model           string    `json:"model"`
	Messages        []Message `json:"messages"`
	Temperature     float64   `json:"temperature"`
	MaxTokens       int       `json:"max_tokens"`
	ResponseSchema  string    `json:"response_schema"`
	ReasoningEffort string    `json:"reasoning_effort"`
}

func (s *ResponseCacheService) cacheKey(req *CompletionRequest) (string, error) {
	keyData := cacheKeyData{
		Model:           req.Model,
		Messages:        req.Messages,
		Temperature:     req.Temperature,
		MaxTokens:       req.MaxTokens,
		ResponseSchema:  "",
		ReasoningEffort: string(req.ReasoningEffort),
	}
	if req.ResponseSchema != nil {
		keyData.ResponseSchema = req.ResponseSchema.Name
	}

	encoded, err := json.Marshal(keyData)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}

	hash := sha256.Sum256(encoded)
	return fmt.Sprintf("llmgate:cache:%s", hex.EncodeToString(hash[:])), nil
}
