package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/observability"
)

// Identity headers set by the upstream auth layer. The gateway treats
// the user id as opaque.
const (
	headerUserID      = "X-User-Id"
	headerWhitelisted = "X-User-Whitelisted"
)

// Handler handles HTTP requests.
type Handler struct {
	gateway *domain.Gateway
	batch   *domain.BatchScheduler
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(gateway *domain.Gateway, batch *domain.BatchScheduler) *Handler {
	return &Handler{
		gateway: gateway,
		batch:   batch,
	}
}

// HandleCompletion processes single completion requests, streaming or not.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, whitelisted, ok := h.identity(w, r)
	if !ok {
		return
	}
	ctx = observability.WithUserID(ctx, userID)

	var req domain.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx = observability.WithModel(ctx, req.Model)

	logger := observability.FromContext(ctx)
	logger.Info("completion request received",
		zap.String("model", req.Model),
		zap.Bool("stream", req.Stream),
		zap.Bool("structured", req.ResponseSchema != nil),
	)

	if req.Stream {
		h.handleStream(ctx, w, userID, whitelisted, &req)
		return
	}

	result, err := h.gateway.Complete(ctx, userID, whitelisted, &req)
	if err != nil {
		logger.Error("completion failed", zap.Error(err))
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(result); encodeErr != nil {
		logger.Error("failed to encode response", zap.Error(encodeErr))
		http.Error(w, fmt.Sprintf("failed to encode response: %v", encodeErr), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) handleStream(
	ctx context.Context,
	w http.ResponseWriter,
	userID string,
	whitelisted bool,
	req *domain.CompletionRequest,
) {
	logger := observability.FromContext(ctx)
	logger.Info("stream request started")

	chunks, err := h.gateway.Stream(ctx, userID, whitelisted, req)
	if err != nil {
		logger.Error("stream failed", zap.Error(err))
		h.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunk := range chunks {
		if chunk.Error != nil {
			logger.Error("stream chunk error", zap.Error(chunk.Error))
			// Terminate the visible stream with an explicit error marker.
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", chunk.Error.Error())
			flusher.Flush()
			return
		}

		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", string(data))
		flusher.Flush()

		if chunk.Done {
			logger.Info("stream completed")
			return
		}
	}
}

// batchRequest is the wire shape of a batch submission.
type batchRequest struct {
	Requests       []*domain.CompletionRequest `json:"requests"`
	MaxConcurrency int                         `json:"max_concurrency,omitempty"`
}

// batchItemResponse is the wire shape of one settled batch item.
type batchItemResponse struct {
	Index  int                      `json:"index"`
	Result *domain.CompletionResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// HandleBatch processes a batch of independent completion requests.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, whitelisted, ok := h.identity(w, r)
	if !ok {
		return
	}
	ctx = observability.WithUserID(ctx, userID)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Requests) == 0 {
		http.Error(w, "requests cannot be empty", http.StatusBadRequest)
		return
	}

	items := h.batch.Run(ctx, userID, whitelisted, req.Requests, req.MaxConcurrency)

	response := make([]batchItemResponse, len(items))
	for i, item := range items {
		response[i] = batchItemResponse{
			Index:  item.Index,
			Result: item.Result,
		}
		if item.Err != nil {
			response[i].Error = item.Err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"items": response}); err != nil {
		observability.FromContext(ctx).Error("failed to encode batch response", zap.Error(err))
	}
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		observability.FromContext(r.Context()).Error("failed to encode health response", zap.Error(err))
	}
}

// identity extracts the opaque caller identity the auth layer injected.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (string, bool, bool) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		http.Error(w, "user not identified", http.StatusUnauthorized)
		return "", false, false
	}

	whitelisted, _ := strconv.ParseBool(r.Header.Get(headerWhitelisted))
	return userID, whitelisted, true
}

// writeError maps gateway errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(rateErr.ResetAt).Seconds())))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":    "daily request limit exceeded",
			"reset_at": rateErr.ResetAt.Format(time.RFC3339),
		})
		return
	}

	var schemaErr *domain.SchemaValidationError
	switch {
	case errors.As(err, &schemaErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUnknownModel):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrProviderUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
