package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/executor"
	"github.com/davidbz/kiln/internal/manager"
	"github.com/davidbz/kiln/internal/observability"
)

// Handler handles HTTP requests.
type Handler struct {
	manager  *manager.Manager
	executor *executor.Executor
	registry domain.ProviderRegistry
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(
	mgr *manager.Manager,
	exec *executor.Executor,
	reg domain.ProviderRegistry,
) *Handler {
	return &Handler{
		manager:  mgr,
		executor: exec,
		registry: reg,
	}
}

// generateRequest is the JSON envelope accepted by the generation endpoints.
type generateRequest struct {
	Provider       string            `json:"provider"`
	Prompt         string            `json:"prompt"`
	Parameters     map[string]any    `json:"parameters,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	UseCache       bool              `json:"use_cache,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// responseBody augments ResponseData with a serializable error string.
type responseBody struct {
	*domain.ResponseData
	Error string `json:"error,omitempty"`
}

func newResponseBody(response *domain.ResponseData) responseBody {
	body := responseBody{ResponseData: response}
	if response != nil && response.Err != nil {
		body.Error = response.Err.Error()
	}
	return body
}

// statusBody is the JSON rendering of a request status.
type statusBody struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	Progress float64       `json:"progress,omitempty"`
	Response *responseBody `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func newStatusBody(id string, status domain.RequestStatus) statusBody {
	body := statusBody{
		ID:       id,
		Status:   status.Kind.String(),
		Progress: status.Progress,
	}
	if status.Response != nil {
		response := newResponseBody(status.Response)
		body.Response = &response
	}
	if status.Err != nil {
		body.Error = status.Err.Error()
	}
	return body
}

func (h *Handler) decodeRequest(r *http.Request) (domain.Request, domain.Provider, error) {
	var envelope generateRequest
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		return domain.Request{}, nil, fmt.Errorf("invalid request body: %w", err)
	}

	if envelope.Provider == "" {
		return domain.Request{}, nil, errors.New("provider not specified")
	}

	provider, err := h.registry.Get(r.Context(), envelope.Provider)
	if err != nil {
		return domain.Request{}, nil, err
	}

	req := domain.NewRequest(envelope.Prompt, envelope.Parameters)
	req.Timeout = time.Duration(envelope.TimeoutSeconds) * time.Second
	req.UseCache = envelope.UseCache
	req.Metadata = envelope.Metadata

	return req, provider, nil
}

// HandleGenerate executes a one-shot generation through the executor,
// bypassing manager tracking.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, provider, err := h.decodeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx = observability.WithProvider(ctx, provider.Name())
	logger := observability.FromContext(ctx)
	logger.Info("generate request received",
		zap.String("provider", provider.Name()),
		zap.Bool("use_cache", req.UseCache),
	)

	response, err := h.executor.Execute(ctx, req, provider)
	if err != nil {
		logger.Error("generate failed", zap.Error(err))
		writeError(w, err)
		return
	}

	logger.Info("generate succeeded", zap.Bool("from_cache", response.FromCache))
	writeJSON(w, http.StatusOK, newResponseBody(response))
}

// HandleSubmit tracks a request and starts executing it in the background.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, provider, err := h.decodeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := h.manager.Submit(req, provider)

	// Execution proceeds independently of the HTTP connection; progress is
	// observable through the status endpoints.
	go func() {
		_, _ = h.manager.Execute(context.Background(), id)
	}()

	observability.FromContext(ctx).Info("request submitted",
		zap.String("request_id", id),
		zap.String("provider", provider.Name()),
	)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": domain.StatusPending.String(),
	})
}

// HandleGet returns the tracked snapshot of a request.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	tracked, err := h.manager.Tracked(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tracked)
}

// HandleList returns tracked requests, optionally filtered by provider or
// restricted to in-progress ones.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var tracked []domain.TrackedRequest

	switch {
	case r.URL.Query().Get("in_progress") == "true":
		tracked = h.manager.InProgress()
	case r.URL.Query().Get("provider") != "":
		tracked = h.manager.ByProvider(r.URL.Query().Get("provider"))
	default:
		tracked = h.manager.All()
	}

	writeJSON(w, http.StatusOK, map[string]any{"requests": tracked})
}

// HandleStatus streams status transitions as server-sent events until the
// request reaches a terminal state.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logger := observability.FromContext(r.Context())

	stream, err := h.manager.StatusStream(id)
	if err != nil {
		writeError(w, err)
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

	for {
		select {
		case status, open := <-stream:
			if !open {
				logger.Info("status stream completed", zap.String("request_id", id))
				return
			}
			data, _ := json.Marshal(newStatusBody(id, status))
			fmt.Fprintf(w, "data: %s\n\n", string(data))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleCancel cancels a tracked request.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.manager.Status(id); err != nil {
		writeError(w, err)
		return
	}

	cancelled := h.manager.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"cancelled": cancelled,
	})
}

// HandleStats returns aggregate request statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Stats())
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	providers, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"providers": providers,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(context.Background()).Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRequestCancelled):
		status = http.StatusConflict
	default:
		switch domain.CodeOf(err) {
		case domain.CodeValidation, domain.CodeInvalidRequest:
			status = http.StatusBadRequest
		case domain.CodeRateLimited:
			status = http.StatusTooManyRequests
		case domain.CodeTimeout:
			status = http.StatusGatewayTimeout
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
