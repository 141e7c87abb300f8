// Package manager owns the lifecycle of many concurrently in-flight
// generation requests: submission, deduplicated execution, cancellation,
// status observation, and bounded response retention.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/observability"
)

// statusStreamBuffer bounds each subscriber channel. A request makes at
// most a handful of transitions, so the buffer never fills for a
// subscriber that is merely slow.
const statusStreamBuffer = 8

// Config bounds the manager's response retention.
type Config struct {
	// MaxCachedResponses caps how many responses are retained; zero
	// disables the count bound.
	MaxCachedResponses int

	// MaxResponseAge evicts responses older than this; zero disables the
	// age bound.
	MaxResponseAge time.Duration
}

// DefaultConfig returns the retention bounds used when none are supplied.
func DefaultConfig() Config {
	return Config{
		MaxCachedResponses: 100,
		MaxResponseAge:     time.Hour,
	}
}

// trackedState is the manager-private bookkeeping for one request.
type trackedState struct {
	request     domain.Request
	provider    domain.Provider
	status      domain.RequestStatus
	result      *domain.ResponseData
	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
	cancel      context.CancelFunc
}

// inflightCall is the shared outcome for deduplicated Execute callers.
type inflightCall struct {
	done     chan struct{}
	response *domain.ResponseData
	err      error
}

// Manager coordinates request lifecycles. All maps are guarded by mu;
// provider invocations happen outside the lock so many requests can be in
// flight at once.
type Manager struct {
	mu     sync.Mutex
	config Config
	events domain.EventPublisher

	tracked   map[string]*trackedState
	responses map[string]*domain.ResponseData
	order     []string // response IDs, oldest first
	inflight  map[string]*inflightCall
	subs      map[string][]chan domain.RequestStatus
}

// NewManager creates a request manager. events may be nil.
func NewManager(config Config, events domain.EventPublisher) *Manager {
	return &Manager{
		config:    config,
		events:    events,
		tracked:   make(map[string]*trackedState),
		responses: make(map[string]*domain.ResponseData),
		inflight:  make(map[string]*inflightCall),
		subs:      make(map[string][]chan domain.RequestStatus),
	}
}

// Submit records a pending request without starting work. Submitting an
// already-tracked ID is a no-op.
func (m *Manager) Submit(req domain.Request, provider domain.Provider) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tracked[req.ID]; exists {
		return req.ID
	}

	m.tracked[req.ID] = &trackedState{
		request:     req,
		provider:    provider,
		status:      domain.Pending(),
		submittedAt: time.Now(),
	}
	m.publish("request_submitted", map[string]interface{}{
		"request_id": req.ID,
		"provider":   provider.Name(),
	})
	return req.ID
}

// Execute runs the submitted request. It is idempotent: a retained
// response is returned as-is, and a concurrent execution for the same ID
// is joined instead of duplicated, so at most one provider invocation is
// in flight per request ID. The provider is called directly; cache,
// rate-limit, and retry policy belong to the executor call path.
//
// Provider failures surface as a Failed status and a ResponseData
// carrying the error; the returned error is non-nil only for unknown IDs,
// cancellation, and caller context expiry.
func (m *Manager) Execute(ctx context.Context, id string) (*domain.ResponseData, error) {
	m.mu.Lock()
	state, ok := m.tracked[id]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrRequestNotFound
	}

	if response, ok := m.responses[id]; ok {
		m.mu.Unlock()
		return response, nil
	}

	if call, ok := m.inflight[id]; ok {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.response, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if state.status.Terminal() {
		defer m.mu.Unlock()
		if state.status.Kind == domain.StatusCancelled {
			return nil, domain.ErrRequestCancelled
		}
		return state.result, nil
	}

	// Become the owning execution.
	runCtx, cancelRun := context.WithCancel(context.Background())
	state.cancel = cancelRun
	cancelTimeout := context.CancelFunc(func() {})
	if state.request.Timeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(runCtx, state.request.Timeout)
	}

	call := &inflightCall{done: make(chan struct{})}
	m.inflight[id] = call
	state.startedAt = time.Now()
	m.transitionLocked(id, state, domain.Executing(0))
	m.mu.Unlock()

	m.run(runCtx, id, state, call)
	cancelTimeout()
	cancelRun()

	return call.response, call.err
}

// run performs the owning execution for one request. The provider call
// happens without the lock; cancellation is checked before invoking the
// provider and again before persisting the outcome, so a cancellation
// requested mid-flight can never be overwritten by a late success.
func (m *Manager) run(ctx context.Context, id string, state *trackedState, call *inflightCall) {
	m.mu.Lock()
	if state.status.Kind == domain.StatusCancelled {
		m.finishCallLocked(id, call, nil, domain.ErrRequestCancelled)
		m.mu.Unlock()
		return
	}
	provider := state.provider
	request := state.request
	m.mu.Unlock()

	logger := observability.FromContext(
		observability.WithProvider(observability.WithRequestID(ctx, id), provider.Name()))
	logger.Info("executing request")

	generation, genErr := provider.Generate(ctx, request.Prompt, request.Parameters)
	if genErr == nil && (generation == nil || generation.Content == nil) {
		genErr = domain.E(domain.CodeResponseFormat, "provider returned empty generation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if state.status.Kind == domain.StatusCancelled {
		// The request was cancelled while the provider was working; its
		// late result is discarded.
		m.finishCallLocked(id, call, nil, domain.ErrRequestCancelled)
		return
	}

	now := time.Now()
	state.finishedAt = now

	if genErr != nil {
		response := &domain.ResponseData{
			RequestID:  id,
			ProviderID: provider.Name(),
			Err:        genErr,
			ReceivedAt: now,
		}
		state.result = response
		m.transitionLocked(id, state, domain.Failed(genErr))
		logger.Warn("request failed", observability.Error(genErr))
		m.finishCallLocked(id, call, response, nil)
		return
	}

	response := &domain.ResponseData{
		RequestID:  id,
		ProviderID: provider.Name(),
		Content:    generation.Content,
		Usage:      generation.Usage,
		Metadata:   generation.Metadata,
		ReceivedAt: now,
	}
	state.result = response
	m.storeResponseLocked(id, response)
	m.transitionLocked(id, state, domain.Completed(response))
	logger.Info("request completed", observability.Duration("duration", now.Sub(state.startedAt)))
	m.finishCallLocked(id, call, response, nil)
}

// finishCallLocked publishes the shared outcome and evicts the in-flight
// marker.
func (m *Manager) finishCallLocked(id string, call *inflightCall, response *domain.ResponseData, err error) {
	call.response = response
	call.err = err
	delete(m.inflight, id)
	close(call.done)
}

// SubmitAndExecute composes Submit and Execute.
func (m *Manager) SubmitAndExecute(ctx context.Context, req domain.Request, provider domain.Provider) (*domain.ResponseData, error) {
	id := m.Submit(req, provider)
	return m.Execute(ctx, id)
}

// BatchResult pairs one batch item with its outcome.
type BatchResult struct {
	ID       string
	Response *domain.ResponseData
	Err      error
}

// ExecuteBatch executes the IDs sequentially, preserving input order. A
// failure on one ID never prevents the rest from being attempted.
func (m *Manager) ExecuteBatch(ctx context.Context, ids []string) []BatchResult {
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		response, err := m.Execute(ctx, id)
		results = append(results, BatchResult{ID: id, Response: response, Err: err})
	}
	return results
}

// Cancel transitions a non-terminal request to Cancelled and cancels its
// execution context. It returns false for unknown or already-terminal IDs.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelLocked(id)
}

// CancelAll cancels every non-terminal tracked request and returns how
// many were cancelled.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id := range m.tracked {
		if m.cancelLocked(id) {
			count++
		}
	}
	return count
}

func (m *Manager) cancelLocked(id string) bool {
	state, ok := m.tracked[id]
	if !ok || state.status.Terminal() {
		return false
	}

	if state.cancel != nil {
		state.cancel()
	}
	state.finishedAt = time.Now()
	m.transitionLocked(id, state, domain.Cancelled())
	return true
}

// StatusStream subscribes to a request's status transitions. The current
// status is delivered immediately, every subsequent transition follows in
// order, and the channel closes exactly once after a terminal status.
// Each subscriber gets its own channel.
func (m *Manager) StatusStream(id string) (<-chan domain.RequestStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.tracked[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}

	ch := make(chan domain.RequestStatus, statusStreamBuffer)
	ch <- state.status
	if state.status.Terminal() {
		close(ch)
		return ch, nil
	}

	m.subs[id] = append(m.subs[id], ch)
	return ch, nil
}

// UpdateProgress publishes an Executing progress update. It is a no-op
// unless the request is currently executing.
func (m *Manager) UpdateProgress(id string, progress float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.tracked[id]
	if !ok || state.status.Kind != domain.StatusExecuting {
		return false
	}
	m.transitionLocked(id, state, domain.Executing(progress))
	return true
}

// transitionLocked applies a status transition, fans it out to
// subscribers, and publishes a lifecycle event. Transitions out of a
// terminal state are refused.
func (m *Manager) transitionLocked(id string, state *trackedState, status domain.RequestStatus) {
	if state.status.Terminal() {
		return
	}
	state.status = status

	for _, ch := range m.subs[id] {
		if status.Terminal() {
			sendEvicting(ch, status)
			continue
		}
		select {
		case ch <- status:
		default:
			// Subscriber fell behind a bounded buffer; drop the
			// intermediate transition rather than stall the manager.
		}
	}
	if status.Terminal() {
		for _, ch := range m.subs[id] {
			close(ch)
		}
		delete(m.subs, id)
	}

	m.publish("request_"+status.Kind.String(), map[string]interface{}{
		"request_id": id,
	})
}

// sendEvicting delivers status to a possibly full subscriber channel by
// evicting its oldest buffered transition until the send succeeds. The
// manager is the only sender, so the loop terminates. Used for terminal
// statuses, which must never be dropped.
func sendEvicting(ch chan domain.RequestStatus, status domain.RequestStatus) {
	for {
		select {
		case ch <- status:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *Manager) publish(eventType string, data map[string]interface{}) {
	if m.events == nil {
		return
	}
	m.events.Publish(context.Background(), eventType, data)
}
