package manager

import (
	"time"

	"github.com/davidbz/kiln/internal/domain"
)

// Status returns the current status of a tracked request.
func (m *Manager) Status(id string) (domain.RequestStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.tracked[id]
	if !ok {
		return domain.RequestStatus{}, domain.ErrRequestNotFound
	}
	return state.status, nil
}

// Response returns the retained response for a request, if any. Failed
// and cancelled requests never have a retained response.
func (m *Manager) Response(id string) (*domain.ResponseData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	response, ok := m.responses[id]
	return response, ok
}

// Tracked returns a snapshot of a request's bookkeeping.
func (m *Manager) Tracked(id string) (domain.TrackedRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.tracked[id]
	if !ok {
		return domain.TrackedRequest{}, domain.ErrRequestNotFound
	}
	return snapshot(state), nil
}

// ByProvider returns snapshots of every tracked request for the provider.
func (m *Manager) ByProvider(providerID string) []domain.TrackedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.TrackedRequest
	for _, state := range m.tracked {
		if state.provider.Name() == providerID {
			out = append(out, snapshot(state))
		}
	}
	return out
}

// All returns snapshots of every tracked request.
func (m *Manager) All() []domain.TrackedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.TrackedRequest, 0, len(m.tracked))
	for _, state := range m.tracked {
		out = append(out, snapshot(state))
	}
	return out
}

// InProgress returns snapshots of every request that has not reached a
// terminal status.
func (m *Manager) InProgress() []domain.TrackedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.TrackedRequest
	for _, state := range m.tracked {
		if !state.status.Terminal() {
			out = append(out, snapshot(state))
		}
	}
	return out
}

// Statistics aggregates lifecycle counts and outcomes.
type Statistics struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Executing int `json:"executing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	// AverageDuration is the mean start-to-finish time of completed
	// requests.
	AverageDuration time.Duration `json:"average_duration"`

	// SuccessRate is completed / (completed + failed); cancelled and
	// unfinished requests are excluded.
	SuccessRate float64 `json:"success_rate"`
}

// Stats computes aggregate statistics over all tracked requests.
func (m *Manager) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats Statistics
	var completedTotal time.Duration

	for _, state := range m.tracked {
		stats.Total++
		switch state.status.Kind {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusExecuting:
			stats.Executing++
		case domain.StatusCompleted:
			stats.Completed++
			completedTotal += state.finishedAt.Sub(state.startedAt)
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}

	if stats.Completed > 0 {
		stats.AverageDuration = completedTotal / time.Duration(stats.Completed)
	}
	if finished := stats.Completed + stats.Failed; finished > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(finished)
	}
	return stats
}

func snapshot(state *trackedState) domain.TrackedRequest {
	return domain.TrackedRequest{
		Request:     state.request,
		Status:      state.status,
		ProviderID:  state.provider.Name(),
		SubmittedAt: state.submittedAt,
		StartedAt:   state.startedAt,
		FinishedAt:  state.finishedAt,
	}
}
