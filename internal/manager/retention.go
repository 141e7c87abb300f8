package manager

import (
	"time"

	"github.com/davidbz/kiln/internal/domain"
)

// storeResponseLocked retains a response and runs a cleanup pass when the
// store exceeds its count bound.
func (m *Manager) storeResponseLocked(id string, response *domain.ResponseData) {
	m.responses[id] = response
	m.order = append(m.order, id)

	if m.config.MaxCachedResponses > 0 && len(m.responses) > m.config.MaxCachedResponses {
		m.cleanupLocked(time.Now())
	}
}

// Cleanup removes responses older than the age bound, then the oldest
// remaining responses until the count bound holds. It can be called
// explicitly; storing a response over the count limit triggers it
// automatically.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked(time.Now())
}

func (m *Manager) cleanupLocked(now time.Time) {
	// Age bound first.
	if m.config.MaxResponseAge > 0 {
		cutoff := now.Add(-m.config.MaxResponseAge)
		for id, response := range m.responses {
			if response.ReceivedAt.Before(cutoff) {
				delete(m.responses, id)
			}
		}
	}

	// The order slice may hold IDs already evicted; compact before
	// applying the count bound.
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.responses[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept

	// Then the count bound, oldest first.
	if m.config.MaxCachedResponses > 0 {
		for len(m.responses) > m.config.MaxCachedResponses && len(m.order) > 0 {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.responses, oldest)
		}
	}
}

// ClearResponses drops every retained response. Tracking bookkeeping is
// untouched.
func (m *Manager) ClearResponses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string]*domain.ResponseData)
	m.order = nil
}

// RemoveTracking removes a request's bookkeeping and closes any open
// status streams for it. In-flight requests cannot be removed; cancel
// them first. Retained responses are evicted separately.
func (m *Manager) RemoveTracking(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, inflight := m.inflight[id]; inflight {
		return false
	}
	if _, ok := m.tracked[id]; !ok {
		return false
	}

	delete(m.tracked, id)
	for _, ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)

	m.publish("tracking_removed", map[string]interface{}{
		"request_id": id,
	})
	return true
}

// TrackedCount returns the number of tracked requests.
func (m *Manager) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// ResponseCount returns the number of retained responses.
func (m *Manager) ResponseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}
