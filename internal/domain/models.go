package domain

import (
	"time"

	"github.com/google/uuid"
)

// Request is an immutable description of a single generation request.
// Identity is the ID: two requests with identical content but different
// IDs are distinct requests.
type Request struct {
	ID         string            `json:"id"`
	Prompt     string            `json:"prompt"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	UseCache   bool              `json:"use_cache,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewRequest creates a request with a fresh ID and creation timestamp.
func NewRequest(prompt string, parameters map[string]any) Request {
	return Request{
		ID:         uuid.New().String(),
		Prompt:     prompt,
		Parameters: parameters,
		CreatedAt:  time.Now(),
	}
}

// UsageStats tracks token consumption reported by a provider.
type UsageStats struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Generation is the result of a single successful provider invocation.
type Generation struct {
	Content  *ResponseContent
	Usage    *UsageStats
	Metadata map[string]string
}

// ResponseData correlates a provider outcome to a request. Either Content
// or Err is set, never both.
type ResponseData struct {
	RequestID  string            `json:"request_id"`
	ProviderID string            `json:"provider_id"`
	Content    *ResponseContent  `json:"content,omitempty"`
	Err        error             `json:"-"`
	Usage      *UsageStats       `json:"usage,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	FromCache  bool              `json:"from_cache,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// StatusKind enumerates the request lifecycle states.
type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusExecuting
	StatusCompleted
	StatusFailed
	StatusCancelled
)

// String returns the lowercase name of the status kind.
func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusExecuting:
		return "executing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RequestStatus is the current lifecycle state of a tracked request.
// Progress is only meaningful while Executing; Response is set for
// Completed, Err for Failed.
type RequestStatus struct {
	Kind     StatusKind    `json:"kind"`
	Progress float64       `json:"progress,omitempty"`
	Response *ResponseData `json:"response,omitempty"`
	Err      error         `json:"-"`
}

// Terminal reports whether no further transition can occur.
func (s RequestStatus) Terminal() bool {
	switch s.Kind {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Pending returns the initial status.
func Pending() RequestStatus { return RequestStatus{Kind: StatusPending} }

// Executing returns an in-progress status.
func Executing(progress float64) RequestStatus {
	return RequestStatus{Kind: StatusExecuting, Progress: progress}
}

// Completed returns a terminal success status carrying the response.
func Completed(resp *ResponseData) RequestStatus {
	return RequestStatus{Kind: StatusCompleted, Response: resp}
}

// Failed returns a terminal failure status carrying the error.
func Failed(err error) RequestStatus {
	return RequestStatus{Kind: StatusFailed, Err: err}
}

// Cancelled returns the terminal cancellation status.
func Cancelled() RequestStatus { return RequestStatus{Kind: StatusCancelled} }

// TrackedRequest is a point-in-time snapshot of a request's bookkeeping.
// Zero timestamps mean the corresponding transition has not happened.
type TrackedRequest struct {
	Request     Request       `json:"request"`
	Status      RequestStatus `json:"status"`
	ProviderID  string        `json:"provider_id"`
	SubmittedAt time.Time     `json:"submitted_at"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
}
