package backend

import (
	"context"
	"sync"
)

// Mock is a scripted Backend for tests: each call to Generate returns the
// next response from Responses, in order. It never calls a vendor API.
type Mock struct {
	mu        sync.Mutex
	Responses []GenerateResponse
	Err       error
	calls     int
	Requests  []GenerateRequest
}

// NewMock constructs a Mock that returns responses in order.
func NewMock(responses ...GenerateResponse) *Mock {
	return &Mock{Responses: responses}
}

// Generate returns the next scripted response, recording the request for
// later assertions. Returns Err (if set) instead, and recycles the last
// response once Responses is exhausted.
func (m *Mock) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	m.calls++

	if m.Err != nil {
		return GenerateResponse{}, m.Err
	}
	if len(m.Responses) == 0 {
		return GenerateResponse{Finish: FinishStop}, nil
	}

	idx := m.calls - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// CallCount returns the number of times Generate has been invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
