package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. It returns its responses in
// order and repeats the last one once the script is exhausted.
type MockClient struct {
	mu        sync.Mutex
	responses []CompletionResponse
	err       error
	calls     int
	requests  []CompletionRequest
}

// NewMockClient creates a mock that replies with the given responses.
func NewMockClient(responses ...CompletionResponse) *MockClient {
	return &MockClient{responses: responses}
}

// NewMockTexts creates a mock that replies with plain text responses.
func NewMockTexts(texts ...string) *MockClient {
	responses := make([]CompletionResponse, len(texts))
	for i, t := range texts {
		responses[i] = CompletionResponse{Content: t}
	}
	return &MockClient{responses: responses}
}

// FailWith makes every Complete call return err.
func (m *MockClient) FailWith(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, in CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, in)
	if m.err != nil {
		return CompletionResponse{}, m.err
	}
	if len(m.responses) == 0 {
		return CompletionResponse{}, nil
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return m.responses[idx], nil
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or false if none were made.
func (m *MockClient) LastRequest() (CompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return CompletionRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}
