package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockProvider implements Provider with scripted responses for judge and
// agent tests.
type MockProvider struct {
	mu               sync.Mutex
	Responses        []*CompletionResponse
	Errors           []error
	CallCount        int
	LastRequest      *CompletionRequest
	RequestHistory   []CompletionRequest
	ReplayMode       bool
	SimulatedLatency time.Duration
	MatchFunc        func(*CompletionRequest) *CompletionResponse
}

// NewMockProvider creates a MockProvider cycling through the given responses.
// If both are nil/empty, returns a default successful response.
func NewMockProvider(responses []*CompletionResponse, errors []error) *MockProvider {
	return &MockProvider{Responses: responses, Errors: errors}
}

// NewReplayProvider creates a MockProvider that uses responses exactly once in order.
// Returns an error when all responses have been consumed.
func NewReplayProvider(responses []*CompletionResponse) *MockProvider {
	return &MockProvider{Responses: responses, ReplayMode: true}
}

func (m *MockProvider) Name() string        { return "mock" }
func (m *MockProvider) DefaultModel() string { return "mock-model" }

func (m *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	latency := m.SimulatedLatency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.CallCount
	m.CallCount++
	m.LastRequest = req
	m.RequestHistory = append(m.RequestHistory, *req)

	// Return error if configured for this call index
	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}

	// MatchFunc takes priority over index-based selection
	if m.MatchFunc != nil {
		if resp := m.MatchFunc(req); resp != nil {
			return resp, nil
		}
	}

	// ReplayMode: consume responses exactly once
	if m.ReplayMode {
		if idx >= len(m.Responses) {
			return nil, fmt.Errorf("mock provider: all %d responses exhausted at call %d", len(m.Responses), idx)
		}
		return m.Responses[idx], nil
	}

	// Default cycling behavior
	if len(m.Responses) > 0 {
		return m.Responses[idx%len(m.Responses)], nil
	}

	// Default response
	return &CompletionResponse{
		Content:      `{"score": 0.5, "explanation": "default mock response"}`,
		Model:        "mock-model",
		InputTokens:  10,
		OutputTokens: 10,
		Cost:         0.001,
		DurationMS:   50,
	}, nil
}

// ScoreResponse builds a judge reply carrying score and explanation.
func ScoreResponse(score float64, explanation string) *CompletionResponse {
	return &CompletionResponse{
		Content:      fmt.Sprintf(`{"score": %g, "explanation": %q}`, score, explanation),
		Model:        "mock-model",
		InputTokens:  10,
		OutputTokens: 10,
	}
}

// NewScoreProvider returns a mock that answers every call with the given
// scores in order, cycling.
func NewScoreProvider(scores ...float64) *MockProvider {
	responses := make([]*CompletionResponse, len(scores))
	for i, s := range scores {
		responses[i] = ScoreResponse(s, fmt.Sprintf("mock score %g", s))
	}
	return NewMockProvider(responses, nil)
}

// MatchSystemPrompt returns a MatchFunc choosing the response whose key is
// contained in the request's system prompt. Keys are tried in the given order.
func MatchSystemPrompt(keys []string, responses map[string]*CompletionResponse) func(*CompletionRequest) *CompletionResponse {
	return func(req *CompletionRequest) *CompletionResponse {
		for _, k := range keys {
			if strings.Contains(req.SystemPrompt, k) {
				return responses[k]
			}
		}
		return nil
	}
}

// GetCallCount returns the number of times Complete has been called.
func (m *MockProvider) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetRequestHistory returns a copy of all requests made to this provider.
func (m *MockProvider) GetRequestHistory() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.RequestHistory...)
}
