package marvin

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider simulates model behavior for testing and offline development.
// It records every request and returns canned envelopes.
type MockProvider struct {
	name      string
	available bool
	responses []*Envelope
	next      int
	requests  []*ChatRequest
	mu        sync.Mutex
}

// NewMockProvider creates a mock provider that echoes an empty JSON object.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithResponse(`{}`)
}

// NewMockProviderWithResponse creates a mock that always returns the given
// content.
func NewMockProviderWithResponse(content string) *MockProvider {
	return NewMockProviderWithScript(&Envelope{Role: RoleAssistant, Content: content})
}

// NewMockProviderWithScript creates a mock that returns the given envelopes
// in order. The last envelope repeats once the script is exhausted, so a
// single-envelope script behaves like a fixed response.
func NewMockProviderWithScript(envelopes ...*Envelope) *MockProvider {
	return &MockProvider{
		name:      "mock",
		available: true,
		responses: envelopes,
	}
}

// Call returns the next scripted envelope and records the request.
func (m *MockProvider) Call(_ context.Context, req *ChatRequest) (*Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if !m.available {
		return nil, fmt.Errorf("%w: provider %s is unavailable", ErrRemoteUnavailable, m.name)
	}
	if len(m.responses) == 0 {
		return &Envelope{Role: RoleAssistant}, nil
	}

	envelope := m.responses[m.next]
	if m.next < len(m.responses)-1 {
		m.next++
	}
	out := *envelope
	return &out, nil
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string {
	return m.name
}

// SetAvailable sets the availability status (for testing transport failures).
func (m *MockProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

// Calls returns the number of requests received.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil when none was made.
func (m *MockProvider) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Requests returns a copy of all recorded requests.
func (m *MockProvider) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// NewMockProviderWithCallback creates a mock that calls a function to
// generate responses.
func NewMockProviderWithCallback(callback func(ctx context.Context, req *ChatRequest) (*Envelope, error)) Provider {
	return &mockProviderCallback{callback: callback}
}

// mockProviderCallback uses a callback to generate responses.
type mockProviderCallback struct {
	callback func(context.Context, *ChatRequest) (*Envelope, error)
}

func (m *mockProviderCallback) Call(ctx context.Context, req *ChatRequest) (*Envelope, error) {
	return m.callback(ctx, req)
}

func (m *mockProviderCallback) Name() string {
	return "mock-callback"
}

// MockChooser is a mock provider that also implements ConstrainedChooser,
// selecting a fixed label index.
type MockChooser struct {
	*MockProvider
	Index int
	Err   error
}

// NewMockChooser creates a mock constrained chooser returning index.
func NewMockChooser(index int) *MockChooser {
	return &MockChooser{MockProvider: NewMockProvider(), Index: index}
}

// Choose returns the configured index.
func (m *MockChooser) Choose(_ context.Context, _ *ChatRequest, _ []string) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Index, nil
}
