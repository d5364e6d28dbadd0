package ipcompat

import (
	"context"
	"sync"
)

// MockClient is a mock IP compatibility client for testing
type MockClient struct {
	mu      sync.Mutex
	ips     map[string][]string
	err     error
	baseURL string
	calls   []string
}

// MockOption configures the mock client
type MockOption func(*MockClient)

// WithIPs sets the addresses returned for ip
func WithIPs(ip string, ips ...string) MockOption {
	return func(m *MockClient) {
		m.ips[ip] = ips
	}
}

// WithError sets an error to return from Expand
func WithError(err error) MockOption {
	return func(m *MockClient) {
		m.err = err
	}
}

// NewMockClient creates a new mock client. Unknown addresses expand to nothing.
func NewMockClient(opts ...MockOption) *MockClient {
	m := &MockClient{
		ips:     make(map[string][]string),
		baseURL: "http://mock-ipcompat.local",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BaseURL returns the configured base URL
func (m *MockClient) BaseURL() string {
	return m.baseURL
}

// Expand returns the configured addresses or error
func (m *MockClient) Expand(ctx context.Context, ip string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, ip)
	if m.err != nil {
		return nil, m.err
	}
	return m.ips[ip], nil
}

// Calls returns the addresses Expand was called with (for testing)
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var _ Client = (*MockClient)(nil)
