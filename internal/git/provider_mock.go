package git

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockProvider is a StatusProvider for tests. It returns Info (or Err) and
// counts computations.
type MockProvider struct {
	mu   sync.Mutex
	Info *GitInfo
	Err  error

	// Block, when set, is waited on inside Compute.
	Block chan struct{}

	calls atomic.Int64
}

// NewMockProvider creates a mock reporting a clean main branch at root.
func NewMockProvider(root string) *MockProvider {
	return &MockProvider{
		Info: &GitInfo{
			Root:         root,
			Branch:       "main",
			FileStatuses: map[string]FileStatus{},
		},
	}
}

func (m *MockProvider) Compute(ctx context.Context, root string) (*GitInfo, error) {
	m.calls.Add(1)

	m.mu.Lock()
	block := m.Block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Info, nil
}

// Set replaces the snapshot returned by later computations.
func (m *MockProvider) Set(info *GitInfo, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Info = info
	m.Err = err
}

// Calls returns how many times Compute ran.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

func (m *MockProvider) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Info == nil {
		return fmt.Sprintf("MockProvider{err=%v, calls=%d}", m.Err, m.Calls())
	}
	return fmt.Sprintf("MockProvider{branch=%s, files=%d, calls=%d}",
		m.Info.Branch, len(m.Info.FileStatuses), m.Calls())
}
