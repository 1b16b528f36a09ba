package backend

import (
	"context"
	"sync"
	"time"
)

// This file contains shared test helpers and mocks used across packages that talk to a remote.

// MockRemote implements RemoteClient in memory for testing.
// Pushed entities are kept as-is (no conflict handling); pull responses are scripted.
type MockRemote struct {
	mu sync.Mutex

	PushCalls    int
	PullCalls    int
	LastPush     *PushRequest
	LastPull     *PullRequest
	PushResponse PushResponse
	PullResponse PullResponse

	pushErr error
	pullErr error

	// Block, when set, is waited on at the start of every call
	Block chan struct{}
}

// NewMockRemote creates a mock remote that accepts everything
func NewMockRemote() *MockRemote {
	return &MockRemote{}
}

// SetPushError makes subsequent pushes fail with err (nil restores success)
func (m *MockRemote) SetPushError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushErr = err
}

// SetPullError makes subsequent pulls fail with err (nil restores success)
func (m *MockRemote) SetPullError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullErr = err
}

// SetPullEntities scripts the entities returned by the next pulls
func (m *MockRemote) SetPullEntities(tasks []Task, domains []Domain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PullResponse.Tasks = tasks
	m.PullResponse.Domains = domains
}

// SetServerTime scripts the server time returned by push and pull
func (m *MockRemote) SetServerTime(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PushResponse.ServerTime = &t
	m.PullResponse.ServerTime = &t
}

// Calls returns the number of push and pull requests received
func (m *MockRemote) Calls() (push, pull int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PushCalls, m.PullCalls
}

func (m *MockRemote) Push(ctx context.Context, userID string, req PushRequest) (*PushResponse, error) {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls++
	m.LastPush = &req
	if m.pushErr != nil {
		return nil, m.pushErr
	}
	resp := m.PushResponse
	if resp.Pushed == 0 && resp.Conflicts == 0 {
		resp.Pushed = len(req.Tasks) + len(req.Domains)
	}
	return &resp, nil
}

func (m *MockRemote) Pull(ctx context.Context, userID string, req PullRequest) (*PullResponse, error) {
	if m.Block != nil {
		<-m.Block
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PullCalls++
	m.LastPull = &req
	if m.pullErr != nil {
		return nil, m.pullErr
	}
	resp := PullResponse{
		Tasks:      append([]Task(nil), m.PullResponse.Tasks...),
		Domains:    append([]Domain(nil), m.PullResponse.Domains...),
		ServerTime: m.PullResponse.ServerTime,
	}
	return &resp, nil
}
