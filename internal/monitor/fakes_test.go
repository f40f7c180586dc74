package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xela07ax/finesse-monitor/internal/domain"
	"github.com/xela07ax/finesse-monitor/internal/finesse"
)

// MockPresenceClient is a testify mock of PresenceClient.
type MockPresenceClient struct {
	mock.Mock
}

func (m *MockPresenceClient) ListAgents(ctx context.Context) ([]finesse.RawUser, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]finesse.RawUser)
	return users, args.Error(1)
}

func (m *MockPresenceClient) GetActiveCall(ctx context.Context, agentID string) domain.CallInfo {
	args := m.Called(ctx, agentID)
	return args.Get(0).(domain.CallInfo)
}

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *manualTicker
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start, ticker: &manualTicker{ch: make(chan time.Time)}}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *manualClock) Ticker(time.Duration) Ticker {
	return c.ticker
}

type manualTicker struct {
	ch      chan time.Time
	stopped bool
}

func (t *manualTicker) Chan() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()                  { t.stopped = true }

type recordingSink struct {
	mu      sync.Mutex
	changes []domain.StateChange
}

func (s *recordingSink) Log(c domain.StateChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
}

func (s *recordingSink) Changes() []domain.StateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StateChange(nil), s.changes...)
}
