package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/finesse-monitor/internal/domain"
	"github.com/xela07ax/finesse-monitor/internal/finesse"
	"github.com/xela07ax/finesse-monitor/internal/infra"
)

// PresenceClient - то, что Poller'у нужно от клиента Finesse.
type PresenceClient interface {
	ListAgents(ctx context.Context) ([]finesse.RawUser, error)
	GetActiveCall(ctx context.Context, agentID string) domain.CallInfo
}

// EventSink принимает смены статусов. Реализуется events.Dispatcher.
type EventSink interface {
	Log(change domain.StateChange)
}

// Poller периодически опрашивает Finesse и обновляет Store.
// Циклы никогда не пересекаются: следующий тик обрабатывается только после завершения текущего цикла.
type Poller struct {
	client  PresenceClient
	store   *Store
	events  EventSink
	metrics *Metrics
	clock   Clock
	logger  *zap.Logger

	interval    time.Duration
	concurrency int
	prune       bool

	running atomic.Bool

	mu          sync.RWMutex
	lastSuccess time.Time
	lastErr     string
	failures    int
	cycles      int64
}

// NewPoller собирает Poller. events, metrics и clock могут быть nil.
func NewPoller(
	cfg infra.PollerConfig,
	client PresenceClient,
	store *Store,
	events EventSink,
	metrics *Metrics,
	clock Clock,
	logger *zap.Logger,
) *Poller {
	if clock == nil {
		clock = realClock{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	concurrency := cfg.DialogConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Poller{
		client:      client,
		store:       store,
		events:      events,
		metrics:     metrics,
		clock:       clock,
		logger:      logger.Named("poller"),
		interval:    cfg.Interval,
		concurrency: concurrency,
		prune:       cfg.PruneMissing,
	}
}

// Run выполняет первый цикл сразу, затем по тикеру, пока не отменят ctx.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	p.logger.Info("starting poller",
		zap.Duration("interval", p.interval),
		zap.Int("dialog_concurrency", p.concurrency),
		zap.Bool("prune_missing", p.prune))

	_ = p.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-ticker.Chan():
			_ = p.RunCycle(ctx)
		}
	}
}

// RunCycle выполняет один цикл опроса. При ошибке ListAgents кэш не меняется.
// Параллельный вызов во время активного цикла возвращает ErrCycleInProgress.
func (p *Poller) RunCycle(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Warn("skipping tick: previous cycle still running")
		return ErrCycleInProgress
	}
	defer p.running.Store(false)

	cycleID := uuid.NewString()
	log := p.logger.With(zap.String("cycle_id", cycleID))
	start := time.Now()

	users, err := p.client.ListAgents(ctx)
	if err != nil {
		log.Error("error fetching agents", zap.String("op", "list_agents"), zap.Error(err))
		p.metrics.ObserveCycle("failed", time.Since(start))
		p.recordFailure(err)
		return fmt.Errorf("list agents: %w", err)
	}

	calls := p.fetchCalls(ctx, users)

	// Отмена посреди цикла: N/A вместо реальных звонков в кэш не пишем.
	if ctx.Err() != nil {
		p.metrics.ObserveCycle("aborted", time.Since(start))
		return fmt.Errorf("%w: %w", ErrCycleAborted, ctx.Err())
	}

	now := p.clock.Now()
	seen := make(map[string]struct{}, len(users))
	for i, u := range users {
		snap := domain.NewSnapshot(u.LoginID, u.Extension, u.State, calls[i], now)
		prev, existed := p.store.Put(snap)
		seen[u.LoginID] = struct{}{}

		if !existed || prev.State != snap.State {
			from := ""
			if existed {
				from = prev.State
			}
			p.emit(cycleID, from, snap.State, snap, now)
		}
	}

	if p.prune {
		for _, gone := range p.store.Prune(seen) {
			log.Info("agent no longer listed, removed from cache", zap.String("agent_id", gone.LoginID))
			p.emit(cycleID, gone.State, "", gone, now)
		}
	}

	p.metrics.ObserveCycle("ok", time.Since(start))
	p.metrics.SetAgents(p.store.Snapshot())
	p.recordSuccess(now)

	log.Debug("updated agents", zap.Int("count", len(users)), zap.Duration("took", time.Since(start)))
	return nil
}

// fetchCalls запрашивает диалоги только у агентов в TALKING, не больше p.concurrency одновременно.
func (p *Poller) fetchCalls(ctx context.Context, users []finesse.RawUser) []domain.CallInfo {
	calls := make([]domain.CallInfo, len(users))

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, u := range users {
		calls[i] = domain.NoCall()
		if u.State != domain.StateTalking {
			continue
		}
		g.Go(func() error {
			calls[i] = p.client.GetActiveCall(ctx, u.LoginID)
			return nil
		})
	}
	_ = g.Wait()

	return calls
}

func (p *Poller) emit(cycleID, from, to string, snap domain.AgentSnapshot, at time.Time) {
	if p.events == nil {
		return
	}
	p.events.Log(domain.StateChange{
		ID:        uuid.NewString(),
		CycleID:   cycleID,
		LoginID:   snap.LoginID,
		From:      from,
		To:        to,
		Extension: snap.Extension,
		CallID:    snap.CallID,
		Timestamp: at,
	})
}

func (p *Poller) recordSuccess(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSuccess = at
	p.lastErr = ""
	p.failures = 0
	p.cycles++
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err.Error()
	p.failures++
	p.cycles++
}

// Stats собирает сводку для дашборда из кэша и состояния цикла.
func (p *Poller) Stats() domain.DashboardStats {
	agents := p.store.Snapshot()

	stats := domain.DashboardStats{
		TotalAgents: len(agents),
		ByState:     make(map[string]int),
	}
	for _, a := range agents {
		stats.ByState[a.State]++
		if a.State == domain.StateTalking {
			stats.Talking++
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.lastSuccess.IsZero() {
		ts := p.lastSuccess
		stats.LastSuccess = &ts
	}
	stats.LastError = p.lastErr
	stats.ConsecutiveFailures = p.failures
	stats.Cycles = p.cycles

	return stats
}
