package events

/*
Dispatcher развязывает цикл опроса и доставку смен статусов.

- Log никогда не блокирует Poller: при переполнении буфера событие
  отбрасывается и учитывается в метрике.
- Воркер копит события пачками и сбрасывает их в Sink по размеру пачки
  или по таймеру.
- Stop закрывает вход, вычитывает остаток буфера и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/finesse-monitor/internal/domain"
)

const (
	defaultBuffer     = 1024
	defaultBatchSize  = 100
	defaultFlushEvery = 500 * time.Millisecond
	flushTimeout      = 5 * time.Second
)

// Sink определяет, куда физически уходят смены статусов.
type Sink interface {
	// PublishBatch отправляет пачку событий за один раз
	PublishBatch(ctx context.Context, changes []domain.StateChange) error
}

type Dispatcher struct {
	ch      chan domain.StateChange
	sink    Sink
	dropped prometheus.Counter
	logger  *zap.Logger
	wg      sync.WaitGroup

	batchSize  int
	flushEvery time.Duration

	// closed под mu: Log не должен писать в закрытый канал
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher создает диспетчер. dropped может быть nil.
func NewDispatcher(sink Sink, dropped prometheus.Counter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ch:         make(chan domain.StateChange, defaultBuffer),
		sink:       sink,
		dropped:    dropped,
		logger:     logger.Named("events"),
		batchSize:  defaultBatchSize,
		flushEvery: defaultFlushEvery,
	}
}

func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop запирает вход и ждет, пока воркер допишет остатки. Повторный вызов безопасен.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher: flushing buffer...")
	d.wg.Wait()
	d.logger.Info("dispatcher stopped gracefully")
}

// Log ставит событие в очередь. Не блокирует.
func (d *Dispatcher) Log(change domain.StateChange) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("state change dropped: dispatcher is stopping", zap.String("id", change.ID))
		d.drop()
		return
	}

	select {
	case d.ch <- change:
	default:
		d.logger.Error("event_buffer_overflow",
			zap.String("agent_id", change.LoginID),
			zap.String("cycle_id", change.CycleID),
		)
		d.drop()
	}
}

func (d *Dispatcher) drop() {
	if d.dropped != nil {
		d.dropped.Inc()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	batch := make([]domain.StateChange, 0, d.batchSize)
	ticker := time.NewTicker(d.flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: на остановке родительский контекст уже отменен
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		if err := d.sink.PublishBatch(ctx, batch); err != nil {
			d.logger.Error("state change flush failed", zap.Int("count", len(batch)), zap.Error(err))
		}
		batch = make([]domain.StateChange, 0, d.batchSize)
	}

	for {
		select {
		case change, ok := <-d.ch:
			if !ok {
				flush()
				d.logger.Info("event worker finished")
				return
			}
			batch = append(batch, change)
			if len(batch) >= d.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
