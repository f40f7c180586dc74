package finesse

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/finesse-monitor/internal/infra"
)

// Guard ограничивает частоту запросов к Finesse и, если включено, размыкает цепь
// после серии неудач. Повторов нет: неудачный вызов сразу возвращается вызывающему.
type Guard struct {
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	observer Observer
}

// NewGuard собирает Guard из конфига. Нулевой RateLimit и выключенный Breaker дают прозрачный Guard.
func NewGuard(cfg infra.FinesseConfig, observer Observer, logger *zap.Logger) *Guard {
	if observer == nil {
		observer = nopObserver{}
	}
	g := &Guard{observer: observer}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.Breaker.Enabled {
		threshold := cfg.Breaker.ConsecutiveFailures
		log := logger.Named("breaker")
		g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "finesse",
			MaxRequests: cfg.Breaker.MaxRequests,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				observer.ObserveBreaker(name, to == gobreaker.StateOpen)
			},
		})
	}

	return g
}

// Do выполняет fn с учетом лимитера и предохранителя.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if g == nil {
		return fn(ctx)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if g.cb == nil {
		return fn(ctx)
	}

	res, err := g.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	return res.([]byte), nil
}
