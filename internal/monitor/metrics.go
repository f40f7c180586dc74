package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xela07ax/finesse-monitor/internal/domain"
)

type Metrics struct {
	// Циклы опроса: результат и длительность
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Запросы в Finesse по операциям
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// Состояние кэша
	Agents        prometheus.Gauge
	AgentsByState *prometheus.GaugeVec

	// Состояние Circuit Breaker (0 - ок, 1 - выбило)
	BreakerState *prometheus.GaugeVec

	// События, потерянные из-за переполнения буфера
	EventsDropped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		CyclesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "finesse_monitor_poll_cycles_total",
			Help: "Total number of poll cycles by result.",
		}, []string{"result"}), // ok, failed, aborted

		CycleDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "finesse_monitor_poll_cycle_duration_seconds",
			Help:    "Histogram of poll cycle durations.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5, 10, 30},
		}),

		UpstreamRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "finesse_monitor_upstream_requests_total",
			Help: "Total number of requests to Finesse by operation and result.",
		}, []string{"op", "result"}),

		UpstreamDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finesse_monitor_upstream_request_duration_seconds",
			Help:    "Histogram of Finesse request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op"}),

		Agents: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "finesse_monitor_agents",
			Help: "Current number of agents in cache.",
		}),

		AgentsByState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "finesse_monitor_agents_by_state",
			Help: "Current number of cached agents per Finesse state.",
		}, []string{"state"}),

		BreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "finesse_monitor_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"name"}),

		EventsDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "finesse_monitor_events_dropped_total",
			Help: "State change events dropped because the buffer was full.",
		}),
	}
}

// ObserveRequest реализует finesse.Observer.
func (m *Metrics) ObserveRequest(op, result string, took time.Duration) {
	m.UpstreamRequests.WithLabelValues(op, result).Inc()
	if took > 0 {
		m.UpstreamDuration.WithLabelValues(op).Observe(took.Seconds())
	}
}

// ObserveBreaker реализует finesse.Observer.
func (m *Metrics) ObserveBreaker(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

func (m *Metrics) ObserveCycle(result string, took time.Duration) {
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(took.Seconds())
}

// SetAgents пересчитывает гейджи по текущему содержимому кэша.
func (m *Metrics) SetAgents(agents []domain.AgentSnapshot) {
	m.Agents.Set(float64(len(agents)))

	m.AgentsByState.Reset()
	for _, a := range agents {
		m.AgentsByState.WithLabelValues(a.State).Inc()
	}
}
