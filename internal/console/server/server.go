package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/finesse-monitor/internal/console/handler"
	"github.com/xela07ax/finesse-monitor/internal/infra"
)

type MonitorServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// nil - /metrics не монтируется
	gatherer prometheus.Gatherer

	agentHandler  *handler.AgentHandler     // /agents
	dashHandler   *handler.DashboardHandler // / и /api/v1/dashboard
	streamHandler *handler.StreamHandler    // /ws
}

// NewMonitorServer собирает HTTP-поверхность монитора со всеми зависимостями
func NewMonitorServer(
	cfg *infra.Config,
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
	agentH *handler.AgentHandler,
	dashH *handler.DashboardHandler,
	streamH *handler.StreamHandler,
) *MonitorServer {
	s := &MonitorServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("http"),
		cfg:           cfg,
		gatherer:      gatherer,
		agentHandler:  agentH,
		dashHandler:   dashH,
		streamHandler: streamH,
	}

	s.routes()
	return s
}

func (s *MonitorServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RealIP)
	r.Use(RequestTrace(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", TraceHeader},
		ExposedHeaders: []string{TraceHeader},
		MaxAge:         300,
	}))

	// --- 2. Служебные ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.Metrics.Enabled && s.gatherer != nil {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// --- 3. Дашборд и данные ---
	r.Get("/", s.dashHandler.Page)
	r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.agentHandler.List)
		r.Get("/{loginId}", s.agentHandler.Get)
	})

	r.Get("/ws", s.streamHandler.Serve)
}

// ServeHTTP позволяет использовать MonitorServer как стандартный http.Handler
func (s *MonitorServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
