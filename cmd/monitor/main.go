package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/finesse-monitor/internal/console/handler"
	"github.com/xela07ax/finesse-monitor/internal/console/server"
	"github.com/xela07ax/finesse-monitor/internal/events"
	"github.com/xela07ax/finesse-monitor/internal/finesse"
	"github.com/xela07ax/finesse-monitor/internal/infra"
	"github.com/xela07ax/finesse-monitor/internal/monitor"
)

func main() {
	// 1. Конфиг и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Finesse.InsecureSkipVerify {
		logger.Warn("TLS certificate verification for Finesse is DISABLED",
			zap.String("finesse", cfg.Finesse.BaseURL()),
			zap.String("option", "finesse.insecure_skip_verify"))
	}

	// Контекст жизненного цикла фоновых горутин, отменяется по SIGINT/SIGTERM
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitor.NewMetrics(reg)

	// 3. Клиент Finesse (Rate Limit + опциональный Circuit Breaker)
	guard := finesse.NewGuard(cfg.Finesse, metrics, logger)
	client := finesse.NewClient(cfg.Finesse, guard, metrics, logger)

	// 4. Трансляция смен статусов в Redis (если настроен)
	var sink monitor.EventSink
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(appCtx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// не фатально: go-redis переподключится сам
			logger.Warn("redis is not reachable yet", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()

		dispatcher := events.NewDispatcher(events.NewRedisSink(rdb, cfg.Redis.Channel, logger), metrics.EventsDropped, logger)
		dispatcher.Start()
		defer dispatcher.Stop()
		sink = dispatcher

		logger.Info("state changes will be published", zap.String("channel", cfg.Redis.Channel))
	}

	// 5. Кэш и Poller
	store := monitor.NewStore()
	poller := monitor.NewPoller(cfg.Poller, client, store, sink, metrics, nil, logger)

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		_ = poller.Run(appCtx)
	}()

	// 6. HTTP Server
	api := server.NewMonitorServer(cfg, logger, reg,
		handler.NewAgentHandler(store),
		handler.NewDashboardHandler(poller),
		handler.NewStreamHandler(store, logger),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Finesse monitor started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", zap.Error(err))
			stop()
		}
	}()

	// 7. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("Finesse monitor stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	<-pollerDone
	logger.Info("Finesse monitor exited properly")
}
