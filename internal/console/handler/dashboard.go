package handler

import (
	_ "embed"
	"net/http"

	"github.com/xela07ax/finesse-monitor/internal/domain"
)

//go:embed web/index.html
var indexHTML []byte

// StatsProvider - сводка для дашборда. Реализуется monitor.Poller.
type StatsProvider interface {
	Stats() domain.DashboardStats
}

type DashboardHandler struct {
	stats StatsProvider
}

func NewDashboardHandler(stats StatsProvider) *DashboardHandler {
	return &DashboardHandler{stats: stats}
}

// Page отдает статичную страницу, которая сама опрашивает /agents.
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Stats())
}
