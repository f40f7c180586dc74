package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/finesse-monitor/internal/console/handler"
	"github.com/xela07ax/finesse-monitor/internal/finesse"
	"github.com/xela07ax/finesse-monitor/internal/finesse/finessetest"
	"github.com/xela07ax/finesse-monitor/internal/infra"
	"github.com/xela07ax/finesse-monitor/internal/monitor"
)

type stack struct {
	upstream *finessetest.Server
	poller   *monitor.Poller
	http     *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zaptest.NewLogger(t)

	upstream := finessetest.NewServer()
	t.Cleanup(upstream.Close)

	cfg := &infra.Config{
		Server:  infra.ServerConfig{AllowedOrigins: []string{"*"}},
		Finesse: upstream.Config(),
		Poller:  infra.PollerConfig{DialogConcurrency: 2},
		Metrics: infra.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	reg := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(reg)
	client := finesse.NewClient(cfg.Finesse, finesse.NewGuard(cfg.Finesse, metrics, logger), metrics, logger)
	store := monitor.NewStore()
	poller := monitor.NewPoller(cfg.Poller, client, store, nil, metrics, nil, logger)

	srv := NewMonitorServer(cfg, logger, reg,
		handler.NewAgentHandler(store),
		handler.NewDashboardHandler(poller),
		handler.NewStreamHandler(store, logger),
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &stack{upstream: upstream, poller: poller, http: ts}
}

func (s *stack) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(s.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestMonitorServer_EndToEnd(t *testing.T) {
	s := newStack(t)
	s.upstream.SetUsers(finessetest.UsersXML(
		finessetest.Agent{LoginID: "A", Extension: "1001", State: "READY"},
		finessetest.Agent{LoginID: "B", Extension: "1002", State: "TALKING"},
	))
	s.upstream.SetDialogs("B", finessetest.DialogsXML(
		finessetest.Dialog{ID: "123", FromAddress: "1000", ToAddress: "2000"},
	))

	require.NoError(t, s.poller.RunCycle(context.Background()))

	resp, body := s.get(t, "/agents")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var agents []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &agents))
	require.Len(t, agents, 2)
	for _, a := range agents {
		assert.NotEmpty(t, a["lastUpdate"])
		delete(a, "lastUpdate")
	}
	assert.Equal(t, []map[string]any{
		{"loginId": "A", "extension": "1001", "state": "READY", "callId": "N/A", "fromNumber": "N/A", "toNumber": "N/A"},
		{"loginId": "B", "extension": "1002", "state": "TALKING", "callId": "123", "fromNumber": "1000", "toNumber": "2000"},
	}, agents)

	// диалоги запрашиваются только у разговаривающих
	assert.Equal(t, 0, s.upstream.Hits("/finesse/api/User/A/Dialogs"))
	assert.Equal(t, 1, s.upstream.Hits("/finesse/api/User/B/Dialogs"))
}

func TestMonitorServer_UpstreamFailureKeepsCache(t *testing.T) {
	s := newStack(t)
	s.upstream.SetUsers(finessetest.UsersXML(finessetest.Agent{LoginID: "A", State: "READY"}))
	require.NoError(t, s.poller.RunCycle(context.Background()))
	_, before := s.get(t, "/agents")

	s.upstream.FailUsers(http.StatusInternalServerError)
	require.Error(t, s.poller.RunCycle(context.Background()))

	resp, after := s.get(t, "/agents")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, before, after)

	_, stats := s.get(t, "/api/v1/dashboard/stats")
	assert.Contains(t, stats, `"consecutiveFailures":1`)
}

func TestMonitorServer_Routes(t *testing.T) {
	s := newStack(t)
	s.upstream.SetUsers(finessetest.UsersXML(finessetest.Agent{LoginID: "A", Extension: "1001", State: "READY"}))
	require.NoError(t, s.poller.RunCycle(context.Background()))

	tests := []struct {
		name   string
		path   string
		status int
		ctype  string
		body   string
	}{
		{name: "health", path: "/health", status: http.StatusOK, body: "ok"},
		{name: "dashboard", path: "/", status: http.StatusOK, ctype: "text/html; charset=utf-8", body: "Finesse Agent Monitor"},
		{name: "one agent", path: "/agents/A", status: http.StatusOK, ctype: "application/json", body: `"loginId":"A"`},
		{name: "unknown agent", path: "/agents/ghost", status: http.StatusNotFound, ctype: "application/json", body: "agent not found"},
		{name: "stats", path: "/api/v1/dashboard/stats", status: http.StatusOK, ctype: "application/json", body: `"totalAgents":1`},
		{name: "metrics", path: "/metrics", status: http.StatusOK, body: "finesse_monitor_poll_cycles_total"},
		{name: "unknown route", path: "/nope", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.get(t, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.ctype != "" {
				assert.Equal(t, tt.ctype, resp.Header.Get("Content-Type"))
			}
			if tt.body != "" {
				assert.Contains(t, body, tt.body)
			}
			assert.NotEmpty(t, resp.Header.Get(TraceHeader))
		})
	}
}

func TestMonitorServer_TraceHeaderPropagated(t *testing.T) {
	s := newStack(t)

	req, err := http.NewRequest(http.MethodGet, s.http.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(TraceHeader, "trace-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "trace-42", resp.Header.Get(TraceHeader))
}

func TestMonitorServer_CORS(t *testing.T) {
	s := newStack(t)

	req, err := http.NewRequest(http.MethodGet, s.http.URL+"/agents", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
