package finesse

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/finesse-monitor/internal/domain"
	"github.com/xela07ax/finesse-monitor/internal/finesse/finessetest"
	"github.com/xela07ax/finesse-monitor/internal/infra"
)

type requestRecord struct {
	op, result string
}

type recordingObserver struct {
	requests []requestRecord
	breaker  []bool
}

func (o *recordingObserver) ObserveRequest(op, result string, _ time.Duration) {
	o.requests = append(o.requests, requestRecord{op: op, result: result})
}

func (o *recordingObserver) ObserveBreaker(_ string, open bool) {
	o.breaker = append(o.breaker, open)
}

func newTestClient(t *testing.T, cfg infra.FinesseConfig, obs Observer) *Client {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewClient(cfg, NewGuard(cfg, obs, logger), obs, logger)
}

func TestClient_ListAgents(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	srv.SetUsers(finessetest.UsersXML(
		finessetest.Agent{LoginID: "A", Extension: "1000", State: "READY"},
		finessetest.Agent{LoginID: "B", State: "TALKING"},
	))

	obs := &recordingObserver{}
	c := newTestClient(t, srv.Config(), obs)

	users, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, RawUser{LoginID: "A", Extension: "1000", State: "READY"}, users[0])
	assert.Equal(t, RawUser{LoginID: "B", State: "TALKING"}, users[1])
	assert.Equal(t, []requestRecord{{op: opListAgents, result: "ok"}}, obs.requests)
}

func TestClient_ListAgents_SingleUser(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	srv.SetUsers(finessetest.UsersXML(finessetest.Agent{LoginID: "solo", State: "NOT_READY"}))

	users, err := newTestClient(t, srv.Config(), nil).ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "solo", users[0].LoginID)
}

func TestClient_ListAgents_NoUsers(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	users, err := newTestClient(t, srv.Config(), nil).ListAgents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)
}

func TestClient_ListAgents_Errors(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	t.Run("status", func(t *testing.T) {
		srv.FailUsers(http.StatusServiceUnavailable)
		defer srv.SetUsers(finessetest.UsersXML())

		_, err := newTestClient(t, srv.Config(), nil).ListAgents(context.Background())

		var ce *ClientError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, opListAgents, ce.Op)
		assert.Equal(t, http.StatusServiceUnavailable, ce.StatusCode)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	})

	t.Run("bad credentials", func(t *testing.T) {
		cfg := srv.Config()
		cfg.Pass = "wrong"

		_, err := newTestClient(t, cfg, nil).ListAgents(context.Background())

		var ce *ClientError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	})

	t.Run("malformed", func(t *testing.T) {
		srv.SetUsers(`<Users><User>`)
		defer srv.SetUsers(finessetest.UsersXML())

		_, err := newTestClient(t, srv.Config(), nil).ListAgents(context.Background())

		var de *DecodeError
		assert.True(t, errors.As(err, &de))
	})

	t.Run("unexpected root", func(t *testing.T) {
		srv.SetUsers(`<ApiErrors><ApiError><errorType>Unknown</errorType></ApiError></ApiErrors>`)
		defer srv.SetUsers(finessetest.UsersXML())

		_, err := newTestClient(t, srv.Config(), nil).ListAgents(context.Background())

		assert.ErrorIs(t, err, ErrUnexpectedShape)
	})
}

func TestClient_TLSVerification(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	cfg := srv.Config()
	cfg.InsecureSkipVerify = false

	_, err := newTestClient(t, cfg, nil).ListAgents(context.Background())

	var ce *ClientError
	require.True(t, errors.As(err, &ce), "self-signed certificate must be rejected when verification is on")
	assert.Zero(t, ce.StatusCode)
	assert.Zero(t, srv.Hits("/finesse/api/Users"))
}

func TestClient_GetActiveCall(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv.Config(), nil)
	ctx := context.Background()

	srv.SetDialogs("B", finessetest.DialogsXML(finessetest.Dialog{ID: "123", FromAddress: "1000", ToAddress: "2000"}))
	assert.Equal(t, domain.CallInfo{CallID: "123", FromNumber: "1000", ToNumber: "2000"}, c.GetActiveCall(ctx, "B"))

	srv.SetDialogs("C", finessetest.DialogsXML(finessetest.Dialog{ID: "77", ToAddress: "3000"}))
	assert.Equal(t, domain.CallInfo{CallID: "77", FromNumber: domain.NotAvailable, ToNumber: "3000"}, c.GetActiveCall(ctx, "C"))

	srv.SetDialogs("D", finessetest.DialogsXML(
		finessetest.Dialog{ID: "1", FromAddress: "10", ToAddress: "20"},
		finessetest.Dialog{ID: "2", FromAddress: "30", ToAddress: "40"},
	))
	assert.Equal(t, "1", c.GetActiveCall(ctx, "D").CallID)

	// нет диалогов
	assert.Equal(t, domain.NoCall(), c.GetActiveCall(ctx, "E"))
}

func TestClient_GetActiveCall_SwallowsErrors(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	obs := &recordingObserver{}
	c := newTestClient(t, srv.Config(), obs)
	ctx := context.Background()

	srv.FailDialogs("B", http.StatusInternalServerError)
	assert.Equal(t, domain.NoCall(), c.GetActiveCall(ctx, "B"))

	srv.SetDialogs("C", `<Dialogs><Dialog>`)
	assert.Equal(t, domain.NoCall(), c.GetActiveCall(ctx, "C"))

	assert.Equal(t, []requestRecord{
		{op: opGetDialogs, result: "error"},
		{op: opGetDialogs, result: "ok"},
		{op: opGetDialogs, result: "decode_error"},
	}, obs.requests)
}

func TestClient_GetActiveCall_EscapesAgentID(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()

	c := newTestClient(t, srv.Config(), nil)
	_ = c.GetActiveCall(context.Background(), "a b")

	assert.Equal(t, 1, srv.Hits("/finesse/api/User/a b/Dialogs"))
}

func TestGuard_BreakerOpens(t *testing.T) {
	srv := finessetest.NewServer()
	defer srv.Close()
	srv.FailUsers(http.StatusInternalServerError)

	cfg := srv.Config()
	cfg.Breaker = infra.BreakerConfig{
		Enabled:             true,
		MaxRequests:         1,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
	}

	obs := &recordingObserver{}
	c := newTestClient(t, cfg, obs)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.ListAgents(ctx)
		require.ErrorIs(t, err, ErrUnexpectedStatus)
	}

	_, err := c.ListAgents(ctx)
	require.ErrorIs(t, err, ErrCircuitOpen)

	var ce *ClientError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, srv.Hits("/finesse/api/Users"), "open breaker must not reach upstream")
	assert.Equal(t, []bool{true}, obs.breaker)
	assert.Equal(t, "rejected", obs.requests[len(obs.requests)-1].result)
}

func TestGuard_NilIsPassthrough(t *testing.T) {
	var g *Guard
	out, err := g.Do(context.Background(), func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)

	g = NewGuard(infra.FinesseConfig{}, nil, zap.NewNop())
	_, err = g.Do(context.Background(), func(context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestGuard_RateLimitHonoursContext(t *testing.T) {
	g := NewGuard(infra.FinesseConfig{RateLimit: 0.001, RateBurst: 1}, nil, zap.NewNop())

	call := func(context.Context) ([]byte, error) { return nil, nil }
	_, err := g.Do(context.Background(), call)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Do(ctx, call)
	assert.Error(t, err)
}
