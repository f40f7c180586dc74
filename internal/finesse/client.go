package finesse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/finesse-monitor/internal/domain"
	"github.com/xela07ax/finesse-monitor/internal/infra"
)

const (
	opListAgents = "list_agents"
	opGetDialogs = "get_dialogs"

	usersPath      = "/finesse/api/Users"
	userDialogsFmt = "/finesse/api/User/%s/Dialogs"

	maxBodySize = 8 << 20
)

// RawUser - пользователь из коллекции Finesse Users в том виде, в каком он пришел.
type RawUser struct {
	LoginID   string
	Extension string
	State     string
	FirstName string
	LastName  string
}

// Client ходит в Finesse REST API с basic auth.
type Client struct {
	baseURL  string
	user     string
	pass     string
	http     *http.Client
	guard    *Guard
	observer Observer
	logger   *zap.Logger
}

// NewClient создает клиент. Проверка TLS-сертификата определяется cfg.InsecureSkipVerify.
// guard и observer могут быть nil.
func NewClient(cfg infra.FinesseConfig, guard *Guard, observer Observer, logger *zap.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // явная настройка finesse.insecure_skip_verify
	}

	if observer == nil {
		observer = nopObserver{}
	}

	return &Client{
		baseURL: cfg.BaseURL(),
		user:    cfg.User,
		pass:    cfg.Pass,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		guard:    guard,
		observer: observer,
		logger:   logger.Named("finesse"),
	}
}

// ListAgents возвращает всех пользователей Finesse. Одиночный <User> тоже приходит срезом.
// Документ без корня <Users> считается неожиданным и дает *DecodeError.
func (c *Client) ListAgents(ctx context.Context) ([]RawUser, error) {
	c.logger.Debug("fetching agents")

	body, err := c.get(ctx, opListAgents, usersPath)
	if err != nil {
		return nil, err
	}

	tree, err := Decode(body)
	if err != nil {
		c.observer.ObserveRequest(opListAgents, "decode_error", 0)
		return nil, err
	}

	if _, ok := tree["Users"]; !ok {
		c.observer.ObserveRequest(opListAgents, "decode_error", 0)
		return nil, &DecodeError{Err: fmt.Errorf("%w: missing <Users> root", ErrUnexpectedShape)}
	}

	node, ok := tree.Node("Users", "User")
	if !ok {
		c.logger.Warn("no users found in response")
		return []RawUser{}, nil
	}

	items := AsSequence(node)
	users := make([]RawUser, 0, len(items))
	for _, item := range items {
		u := RawUser{
			LoginID:   Text(item, "loginId"),
			Extension: Text(item, "extension"),
			State:     Text(item, "state"),
			FirstName: Text(item, "firstName"),
			LastName:  Text(item, "lastName"),
		}
		if u.LoginID == "" {
			c.logger.Warn("skipping user without loginId")
			continue
		}
		users = append(users, u)
	}

	return users, nil
}

// GetActiveCall возвращает звонок агента. Никогда не возвращает ошибку: при любой проблеме
// она логируется, а результат - CallInfo со значениями N/A.
// Если Finesse вернул несколько диалогов, берется первый.
func (c *Client) GetActiveCall(ctx context.Context, agentID string) domain.CallInfo {
	log := c.logger.With(zap.String("op", opGetDialogs), zap.String("agent_id", agentID))

	body, err := c.get(ctx, opGetDialogs, fmt.Sprintf(userDialogsFmt, url.PathEscape(agentID)))
	if err != nil {
		log.Error("error fetching call info", zap.Error(err))
		return domain.NoCall()
	}

	tree, err := Decode(body)
	if err != nil {
		c.observer.ObserveRequest(opGetDialogs, "decode_error", 0)
		log.Error("error parsing dialogs", zap.Error(err))
		return domain.NoCall()
	}

	node, ok := tree.Node("Dialogs", "Dialog")
	if !ok {
		return domain.NoCall()
	}

	dialogs := AsSequence(node)
	if len(dialogs) == 0 {
		return domain.NoCall()
	}
	if len(dialogs) > 1 {
		log.Debug("agent has several dialogs, using the first", zap.Int("count", len(dialogs)))
	}

	d := dialogs[0]
	return domain.CallInfo{
		CallID:     domain.OrNA(Text(d, "id")),
		FromNumber: domain.OrNA(Text(d, "fromAddress")),
		ToNumber:   domain.OrNA(Text(d, "toAddress")),
	}
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	target := c.baseURL + path
	start := time.Now()

	body, err := c.guard.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, op, target)
	})

	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, ErrCircuitOpen) {
			result = "rejected"
		}
	}
	c.observer.ObserveRequest(op, result, time.Since(start))

	if err != nil {
		var ce *ClientError
		if !errors.As(err, &ce) {
			err = &ClientError{Op: op, URL: target, Err: err}
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, op, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ClientError{Op: op, URL: target, Err: err}
	}
	req.SetBasicAuth(c.user, c.pass)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ClientError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &ClientError{Op: op, URL: target, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &ClientError{Op: op, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
