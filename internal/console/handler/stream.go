package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xela07ax/finesse-monitor/internal/domain"
	"github.com/xela07ax/finesse-monitor/internal/monitor"
)

const (
	frameSnapshot     = "snapshot"
	frameAgentUpdate  = "agent_update"
	frameAgentRemoved = "agent_removed"

	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Frame - сообщение в websocket.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Feed - источник снапшота и обновлений. Реализуется monitor.Store.
type Feed interface {
	Snapshot() []domain.AgentSnapshot
	Subscribe() monitor.Subscriber
	Unsubscribe(sub monitor.Subscriber)
}

type StreamHandler struct {
	feed     Feed
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewStreamHandler(feed Feed, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			// Origin проверяет CORS на уровне роутера
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("ws"),
	}
}

// Serve шлет снапшот кэша, затем каждое изменение отдельным кадром.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Подписываемся до снапшота, чтобы не потерять изменения между ними
	sub := h.feed.Subscribe()
	defer h.feed.Unsubscribe(sub)

	h.logger.Debug("ws client connected", zap.String("remote", r.RemoteAddr))

	if err := h.write(conn, Frame{Type: frameSnapshot, Data: h.feed.Snapshot()}); err != nil {
		return
	}

	// Дедлайн чтения от http.Server переживает Hijack, поэтому продлеваем его по pong
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Читаем, чтобы заметить закрытие соединения клиентом
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			h.logger.Debug("ws client disconnected", zap.String("remote", r.RemoteAddr))
			return
		case u, ok := <-sub:
			if !ok {
				return
			}
			frame := Frame{Type: frameAgentUpdate, Data: u.Snapshot}
			if u.Removed {
				frame.Type = frameAgentRemoved
			}
			if err := h.write(conn, frame); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(f); err != nil {
		h.logger.Debug("ws write failed", zap.String("type", f.Type), zap.Error(err))
		return err
	}
	return nil
}
