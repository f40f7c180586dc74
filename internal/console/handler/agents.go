package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/finesse-monitor/internal/domain"
)

// AgentReader - чтение кэша агентов. Реализуется monitor.Store.
type AgentReader interface {
	Snapshot() []domain.AgentSnapshot
	Get(loginID string) (domain.AgentSnapshot, bool)
}

type AgentHandler struct {
	agents AgentReader
}

func NewAgentHandler(agents AgentReader) *AgentHandler {
	return &AgentHandler{agents: agents}
}

// List отдает текущий кэш целиком. Пустой кэш - [], а не null.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.agents.Snapshot())
}

func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	loginID := chi.URLParam(r, "loginId")

	snap, ok := h.agents.Get(loginID)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
