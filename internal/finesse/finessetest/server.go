// Package finessetest поднимает фейковый Finesse REST API поверх httptest.NewTLSServer.
package finessetest

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/finesse-monitor/internal/infra"
)

const (
	User = "administrator"
	Pass = "C1sco12345"
)

// Agent описывает пользователя для UsersXML. Пустые поля в XML не попадают.
type Agent struct {
	LoginID   string
	Extension string
	State     string
}

// Dialog описывает звонок для DialogsXML.
type Dialog struct {
	ID          string
	FromAddress string
	ToAddress   string
}

// Server - фейковый Finesse. Ответы можно менять на лету.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	users       string
	usersStatus int
	dialogs     map[string]string
	dialogsFail map[string]int
	hits        map[string]int
}

func NewServer() *Server {
	s := &Server{
		users:       UsersXML(),
		usersStatus: http.StatusOK,
		dialogs:     make(map[string]string),
		dialogsFail: make(map[string]int),
		hits:        make(map[string]int),
	}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	return s
}

// Config возвращает FinesseConfig, указывающий на этот сервер.
func (s *Server) Config() infra.FinesseConfig {
	u, _ := url.Parse(s.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	return infra.FinesseConfig{
		Host:               host,
		Port:               port,
		User:               User,
		Pass:               Pass,
		InsecureSkipVerify: true,
		RequestTimeout:     2 * time.Second,
	}
}

func (s *Server) SetUsers(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = body
	s.usersStatus = http.StatusOK
}

// FailUsers заставляет /Users отвечать статусом code.
func (s *Server) FailUsers(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersStatus = code
}

func (s *Server) SetDialogs(agentID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[agentID] = body
	delete(s.dialogsFail, agentID)
}

// FailDialogs заставляет /User/{agentID}/Dialogs отвечать статусом code.
func (s *Server) FailDialogs(agentID string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogsFail[agentID] = code
}

// Hits - сколько раз запрашивался path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits[r.URL.Path]++

	user, pass, ok := r.BasicAuth()
	if !ok || user != User || pass != Pass {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/finesse/api/Users":
		if s.usersStatus != http.StatusOK {
			w.WriteHeader(s.usersStatus)
			return
		}
		writeXML(w, s.users)

	case strings.HasPrefix(r.URL.Path, "/finesse/api/User/") && strings.HasSuffix(r.URL.Path, "/Dialogs"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/finesse/api/User/"), "/Dialogs")
		if code, ok := s.dialogsFail[id]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := s.dialogs[id]
		if !ok {
			body = DialogsXML()
		}
		writeXML(w, body)

	default:
		http.NotFound(w, r)
	}
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(body))
}

// UsersXML строит тело ответа /finesse/api/Users.
func UsersXML(agents ...Agent) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString("<Users>")
	for _, a := range agents {
		b.WriteString("<User>")
		writeElem(&b, "loginId", a.LoginID)
		writeElem(&b, "extension", a.Extension)
		writeElem(&b, "state", a.State)
		b.WriteString("</User>")
	}
	b.WriteString("</Users>")
	return b.String()
}

// DialogsXML строит тело ответа /finesse/api/User/{id}/Dialogs.
func DialogsXML(dialogs ...Dialog) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString("<Dialogs>")
	for _, d := range dialogs {
		b.WriteString("<Dialog>")
		writeElem(&b, "id", d.ID)
		writeElem(&b, "fromAddress", d.FromAddress)
		writeElem(&b, "toAddress", d.ToAddress)
		b.WriteString("<state>ACTIVE</state>")
		b.WriteString("</Dialog>")
	}
	b.WriteString("</Dialogs>")
	return b.String()
}

func writeElem(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<%s>%s</%s>", name, value, name)
}
