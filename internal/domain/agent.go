package domain

import "time"

// NotAvailable - заглушка для отсутствующих данных. Ни одно отображаемое поле снапшота не бывает пустым.
const NotAvailable = "N/A"

// Статусы агента в Finesse. Список не закрытый: Finesse может вернуть любой другой,
// он хранится и отображается как есть.
const (
	StateReady    = "READY"
	StateNotReady = "NOT_READY"
	StateTalking  = "TALKING"
	StateUnknown  = "UNKNOWN"
)

// CallInfo - данные активного звонка агента.
type CallInfo struct {
	CallID     string `json:"callId"`
	FromNumber string `json:"fromNumber"`
	ToNumber   string `json:"toNumber"`
}

// NoCall возвращает CallInfo, в котором все поля равны N/A.
func NoCall() CallInfo {
	return CallInfo{
		CallID:     NotAvailable,
		FromNumber: NotAvailable,
		ToNumber:   NotAvailable,
	}
}

// AgentSnapshot - закэшированное состояние одного агента.
type AgentSnapshot struct {
	LoginID    string    `json:"loginId"`
	Extension  string    `json:"extension"`
	State      string    `json:"state"`
	CallID     string    `json:"callId"`
	FromNumber string    `json:"fromNumber"`
	ToNumber   string    `json:"toNumber"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// NewSnapshot собирает снапшот и подставляет N/A (UNKNOWN для статуса) вместо пустых значений.
func NewSnapshot(loginID, extension, state string, call CallInfo, at time.Time) AgentSnapshot {
	if state == "" {
		state = StateUnknown
	}
	return AgentSnapshot{
		LoginID:    loginID,
		Extension:  OrNA(extension),
		State:      state,
		CallID:     OrNA(call.CallID),
		FromNumber: OrNA(call.FromNumber),
		ToNumber:   OrNA(call.ToNumber),
		LastUpdate: at,
	}
}

// Call возвращает звонковую часть снапшота.
func (s AgentSnapshot) Call() CallInfo {
	return CallInfo{CallID: s.CallID, FromNumber: s.FromNumber, ToNumber: s.ToNumber}
}

// SameAs сравнивает снапшоты без учета LastUpdate.
func (s AgentSnapshot) SameAs(o AgentSnapshot) bool {
	return s.LoginID == o.LoginID &&
		s.Extension == o.Extension &&
		s.State == o.State &&
		s.Call() == o.Call()
}

// OrNA возвращает v или N/A, если v пустая.
func OrNA(v string) string {
	if v == "" {
		return NotAvailable
	}
	return v
}
