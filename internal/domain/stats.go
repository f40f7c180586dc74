package domain

import "time"

// DashboardStats - сводка для шапки дашборда.
type DashboardStats struct {
	TotalAgents int            `json:"totalAgents"`
	ByState     map[string]int `json:"byState"`
	Talking     int            `json:"talking"`

	// Состояние цикла опроса
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Cycles              int64      `json:"cycles"`
}
