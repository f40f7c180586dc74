package domain

import "time"

// StateChange - смена статуса агента, обнаруженная циклом опроса.
// From пустой, если агент появился впервые; To пустой, если агент удален из кэша.
type StateChange struct {
	ID        string    `json:"id"`
	CycleID   string    `json:"cycleId"`
	LoginID   string    `json:"loginId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Extension string    `json:"extension"`
	CallID    string    `json:"callId"`
	Timestamp time.Time `json:"timestamp"`
}
