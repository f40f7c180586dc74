package finesse

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrUnexpectedShape  = errors.New("unexpected document shape")
	ErrEmptyDocument    = errors.New("empty document")
	ErrCircuitOpen      = errors.New("finesse circuit breaker is open")
)

// ClientError - ошибка обращения к Finesse: транспорт, авторизация или статус ответа.
type ClientError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("finesse %s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("finesse %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// DecodeError - ответ Finesse не удалось разобрать как ожидаемый XML.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode finesse xml: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
