package monitor

import "errors"

var (
	// ErrCycleInProgress - предыдущий цикл опроса еще не завершился.
	ErrCycleInProgress = errors.New("poll cycle already in progress")
	ErrCycleAborted    = errors.New("poll cycle aborted")
)
