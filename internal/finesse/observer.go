package finesse

import "time"

// Observer получает телеметрию по запросам к Finesse. Реализуется метриками монитора.
type Observer interface {
	ObserveRequest(op, result string, took time.Duration)
	ObserveBreaker(name string, open bool)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, time.Duration) {}
func (nopObserver) ObserveBreaker(string, bool)                  {}
