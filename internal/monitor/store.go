package monitor

import (
	"sort"
	"sync"

	"github.com/xela07ax/finesse-monitor/internal/domain"
)

// Update - событие для подписчиков кэша (websocket).
type Update struct {
	Snapshot domain.AgentSnapshot
	Removed  bool
}

type Subscriber chan Update

const subscriberBuffer = 64

// Store - кэш последних снапшотов агентов, ключ - loginId.
// Пишет только Poller, читают HTTP-обработчики. Каждый снапшот заменяется целиком,
// поэтому читатель может увидеть цикл применённым частично, но не половину снапшота.
type Store struct {
	mu     sync.RWMutex
	agents map[string]domain.AgentSnapshot
	subs   []Subscriber
}

func NewStore() *Store {
	return &Store{
		agents: make(map[string]domain.AgentSnapshot),
	}
}

// Put записывает снапшот поверх предыдущего и возвращает предыдущий, если он был.
// Подписчики получают только реальные изменения: обновление одного LastUpdate не рассылается.
func (s *Store) Put(snap domain.AgentSnapshot) (domain.AgentSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.agents[snap.LoginID]
	s.agents[snap.LoginID] = snap
	if !ok || !prev.SameAs(snap) {
		s.notify(Update{Snapshot: snap})
	}

	return prev, ok
}

func (s *Store) Get(loginID string) (domain.AgentSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.agents[loginID]
	return snap, ok
}

// Snapshot возвращает копию кэша, отсортированную по loginId. Пустой кэш - пустой срез, не nil.
func (s *Store) Snapshot() []domain.AgentSnapshot {
	s.mu.RLock()
	res := make([]domain.AgentSnapshot, 0, len(s.agents))
	for _, a := range s.agents {
		res = append(res, a)
	}
	s.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].LoginID < res[j].LoginID })
	return res
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// Prune удаляет агентов, которых нет в keep, и возвращает удаленные снапшоты.
func (s *Store) Prune(keep map[string]struct{}) []domain.AgentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []domain.AgentSnapshot
	for id, snap := range s.agents {
		if _, ok := keep[id]; ok {
			continue
		}
		delete(s.agents, id)
		removed = append(removed, snap)
		s.notify(Update{Snapshot: snap, Removed: true})
	}

	sort.Slice(removed, func(i, j int) bool { return removed[i].LoginID < removed[j].LoginID })
	return removed
}

func (s *Store) Subscribe() Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(Subscriber, subscriberBuffer)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) Unsubscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.subs {
		if c == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(c)
			break
		}
	}
}

// Subscribers - число активных подписок.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// notify вызывается под s.mu. Медленный подписчик теряет событие, а не тормозит цикл.
func (s *Store) notify(u Update) {
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
