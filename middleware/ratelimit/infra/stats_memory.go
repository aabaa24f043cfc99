package infra

import (
	"context"
	"sync"

	"limitguard/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64 `json:"allowed"`
	Denied   int64 `json:"blocked"`
	Degraded int64 `json:"degraded"`
}

// Total é Allowed + Denied.
func (c Counters) Total() int64 { return c.Allowed + c.Denied }

// MemoryStatsStore agrega os eventos em memória: total, por rota, por origem e,
// opcionalmente, por chave.
//
// Não faz expiração; a cardinalidade por chave só é controlada por WithTrackKeys.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byRoute  map[string]Counters
	byOrigin map[string]Counters
	byKey    map[string]Counters

	trackKeys bool
}

var _ domain.StatsStore = (*MemoryStatsStore)(nil)

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute:  make(map[string]Counters),
		byOrigin: make(map[string]Counters),
		byKey:    make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path
	origin := ev.Origin
	if origin == "" {
		origin = domain.UnknownOrigin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bump(&s.total, ev)
	s.byRoute[route] = bumped(s.byRoute[route], ev)
	s.byOrigin[origin] = bumped(s.byOrigin[origin], ev)
	if s.trackKeys {
		s.byKey[string(ev.Key)] = bumped(s.byKey[string(ev.Key)], ev)
	}
	return nil
}

func bump(c *Counters, ev domain.StatsEvent) {
	if ev.Allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	if ev.Degraded {
		c.Degraded++
	}
}

func bumped(c Counters, ev domain.StatsEvent) Counters {
	bump(&c, ev)
	return c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byRoute)
}

func (s *MemoryStatsStore) ByOrigin() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byOrigin)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCounters(s.byKey)
}

func copyCounters(m map[string]Counters) map[string]Counters {
	out := make(map[string]Counters, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
