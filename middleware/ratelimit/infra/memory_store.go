package infra

import (
	"context"
	"sync"
	"time"

	"limitguard/middleware/ratelimit/domain"
)

// MemoryWindowStore é um store de janela fixa em memória, protegido por mutex.
//
// Só é compartilhado dentro do processo: útil para testes, desenvolvimento e
// instância única. Entradas expiradas são descartadas na próxima avaliação ou
// pelo janitor.
type MemoryWindowStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*windowEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type windowEntry struct {
	count     int64
	expiresAt time.Time
}

var (
	_ domain.WindowStore = (*MemoryWindowStore)(nil)
	_ domain.Pinger      = (*MemoryWindowStore)(nil)
)

type MemoryStoreOption func(*MemoryWindowStore)

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryWindowStore) { s.cleanupEvery = d }
}

func NewMemoryWindowStore(opts ...MemoryStoreOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries:      make(map[domain.Key]*windowEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate implementa domain.WindowStore.
func (s *MemoryWindowStore) Evaluate(ctx context.Context, key domain.Key, limit int64, window time.Duration) (domain.WindowResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.WindowResult{}, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		ent = &windowEntry{expiresAt: now.Add(window)}
		s.entries[key] = ent
	}
	ent.count++

	return domain.WindowResult{
		Allowed:      ent.count <= limit,
		Count:        ent.count,
		ResetSeconds: ceilSeconds(ent.expiresAt.Sub(now).Milliseconds()),
	}, nil
}

func (s *MemoryWindowStore) Ping(context.Context) error { return nil }

// Len devolve quantas janelas estão guardadas (inclusive expiradas ainda não limpas).
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove janelas expiradas.
func (s *MemoryWindowStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa janelas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

// DoneContext é o mínimo necessário para aceitar context.Context no janitor.
type DoneContext interface {
	Done() <-chan struct{}
}

func startJanitor(ctx DoneContext, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}
