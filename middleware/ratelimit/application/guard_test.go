package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"limitguard/middleware/ratelimit/domain"
)

type recordingStats struct {
	mu     sync.Mutex
	events []domain.StatsEvent
}

func (s *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuard_PassesVerdictThrough(t *testing.T) {
	stats := &recordingStats{}
	eng := Engine{
		Store:    newCountingStore(),
		Policies: newFakeResolver(domain.Rule{Name: "global", Limit: 1, WindowSeconds: 60}),
	}
	g := NewGuard(eng, domain.FailOpen, stats, quietLogger(), 0)

	req := domain.Request{Rule: "global", Caller: "10.0.0.1", Origin: "BR", Method: "GET", Path: "/api/test"}
	v1, err := g.Check(context.Background(), req)
	if err != nil || !v1.Allowed || v1.Degraded {
		t.Fatalf("expected allowed verdict, got %+v err=%v", v1, err)
	}
	v2, err := g.Check(context.Background(), req)
	if err != nil || v2.Allowed {
		t.Fatalf("expected denied verdict, got %+v err=%v", v2, err)
	}

	if len(stats.events) != 2 {
		t.Fatalf("expected 2 stats events, got %d", len(stats.events))
	}
	if !stats.events[0].Allowed || stats.events[1].Allowed {
		t.Fatalf("unexpected allowed flags in events %+v", stats.events)
	}
	if stats.events[0].Origin != "BR" || stats.events[0].Path != "/api/test" {
		t.Fatalf("unexpected event %+v", stats.events[0])
	}
}

func TestGuard_FailOpenOnStoreUnavailable(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("dial tcp: connection refused")
	stats := &recordingStats{}
	eng := Engine{
		Store:    store,
		Policies: newFakeResolver(domain.Rule{Name: "global", Limit: 2, WindowSeconds: 45}),
	}
	g := NewGuard(eng, domain.FailOpen, stats, quietLogger(), 0)

	for i := 0; i < 5; i++ {
		v, err := g.Check(context.Background(), domain.Request{Rule: "global", Caller: "10.0.0.1"})
		if err != nil {
			t.Fatalf("expected store failure to be absorbed, got %v", err)
		}
		if !v.Allowed || !v.Degraded {
			t.Fatalf("expected allowed degraded verdict, got %+v", v)
		}
		if v.CurrentCount != 0 || v.Limit != 2 || v.WindowSeconds != 45 || v.ResetSeconds != 45 {
			t.Fatalf("unexpected synthetic verdict %+v", v)
		}
	}

	// loja volta: não há penalidade retroativa
	store.err = nil
	v, err := g.Check(context.Background(), domain.Request{Rule: "global", Caller: "10.0.0.1"})
	if err != nil || !v.Allowed || v.Degraded || v.CurrentCount != 1 {
		t.Fatalf("expected fresh count after recovery, got %+v err=%v", v, err)
	}

	if len(stats.events) != 6 || !stats.events[0].Degraded || stats.events[0].Origin != domain.UnknownOrigin {
		t.Fatalf("expected degraded events to be recorded, got %+v", stats.events)
	}
}

func TestGuard_FailClosedDeniesOnStoreUnavailable(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("timeout")
	eng := Engine{
		Store:    store,
		Policies: newFakeResolver(domain.Rule{Name: "global", Limit: 2, WindowSeconds: 45}),
	}
	g := NewGuard(eng, domain.FailClosed, nil, quietLogger(), 0)

	v, err := g.Check(context.Background(), domain.Request{Rule: "global", Caller: "10.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Allowed || !v.Degraded {
		t.Fatalf("expected denied degraded verdict, got %+v", v)
	}
}

func TestGuard_UnknownRuleIsNotAbsorbed(t *testing.T) {
	stats := &recordingStats{}
	eng := Engine{Store: newCountingStore(), Policies: newFakeResolver()}
	g := NewGuard(eng, domain.FailOpen, stats, quietLogger(), 0)

	_, err := g.Check(context.Background(), domain.Request{Rule: "nope", Caller: "10.0.0.1"})
	if !errors.Is(err, domain.ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule, got %v", err)
	}
	if len(stats.events) != 0 {
		t.Fatalf("expected no stats for configuration errors")
	}
}

func TestGuard_ZeroValueLogsWithoutThrottle(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("down")
	g := &Guard{
		Engine: Engine{Store: store, Policies: newFakeResolver(domain.Rule{Name: "global", Limit: 1, WindowSeconds: 1})},
		Logger: quietLogger(),
	}

	v, err := g.Check(context.Background(), domain.Request{Rule: "global", Caller: "x"})
	if err != nil || !v.Allowed || !v.Degraded {
		t.Fatalf("expected fail-open by default, got %+v err=%v", v, err)
	}
}

// blockingStats só retorna quando o ctx recebido termina.
type blockingStats struct {
	hadDeadline bool
}

func (s *blockingStats) Record(ctx context.Context, _ domain.StatsEvent) error {
	_, s.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestGuard_StatsRecordingIsBounded(t *testing.T) {
	store := newCountingStore()
	store.err = errors.New("down")
	stats := &blockingStats{}
	eng := Engine{
		Store:    store,
		Policies: newFakeResolver(domain.Rule{Name: "global", Limit: 1, WindowSeconds: 60}),
	}
	g := NewGuard(eng, domain.FailOpen, stats, quietLogger(), 0)
	g.StatsTimeout = 30 * time.Millisecond

	start := time.Now()
	v, err := g.Check(context.Background(), domain.Request{Rule: "global", Caller: "c"})
	elapsed := time.Since(start)
	if err != nil || !v.Allowed || !v.Degraded {
		t.Fatalf("expected degraded pass, got %+v err=%v", v, err)
	}
	if !stats.hadDeadline {
		t.Fatalf("stats must receive a context with a deadline")
	}
	if elapsed > time.Second {
		t.Fatalf("a hung stats sink stalled the decision for %s", elapsed)
	}
}

// ctxStats guarda o erro do ctx visto no momento do registro.
type ctxStats struct {
	errs []error
}

func (s *ctxStats) Record(ctx context.Context, _ domain.StatsEvent) error {
	s.errs = append(s.errs, ctx.Err())
	return nil
}

func TestGuard_StatsSurviveCanceledRequest(t *testing.T) {
	stats := &ctxStats{}
	eng := Engine{
		Store:    newCountingStore(),
		Policies: newFakeResolver(domain.Rule{Name: "global", Limit: 5, WindowSeconds: 60}),
	}
	g := NewGuard(eng, domain.FailOpen, stats, quietLogger(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Check(ctx, domain.Request{Rule: "global", Caller: "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.errs) != 1 || stats.errs[0] != nil {
		t.Fatalf("stats context must not inherit the request cancellation, got %v", stats.errs)
	}
}

func TestGuard_StatsKeyUsesEnginePrefix(t *testing.T) {
	stats := &recordingStats{}
	store := newCountingStore()
	eng := Engine{
		Store:     store,
		Policies:  newFakeResolver(domain.Rule{Name: "global", Limit: 5, WindowSeconds: 60}),
		KeyPrefix: "lg",
	}
	g := NewGuard(eng, domain.FailOpen, stats, quietLogger(), 0)

	if _, err := g.Check(context.Background(), domain.Request{Rule: "global", Caller: "10.0.0.1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.keys) != 1 || len(stats.events) != 1 {
		t.Fatalf("expected one evaluation and one event, got %d/%d", len(store.keys), len(stats.events))
	}
	if stats.events[0].Key != "lg:global:10.0.0.1" || stats.events[0].Key != store.keys[0] {
		t.Fatalf("stats key %q must match the evaluated key %q", stats.events[0].Key, store.keys[0])
	}
}
