package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"limitguard/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Evaluator é o contrato do Engine visto pelo Guard.
type Evaluator interface {
	Evaluate(ctx context.Context, rule, caller string) (domain.Verdict, error)
}

// keyer é implementado por Evaluators que sabem a chave realmente avaliada.
type keyer interface {
	Key(rule, caller string) domain.Key
}

// Guard aplica a política de degradação sobre o Engine e emite o evento
// pós-avaliação para as estatísticas.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna um veredito.
type Guard struct {
	Engine Evaluator
	Mode   domain.FailMode
	Stats  domain.StatsStore
	Logger *slog.Logger

	// StatsTimeout limita a gravação de estatísticas (padrão DefaultStoreTimeout).
	// O registro não herda o cancelamento da requisição.
	StatsTimeout time.Duration

	// degradedLog evita inundar o log durante uma queda do store.
	degradedLog *rate.Sometimes
}

// DefaultDegradedLogInterval é o intervalo mínimo entre logs de degradação.
const DefaultDegradedLogInterval = time.Second

// NewGuard cria um Guard com log de degradação limitado a uma linha por intervalo.
func NewGuard(engine Evaluator, mode domain.FailMode, stats domain.StatsStore, logger *slog.Logger, logEvery time.Duration) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if logEvery <= 0 {
		logEvery = DefaultDegradedLogInterval
	}
	return &Guard{
		Engine:      engine,
		Mode:        mode,
		Stats:       stats,
		Logger:      logger,
		degradedLog: &rate.Sometimes{First: 1, Interval: logEvery},
	}
}

// Check decide a requisição.
//
// Sucesso do store: o veredito passa inalterado.
// ErrStoreUnavailable: veredito sintético degradado (admite em FailOpen, nega em FailClosed).
// Qualquer outro erro (ex.: ErrUnknownRule) é devolvido a quem chamou; não é erro de tráfego.
func (g *Guard) Check(ctx context.Context, req domain.Request) (domain.Verdict, error) {
	v, err := g.Engine.Evaluate(ctx, req.Rule, req.Caller)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			g.logger().Error("rate limit configuration error", "rule", req.Rule, "err", err)
			return domain.Verdict{}, err
		}
		v = domain.DegradedVerdict(domain.Rule{
			Name:          req.Rule,
			Limit:         v.Limit,
			WindowSeconds: v.WindowSeconds,
		}, g.Mode)
		g.logDegraded(req.Rule, err)
	}

	g.record(ctx, req, v)
	return v, nil
}

func (g *Guard) logDegraded(rule string, err error) {
	do := func() {
		g.logger().Warn("rate limit store unavailable, degrading", "mode", g.Mode.String(), "rule", rule, "err", err)
	}
	if g.degradedLog == nil {
		do()
		return
	}
	g.degradedLog.Do(do)
}

func (g *Guard) record(ctx context.Context, req domain.Request, v domain.Verdict) {
	if g.Stats == nil {
		return
	}
	origin := req.Origin
	if origin == "" {
		origin = domain.UnknownOrigin
	}
	key := domain.BuildKey("", req.Rule, req.Caller)
	if k, ok := g.Engine.(keyer); ok {
		key = k.Key(req.Rule, req.Caller)
	}

	timeout := g.StatsTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	_ = g.Stats.Record(recCtx, domain.StatsEvent{
		Key:      key,
		Rule:     req.Rule,
		Caller:   req.Caller,
		Origin:   origin,
		Allowed:  v.Allowed,
		Degraded: v.Degraded,
		Count:    v.CurrentCount,
		Method:   req.Method,
		Path:     req.Path,
		At:       time.Now(),
	})
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
