// Package setup monta o limitador a partir da configuração: store, regras,
// stats e o Guard que o middleware usa.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"limitguard/internal/config"
	"limitguard/middleware/ratelimit/application"
	"limitguard/middleware/ratelimit/domain"
	"limitguard/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// App agrupa as peças montadas. Close libera conexões na ordem inversa.
type App struct {
	Store  domain.WindowStore
	Pinger domain.Pinger
	Redis  *redis.Client // nil fora do backend redis

	Rules *infra.RuleRegistry
	Stats *infra.MemoryStatsStore
	Guard *application.Guard

	closers []func() error
}

// Build monta tudo. reg nil desliga o exporter Prometheus mesmo com
// METRICS_ENABLED=true. Janitors dos stores locais param quando ctx terminar.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{}

	if err := app.buildStore(ctx, cfg, logger); err != nil {
		return nil, err
	}

	rules, err := infra.NewRuleRegistry(cfg.DefaultRule())
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Rules = rules

	stats, err := app.buildStats(cfg, reg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	engine := application.Engine{
		Store:        app.Store,
		Policies:     rules,
		KeyPrefix:    cfg.KeyPrefix,
		StoreTimeout: cfg.StoreTimeout,
	}
	app.Guard = application.NewGuard(engine, cfg.FailMode, stats, logger, cfg.DegradedLogGap)
	app.Guard.StatsTimeout = cfg.StoreTimeout
	return app, nil
}

func (a *App) buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	switch cfg.StoreBackend {
	case "memory":
		s := infra.NewMemoryWindowStore()
		s.StartJanitor(ctx)
		a.Store, a.Pinger = s, s
	case "sqlite":
		s, err := infra.NewSQLiteWindowStore(cfg.SQLitePath)
		if err != nil {
			return err
		}
		s.StartJanitor(ctx)
		a.Store, a.Pinger = s, s
		a.closers = append(a.closers, s.Close)
	case "redis":
		rdb := NewRedisClient(cfg)
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)
		s := infra.NewRedisWindowStore(rdb)
		a.Store, a.Pinger = s, s

		// Redis fora no startup não derruba o processo: o Guard degrada.
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unreachable at startup, serving degraded until it recovers",
				"addr", cfg.RedisAddr, "fail_mode", cfg.FailMode.String(), "err", err)
		} else {
			logger.Info("redis connected", "addr", cfg.RedisAddr)
		}
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return nil
}

// NewRedisClient cria o client com retry curto: 1 tentativa extra,
// backoff de 50ms a 2s. O deadline do ctx de cada comando chega ao socket,
// então STORE_TIMEOUT limita de fato a ida ao Redis.
func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  cfg.RedisAddr,
		Password:              cfg.RedisPassword,
		DB:                    cfg.RedisDB,
		MaxRetries:            cfg.RedisMaxRetry,
		MinRetryBackoff:       50 * time.Millisecond,
		MaxRetryBackoff:       2 * time.Second,
		DialTimeout:           2 * time.Second,
		ContextTimeoutEnabled: true,
	})
}

func (a *App) buildStats(cfg config.Config, reg prometheus.Registerer) (domain.StatsStore, error) {
	a.Stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.StatsTrackKeys))
	tee := infra.TeeStats{a.Stats}

	if cfg.StatsRedis {
		if a.Redis == nil {
			return nil, errors.New("redis stats require the redis store backend")
		}
		tee = append(tee, infra.NewRedisStatsStore(
			a.Redis,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsTrackKeys(cfg.StatsTrackKeys),
		))
	}
	if cfg.MetricsEnabled && reg != nil {
		p, err := infra.NewPrometheusStats(reg)
		if err != nil {
			return nil, fmt.Errorf("prometheus stats: %w", err)
		}
		tee = append(tee, p)
	}
	return tee, nil
}

// Close fecha o que Build abriu.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
