package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"limitguard/internal/config"
	"limitguard/internal/setup"
	"limitguard/middleware/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	logger := setup.NewLogger(cfg.LogLevel, cfg.LogFormat, nil)

	if cfg.UpstreamURL == "" {
		logger.Error("UPSTREAM_URL is required")
		os.Exit(1)
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		logger.Error("invalid UPSTREAM_URL", "err", err)
		os.Exit(1)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", "path", r.URL.Path, "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	app, err := setup.Build(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("setup error", "err", err)
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	h := http.Handler(proxy)
	h = ratelimit.Middleware(ratelimit.Options{
		Guard:              app.Guard,
		Rule:               cfg.Rule,
		KeyHeader:          cfg.KeyHeader,
		TrustXForwardedFor: cfg.TrustXFF,
		OriginFn:           ratelimit.HeaderOriginFunc(cfg.OriginHeader),
		Logger:             logger,
	})(h)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
	})(h)

	r := chi.NewRouter()
	if cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	r.Handle("/*", h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	rule := cfg.DefaultRule()
	logger.Info("gateway listening", "addr", cfg.ListenAddr, "upstream", target.String())
	logger.Info("rate", "rule", rule.Name, "limit", rule.Limit, "window_seconds", rule.WindowSeconds,
		"backend", cfg.StoreBackend, "fail_mode", cfg.FailMode.String(), "key_header", cfg.KeyHeader, "trust_xff", cfg.TrustXFF)
	logger.Info("rate-stats", "redis", cfg.StatsRedis, "prefix", cfg.StatsPrefix, "ttl", cfg.StatsTTL, "track_keys", cfg.StatsTrackKeys)
	logger.Info("concurrency", "max", cfg.ConcurrencyMax, "acquire_timeout", cfg.ConcurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
