package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"limitguard/internal/api"
	"limitguard/internal/config"
	"limitguard/internal/setup"
	"limitguard/middleware/ratelimit"
	"limitguard/middleware/ratelimit/application"
	"limitguard/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	logger := setup.NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := setup.Build(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("setup error", "err", err)
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	srv := &api.Server{
		Rules:    app.Rules,
		Stats:    app.Stats,
		Store:    app.Pinger,
		Backend:  cfg.StoreBackend,
		FailMode: cfg.FailMode,
		Rule:     cfg.Rule,
		Limiter: ratelimit.Middleware(ratelimit.Options{
			Guard:              app.Guard,
			Rule:               cfg.Rule,
			KeyHeader:          cfg.KeyHeader,
			TrustXForwardedFor: cfg.TrustXFF,
			OriginFn:           ratelimit.HeaderOriginFunc(cfg.OriginHeader),
			Logger:             logger,
		}),
		Logger:  logger,
		Started: time.Now(),
	}
	if cfg.MetricsEnabled {
		srv.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	h := http.Handler(srv.Routes())
	if cfg.ConcurrencyMax > 0 {
		pool := infra.NewChanPool(cfg.ConcurrencyMax)
		srv.Load = application.ConcurrencyService{Pool: pool}
		h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool:           pool,
			AcquireTimeout: cfg.ConcurrencyTimeout,
		})(h)
	}

	hs := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	rule := cfg.DefaultRule()
	logger.Info("rate limit configured",
		"rule", rule.Name, "limit", rule.Limit, "window_seconds", rule.WindowSeconds,
		"backend", cfg.StoreBackend, "fail_mode", cfg.FailMode.String(), "store_timeout", cfg.StoreTimeout)

	tls := fileExists(cfg.TLSCertFile) && fileExists(cfg.TLSKeyFile)
	if tls {
		logger.Info("limitguard listening", "addr", cfg.ListenAddr, "protocol", "https")
		err = hs.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		logger.Info("tls certificates not found, serving plain http", "cert", cfg.TLSCertFile, "key", cfg.TLSKeyFile)
		logger.Info("limitguard listening", "addr", cfg.ListenAddr, "protocol", "http")
		err = hs.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
