// Package config carrega a configuração dos binários a partir do ambiente
// (e de um .env opcional).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"limitguard/middleware/ratelimit/domain"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	UpstreamURL string

	StoreBackend   string // redis | memory | sqlite
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisMaxRetry  int
	SQLitePath     string
	StoreTimeout   time.Duration
	FailMode       domain.FailMode
	KeyPrefix      string
	DegradedLogGap time.Duration

	Rule          string
	Limit         int64
	WindowSeconds int64

	KeyHeader    string
	TrustXFF     bool
	OriginHeader string

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration

	StatsRedis     bool
	StatsPrefix    string
	StatsTTL       time.Duration
	StatsTrackKeys bool
	MetricsEnabled bool

	LogLevel  string
	LogFormat string

	TLSCertFile string
	TLSKeyFile  string
}

// Load lê .env (se existir) e as variáveis de ambiente.
// Valores numéricos inválidos são erro de configuração.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv monta a configuração a partir de uma função de lookup (testes).
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{}

	cfg.ListenAddr = e.str("LISTEN_ADDR", ":8800")
	cfg.UpstreamURL = e.str("UPSTREAM_URL", "")

	cfg.StoreBackend = strings.ToLower(e.str("STORE_BACKEND", "redis"))
	cfg.RedisAddr = e.str("REDIS_ADDR", "127.0.0.1:6380")
	cfg.RedisPassword = e.str("REDIS_PASSWORD", "")
	cfg.RedisDB = e.int("REDIS_DB", 0)
	cfg.RedisMaxRetry = e.int("REDIS_MAX_RETRIES", 1)
	cfg.SQLitePath = e.str("SQLITE_PATH", "limitguard.db")
	cfg.StoreTimeout = e.duration("STORE_TIMEOUT", 250*time.Millisecond)
	cfg.KeyPrefix = e.str("KEY_PREFIX", domain.DefaultKeyPrefix)
	cfg.DegradedLogGap = e.duration("DEGRADED_LOG_INTERVAL", time.Second)

	mode := e.str("FAIL_MODE", "open")
	if m, ok := domain.ParseFailMode(mode); ok {
		cfg.FailMode = m
	} else {
		e.fail(fmt.Errorf("FAIL_MODE must be open or closed, got %q", mode))
	}

	cfg.Rule = e.str("RATE_RULE", domain.DefaultRuleName)
	cfg.Limit = int64(e.int("RATE_LIMIT", 10))
	cfg.WindowSeconds = int64(e.int("RATE_WINDOW_SECONDS", 60))

	cfg.KeyHeader = e.str("RATE_KEY_HEADER", "")
	cfg.TrustXFF = e.bool("TRUST_XFF", false)
	cfg.OriginHeader = e.str("ORIGIN_HEADER", "")

	cfg.ConcurrencyMax = e.int("CONCURRENCY_MAX", 100)
	cfg.ConcurrencyTimeout = e.duration("CONCURRENCY_TIMEOUT", 0)

	cfg.StatsRedis = e.bool("RATE_STATS_REDIS", false)
	cfg.StatsPrefix = e.str("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.StatsTTL = e.duration("RATE_STATS_TTL", 24*time.Hour)
	cfg.StatsTrackKeys = e.bool("RATE_STATS_TRACK_KEYS", false)
	cfg.MetricsEnabled = e.bool("METRICS_ENABLED", true)

	cfg.LogLevel = e.str("LOG_LEVEL", "info")
	cfg.LogFormat = e.str("LOG_FORMAT", "text")

	cfg.TLSCertFile = e.str("TLS_CERT_FILE", "server.cert")
	cfg.TLSKeyFile = e.str("TLS_KEY_FILE", "server.key")

	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultRule é a regra criada no startup.
func (c Config) DefaultRule() domain.Rule {
	return domain.Rule{Name: c.Rule, Limit: c.Limit, WindowSeconds: c.WindowSeconds}
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case "redis", "memory", "sqlite":
	default:
		return fmt.Errorf("STORE_BACKEND must be redis, memory or sqlite, got %q", c.StoreBackend)
	}
	if c.StoreBackend == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required when STORE_BACKEND=redis")
	}
	if c.StoreBackend == "sqlite" && strings.TrimSpace(c.SQLitePath) == "" {
		return errors.New("SQLITE_PATH is required when STORE_BACKEND=sqlite")
	}
	if c.StatsRedis && c.StoreBackend != "redis" {
		return errors.New("RATE_STATS_REDIS=true requires STORE_BACKEND=redis")
	}
	if err := c.DefaultRule().Validate(); err != nil {
		return fmt.Errorf("RATE_RULE/RATE_LIMIT/RATE_WINDOW_SECONDS: %w", err)
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

// env acumula o primeiro erro de parse para o Load devolver de uma vez.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *env) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return i
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return b
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return d
}
