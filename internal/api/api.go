// Package api expõe as rotas HTTP do LimitGuard: health, status, gestão de
// regras e o endpoint de teste protegido pelo limitador.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"limitguard/middleware/ratelimit/domain"
	"limitguard/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
)

const ServiceName = "LimitGuard"

// RuleAdmin é a interface de operador sobre as regras.
type RuleAdmin interface {
	Rules() []domain.Rule
	Update(name string, limit, windowSeconds int64) (domain.Rule, error)
}

// StatsReader lê os agregados em memória.
type StatsReader interface {
	Total() infra.Counters
	ByOrigin() map[string]infra.Counters
}

// LoadReader devolve (em uso, capacidade) do pool de concorrência.
type LoadReader interface {
	Load() (int, int)
}

type Server struct {
	Rules    RuleAdmin
	Stats    StatsReader
	Store    domain.Pinger
	Backend  string
	FailMode domain.FailMode
	Load     LoadReader // opcional

	// Rule é a regra do limitador; POST /api/rules sem "rule" altera esta.
	// Vazio usa domain.DefaultRuleName.
	Rule string

	// Limiter envolve só /api/test. nil deixa a rota sem limite.
	Limiter func(http.Handler) http.Handler
	// Metrics atende /metrics quando não é nil.
	Metrics http.Handler

	Logger  *slog.Logger
	Started time.Time
	Now     func() time.Time
}

// Routes monta o router. /api/status e /api/rules ficam fora do limitador.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.health)
	r.Get("/", s.index)
	r.Get("/api/status", s.status)
	r.Get("/api/rules", s.listRules)
	r.Post("/api/rules", s.updateRule)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Group(func(r chi.Router) {
		if s.Limiter != nil {
			r.Use(s.Limiter)
		}
		r.Get("/api/test", s.testGet)
		r.Post("/api/test", s.testPost)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP", "service": ServiceName})
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Welcome to LimitGuard! Try /api/test to see rate limiting in action.\n"))
}

type systemStatus struct {
	Uptime      float64 `json:"uptime"`
	Backend     string  `json:"backend"`
	StoreStatus string  `json:"storeStatus"`
	StoreError  string  `json:"storeError,omitempty"`
	LatencyMS   float64 `json:"latency"`
	FailMode    string  `json:"failMode"`
	InFlight    *int    `json:"inFlight,omitempty"`
	Capacity    *int    `json:"capacity,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

type metricsStatus struct {
	Total     int64            `json:"total"`
	Allowed   int64            `json:"allowed"`
	Blocked   int64            `json:"blocked"`
	Degraded  int64            `json:"degraded"`
	PassRate  float64          `json:"passRate"`
	BlockRate float64          `json:"blockRate"`
	Geo       map[string]int64 `json:"geo"`
}

type statusResponse struct {
	Success bool          `json:"success"`
	System  systemStatus  `json:"system"`
	Metrics metricsStatus `json:"metrics"`
	Rules   []domain.Rule `json:"rules"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	sys := systemStatus{
		Backend:     s.Backend,
		StoreStatus: "Disconnected",
		FailMode:    s.FailMode.String(),
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	if !s.Started.IsZero() {
		sys.Uptime = round(now.Sub(s.Started).Seconds(), 1)
	}
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		start := time.Now()
		err := s.Store.Ping(ctx)
		cancel()
		if err == nil {
			sys.StoreStatus = "Connected"
			sys.LatencyMS = round(float64(time.Since(start).Microseconds())/1000, 2)
		} else {
			sys.StoreError = err.Error()
		}
	}
	if s.Load != nil {
		inUse, capacity := s.Load.Load()
		sys.InFlight, sys.Capacity = &inUse, &capacity
	}

	resp := statusResponse{Success: true, System: sys, Rules: []domain.Rule{}}
	resp.Metrics = s.metrics()
	if s.Rules != nil {
		resp.Rules = s.Rules.Rules()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) metrics() metricsStatus {
	m := metricsStatus{PassRate: 100, Geo: map[string]int64{}}
	if s.Stats == nil {
		return m
	}
	t := s.Stats.Total()
	m.Total, m.Allowed, m.Blocked, m.Degraded = t.Total(), t.Allowed, t.Denied, t.Degraded
	if m.Total > 0 {
		m.PassRate = round(float64(m.Allowed)*100/float64(m.Total), 1)
		m.BlockRate = round(float64(m.Blocked)*100/float64(m.Total), 1)
	}
	for origin, c := range s.Stats.ByOrigin() {
		m.Geo[origin] = c.Total()
	}
	return m
}

func (s *Server) listRules(w http.ResponseWriter, _ *http.Request) {
	rules := []domain.Rule{}
	if s.Rules != nil {
		rules = s.Rules.Rules()
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rules": rules})
}

type ruleUpdate struct {
	Rule   string `json:"rule"`
	Limit  *int64 `json:"limit"`
	Window *int64 `json:"window"`
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	if s.Rules == nil {
		writeJSON(w, http.StatusNotFound, failure("rules are not configured"))
		return
	}
	var body ruleUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("invalid JSON body"))
		return
	}
	if body.Limit == nil || body.Window == nil {
		writeJSON(w, http.StatusBadRequest, failure("Missing limit or window"))
		return
	}
	name := body.Rule
	if name == "" {
		name = s.Rule
	}
	if name == "" {
		name = domain.DefaultRuleName
	}

	rule, err := s.Rules.Update(name, *body.Limit, *body.Window)
	switch {
	case errors.Is(err, domain.ErrUnknownRule):
		writeJSON(w, http.StatusNotFound, failure(err.Error()))
		return
	case errors.Is(err, domain.ErrInvalidPolicyUpdate):
		writeJSON(w, http.StatusBadRequest, failure(err.Error()))
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, failure(err.Error()))
		return
	}
	s.logger().Info("rule updated", "rule", rule.Name, "limit", rule.Limit, "window_seconds", rule.WindowSeconds)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Rule updated", "rule": rule})
}

func (s *Server) testGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Request Successful!",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) testPost(w http.ResponseWriter, r *http.Request) {
	var data any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&data); err != nil {
		data = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "POST Request Successful!", "data": data})
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "message": msg}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
