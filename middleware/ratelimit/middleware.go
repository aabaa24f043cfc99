package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"limitguard/middleware/ratelimit/domain"
)

// Nomes dos headers de cota.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderWindow    = "X-RateLimit-Window"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderStatus    = "X-RateLimit-Status"
)

// CallerFunc extrai a identidade do cliente. Vazio vira domain.UnknownCaller.
type CallerFunc func(r *http.Request) string

// OriginFunc extrai o rótulo de origem (ex.: país) usado nas estatísticas.
type OriginFunc func(r *http.Request) string

// Checker é o caso de uso de decisão (application.Guard).
type Checker interface {
	Check(ctx context.Context, req domain.Request) (domain.Verdict, error)
}

type Options struct {
	Guard Checker
	// Rule é a regra avaliada por este middleware (padrão "global").
	Rule string

	CallerFn           CallerFunc
	KeyHeader          string
	TrustXForwardedFor bool

	OriginFn OriginFunc

	Logger *slog.Logger
}

// DefaultCallerFunc usa, nesta ordem: o header configurado, o primeiro IP do
// X-Forwarded-For (se confiável) e o host do RemoteAddr. Sem nada disso, "unknown".
func DefaultCallerFunc(keyHeader string, trustXFF bool) CallerFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return domain.UnknownCaller
	}
}

// HeaderOriginFunc lê a origem de um header preenchido pela borda (ex.: CF-IPCountry).
func HeaderOriginFunc(header string) OriginFunc {
	return func(r *http.Request) string {
		if header == "" {
			return domain.UnknownOrigin
		}
		if v := strings.ToUpper(strings.TrimSpace(r.Header.Get(header))); v != "" {
			return v
		}
		return domain.UnknownOrigin
	}
}

// Middleware aplica o rate limit de janela fixa.
//
// Permitido: segue para o próximo handler com os headers de cota.
// Negado: 429 com corpo JSON e os mesmos headers.
// Degradado: marca X-RateLimit-Status (Fail-Open ou Fail-Closed).
// Regra desconhecida: 500, é erro de configuração e não de tráfego.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Rule == "" {
		opts.Rule = domain.DefaultRuleName
	}
	if opts.CallerFn == nil {
		opts.CallerFn = DefaultCallerFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.OriginFn == nil {
		opts.OriginFn = HeaderOriginFunc("")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if opts.Guard == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := opts.Guard.Check(r.Context(), domain.Request{
				Rule:   opts.Rule,
				Caller: opts.CallerFn(r),
				Origin: opts.OriginFn(r),
				Method: r.Method,
				Path:   r.URL.Path,
			})
			if err != nil {
				if !errors.Is(err, domain.ErrUnknownRule) {
					opts.Logger.Error("rate limit check failed", "rule", opts.Rule, "err", err)
				}
				writeJSON(w, http.StatusInternalServerError, errorBody{
					Error:   http.StatusText(http.StatusInternalServerError),
					Message: "Rate limit rule is not configured.",
				})
				return
			}

			setQuotaHeaders(w.Header(), v)
			if !v.Allowed {
				writeJSON(w, http.StatusTooManyRequests, errorBody{
					Error:   "Too Many Requests",
					Message: "Rate limit exceeded. Try again in " + formatInt64(v.ResetSeconds) + " seconds.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setQuotaHeaders(h http.Header, v domain.Verdict) {
	h.Set(HeaderLimit, formatInt64(v.Limit))
	h.Set(HeaderWindow, formatInt64(v.WindowSeconds))
	h.Set(HeaderRemaining, formatInt64(v.Remaining()))
	h.Set(HeaderReset, formatInt64(v.ResetSeconds))
	if v.Degraded {
		if v.Allowed {
			h.Set(HeaderStatus, "Fail-Open")
		} else {
			h.Set(HeaderStatus, "Fail-Closed")
		}
	}
}
