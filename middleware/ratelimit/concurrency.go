package ratelimit

import (
	"net/http"
	"time"

	"limitguard/middleware/ratelimit/application"
	"limitguard/middleware/ratelimit/domain"
	"limitguard/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool permite compartilhar o semáforo (ex.: com o endpoint de status).
	// Se nil, um pool de Max vagas é criado.
	Pool domain.SlotPool
}

// ConcurrencyMiddleware limita requisições simultâneas; sem vaga dentro do
// timeout, responde RejectStatus (padrão 503).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				writeJSON(w, opts.RejectStatus, errorBody{
					Error:   http.StatusText(opts.RejectStatus),
					Message: "Server is at capacity. Try again later.",
				})
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
