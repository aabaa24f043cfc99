package application

import (
	"context"
	"time"

	"limitguard/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP. Ele fica à frente do rate limit no gateway.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Sem Pool, libera sempre.
// - Se `AcquireTimeout <= 0`, espera até o ctx da requisição cancelar.
// - Se `AcquireTimeout > 0`, espera no máximo o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// Load devolve (em uso, capacidade). Sem Pool, (0, 0).
func (s ConcurrencyService) Load() (int, int) {
	if s.Pool == nil {
		return 0, 0
	}
	return s.Pool.InUse(), s.Pool.Capacity()
}
