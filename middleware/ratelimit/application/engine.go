package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"limitguard/middleware/ratelimit/domain"
)

// DefaultStoreTimeout limita a ida ao store quando Engine.StoreTimeout não é definido.
const DefaultStoreTimeout = 250 * time.Millisecond

// Engine é o motor de decisão: monta a chave, resolve a regra vigente e pede ao
// store a avaliação atômica da janela.
//
// Ele não implementa fail-open; ErrStoreUnavailable é propagado para o Guard.
type Engine struct {
	Store    domain.WindowStore
	Policies domain.PolicyResolver

	// KeyPrefix é o namespace das chaves (padrão "ratelimit").
	KeyPrefix string
	// StoreTimeout limita a única espera do caminho de decisão.
	StoreTimeout time.Duration
}

// Evaluate devolve o veredito para (rule, caller).
//
// Em ErrStoreUnavailable o Verdict retornado ainda traz Limit/WindowSeconds da
// regra lida nesta avaliação, para a degradação não precisar reler a política.
func (e Engine) Evaluate(ctx context.Context, rule, caller string) (domain.Verdict, error) {
	if e.Policies == nil {
		return domain.Verdict{}, fmt.Errorf("%w: no policy resolver", domain.ErrUnknownRule)
	}
	r, err := e.Policies.Resolve(rule)
	if err != nil {
		return domain.Verdict{}, err
	}

	v := domain.Verdict{Limit: r.Limit, WindowSeconds: r.WindowSeconds}
	if e.Store == nil {
		return v, fmt.Errorf("%w: no store configured", domain.ErrStoreUnavailable)
	}

	timeout := e.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := e.Key(r.Name, caller)
	res, err := e.Store.Evaluate(evalCtx, key, r.Limit, r.Window())
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return v, err
	}

	v.Allowed = res.Allowed
	v.CurrentCount = res.Count
	v.ResetSeconds = res.ResetSeconds
	return v, nil
}

// Key devolve a chave avaliada para (rule, caller), com o KeyPrefix do Engine.
func (e Engine) Key(rule, caller string) domain.Key {
	return domain.BuildKey(e.KeyPrefix, rule, caller)
}
