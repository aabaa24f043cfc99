package domain

import "errors"

var (
	// ErrStoreUnavailable cobre store inacessível, timeout e resposta malformada.
	// É absorvido pela política de degradação e nunca chega ao cliente HTTP como erro.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrUnknownRule indica erro de configuração: a regra pedida não existe.
	ErrUnknownRule = errors.New("ratelimit: unknown rule")

	// ErrInvalidPolicyUpdate indica entrada administrativa inválida; o estado não muda.
	ErrInvalidPolicyUpdate = errors.New("ratelimit: invalid policy update")
)
