package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"strings"
	"time"
)

// Key é o endereço do contador no store compartilhado.
type Key string

const (
	// DefaultKeyPrefix é o namespace padrão das chaves no store.
	DefaultKeyPrefix = "ratelimit"

	// UnknownCaller substitui a identidade do cliente quando ela não pode ser
	// determinada. A requisição nunca é bloqueada por falta de identidade.
	UnknownCaller = "unknown"
)

// BuildKey deriva a chave de rate limit a partir da regra e da identidade do cliente.
// Formato: <prefix>:<rule>:<caller>.
func BuildKey(prefix, rule, caller string) Key {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = UnknownCaller
	}
	return Key(prefix + ":" + rule + ":" + caller)
}

// WindowResult é o retorno da avaliação atômica de uma janela fixa.
type WindowResult struct {
	Allowed bool
	// Count é o número real de tentativas na janela (continua subindo após o limite).
	Count int64
	// ResetSeconds é o TTL restante da janela, em segundos arredondados para cima.
	ResetSeconds int64
}

// WindowStore executa, numa única operação indivisível, o incremento do contador,
// a definição da expiração quando a janela nasce e a leitura do TTL.
//
// Qualquer falha (rede, timeout, resposta inválida) deve ser retornada envolvendo
// ErrStoreUnavailable. A decisão de fail-open não pertence ao store.
type WindowStore interface {
	Evaluate(ctx context.Context, key Key, limit int64, window time.Duration) (WindowResult, error)
}

// Pinger é implementado por stores que sabem verificar a própria conectividade.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyResolver devolve a regra vigente no momento da avaliação.
// A leitura é local e não bloqueante; nunca acessa a rede.
type PolicyResolver interface {
	Resolve(name string) (Rule, error)
}

// Request é a entrada do caso de uso de decisão.
type Request struct {
	Rule   string
	Caller string

	// Origin é um rótulo fornecido pelo transporte (ex.: país) usado só em estatísticas.
	Origin string
	Method string
	Path   string
}

// FailMode define o que fazer quando o store compartilhado está indisponível.
type FailMode int

const (
	// FailOpen admite a requisição e marca o veredito como degradado.
	FailOpen FailMode = iota
	// FailClosed nega a requisição enquanto o store estiver fora.
	FailClosed
)

func (m FailMode) String() string {
	switch m {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseFailMode aceita "open" ou "closed" (sem diferenciar maiúsculas).
func ParseFailMode(s string) (FailMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "fail-open":
		return FailOpen, true
	case "closed", "fail-closed":
		return FailClosed, true
	default:
		return FailOpen, false
	}
}
