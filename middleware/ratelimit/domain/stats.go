package domain

import (
	"context"
	"time"
)

// UnknownOrigin é usado quando o transporte não informa a origem do cliente.
const UnknownOrigin = "Unknown"

// StatsEvent é emitido após cada avaliação, para agregadores externos.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key    Key
	Rule   string
	Caller string
	Origin string

	Allowed  bool
	Degraded bool
	Count    int64

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// Quem chama trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
