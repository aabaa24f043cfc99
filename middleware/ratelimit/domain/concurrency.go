package domain

import "context"

// SlotPool limita quantas requisições ficam em processamento ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar; a função de
// release retornada deve ser chamada exatamente uma vez.
// InUse/Capacity existem para o endpoint de status.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
	Capacity() int
}
