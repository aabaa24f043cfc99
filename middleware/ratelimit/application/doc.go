// Package application contém os casos de uso do rate limit de janela fixa e do
// limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
//   - Engine.Evaluate(ctx, rule, caller): chave + regra vigente + avaliação atômica no store
//   - Guard.Check(ctx, req): fail-open/fail-closed sobre o Engine + evento de estatística
//   - ConcurrencyService.Acquire(ctx): vaga com timeout
package application
