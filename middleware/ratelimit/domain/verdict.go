package domain

// Verdict é a decisão allow/deny de uma requisição, com os metadados de cota.
type Verdict struct {
	Allowed       bool
	CurrentCount  int64
	Limit         int64
	WindowSeconds int64
	ResetSeconds  int64
	// Degraded indica que o veredito foi produzido com o store indisponível.
	Degraded bool
}

// Remaining é max(0, Limit-CurrentCount).
func (v Verdict) Remaining() int64 {
	if r := v.Limit - v.CurrentCount; r > 0 {
		return r
	}
	return 0
}

// DegradedVerdict monta o veredito sintético usado quando o store está fora.
// Não há contagem real: CurrentCount é 0 e o reset é a janela inteira.
func DegradedVerdict(rule Rule, mode FailMode) Verdict {
	return Verdict{
		Allowed:       mode == FailOpen,
		CurrentCount:  0,
		Limit:         rule.Limit,
		WindowSeconds: rule.WindowSeconds,
		ResetSeconds:  rule.WindowSeconds,
		Degraded:      true,
	}
}
