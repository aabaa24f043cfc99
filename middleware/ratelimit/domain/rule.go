package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRuleName é a regra criada no startup.
const DefaultRuleName = "global"

// Rule é a cota de uma regra nomeada: Limit requisições a cada WindowSeconds.
type Rule struct {
	Name          string `json:"name"`
	Limit         int64  `json:"limit"`
	WindowSeconds int64  `json:"window"`
}

func (r Rule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Validate garante limite e janela positivos e um nome utilizável em chave.
func (r Rule) Validate() error {
	if err := ValidateRuleName(r.Name); err != nil {
		return err
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0, got %d", ErrInvalidPolicyUpdate, r.Limit)
	}
	if r.WindowSeconds <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %d", ErrInvalidPolicyUpdate, r.WindowSeconds)
	}
	return nil
}

// ValidateRuleName rejeita nomes vazios ou com ':'/espaços, que tornariam a chave ambígua.
func ValidateRuleName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidPolicyUpdate)
	}
	if strings.ContainsAny(name, ": \t\r\n") {
		return fmt.Errorf("%w: rule name %q must not contain ':' or whitespace", ErrInvalidPolicyUpdate, name)
	}
	return nil
}
