package infra

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"limitguard/middleware/ratelimit/domain"
)

// RuleRegistry guarda as regras vigentes num snapshot copy-on-write.
//
// Leitores fazem um único Load atômico e sempre veem o par (limit, window)
// inteiro, antigo ou novo. Escritores são serializados pelo mutex e publicam um
// mapa novo.
type RuleRegistry struct {
	snap atomic.Pointer[map[string]domain.Rule]
	mu   sync.Mutex
}

var _ domain.PolicyResolver = (*RuleRegistry)(nil)

// NewRuleRegistry cria o registro com as regras iniciais (validadas).
func NewRuleRegistry(rules ...domain.Rule) (*RuleRegistry, error) {
	m := make(map[string]domain.Rule, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		m[r.Name] = r
	}
	reg := &RuleRegistry{}
	reg.snap.Store(&m)
	return reg, nil
}

// Resolve implementa domain.PolicyResolver.
func (reg *RuleRegistry) Resolve(name string) (domain.Rule, error) {
	rules := reg.load()
	r, ok := rules[name]
	if !ok {
		return domain.Rule{}, fmt.Errorf("%w: %q", domain.ErrUnknownRule, name)
	}
	return r, nil
}

// Update troca limite e janela de uma regra existente.
// Entrada inválida é rejeitada antes de qualquer mutação.
func (reg *RuleRegistry) Update(name string, limit, windowSeconds int64) (domain.Rule, error) {
	next := domain.Rule{Name: name, Limit: limit, WindowSeconds: windowSeconds}
	if err := next.Validate(); err != nil {
		return domain.Rule{}, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	cur := reg.load()
	if _, ok := cur[name]; !ok {
		return domain.Rule{}, fmt.Errorf("%w: %q", domain.ErrUnknownRule, name)
	}
	reg.publish(cur, next)
	return next, nil
}

// Define cria ou substitui uma regra.
func (reg *RuleRegistry) Define(r domain.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.publish(reg.load(), r)
	return nil
}

// Rules devolve uma cópia das regras ordenada por nome.
func (reg *RuleRegistry) Rules() []domain.Rule {
	rules := reg.load()
	out := make([]domain.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// chamado com mu travado
func (reg *RuleRegistry) publish(cur map[string]domain.Rule, r domain.Rule) {
	next := make(map[string]domain.Rule, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[r.Name] = r
	reg.snap.Store(&next)
}

func (reg *RuleRegistry) load() map[string]domain.Rule {
	if p := reg.snap.Load(); p != nil {
		return *p
	}
	return nil
}
