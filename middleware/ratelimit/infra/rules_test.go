package infra

import (
	"errors"
	"sync"
	"testing"

	"limitguard/middleware/ratelimit/domain"
)

func TestRuleRegistry_ResolveAndUpdate(t *testing.T) {
	reg, err := NewRuleRegistry(domain.Rule{Name: "global", Limit: 10, WindowSeconds: 60})
	if err != nil {
		t.Fatal(err)
	}

	r, err := reg.Resolve("global")
	if err != nil || r.Limit != 10 || r.WindowSeconds != 60 {
		t.Fatalf("unexpected rule %+v err=%v", r, err)
	}

	if _, err := reg.Update("global", 5, 30); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	r, _ = reg.Resolve("global")
	if r.Limit != 5 || r.WindowSeconds != 30 {
		t.Fatalf("expected updated rule, got %+v", r)
	}
}

func TestRuleRegistry_UnknownRule(t *testing.T) {
	reg, _ := NewRuleRegistry(domain.Rule{Name: "global", Limit: 10, WindowSeconds: 60})

	if _, err := reg.Resolve("api"); !errors.Is(err, domain.ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule on resolve, got %v", err)
	}
	if _, err := reg.Update("api", 1, 1); !errors.Is(err, domain.ErrUnknownRule) {
		t.Fatalf("expected ErrUnknownRule on update, got %v", err)
	}
}

func TestRuleRegistry_InvalidUpdateKeepsState(t *testing.T) {
	reg, _ := NewRuleRegistry(domain.Rule{Name: "global", Limit: 10, WindowSeconds: 60})

	for _, in := range [][2]int64{{0, 60}, {10, 0}, {-1, 5}} {
		if _, err := reg.Update("global", in[0], in[1]); !errors.Is(err, domain.ErrInvalidPolicyUpdate) {
			t.Fatalf("expected ErrInvalidPolicyUpdate for %v, got %v", in, err)
		}
	}
	r, _ := reg.Resolve("global")
	if r.Limit != 10 || r.WindowSeconds != 60 {
		t.Fatalf("expected unchanged rule, got %+v", r)
	}
}

func TestRuleRegistry_DefineAndList(t *testing.T) {
	reg, _ := NewRuleRegistry(domain.Rule{Name: "global", Limit: 10, WindowSeconds: 60})
	if err := reg.Define(domain.Rule{Name: "api", Limit: 100, WindowSeconds: 1}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Define(domain.Rule{Name: "bad:name", Limit: 1, WindowSeconds: 1}); err == nil {
		t.Fatalf("expected invalid name to be rejected")
	}

	rules := reg.Rules()
	if len(rules) != 2 || rules[0].Name != "api" || rules[1].Name != "global" {
		t.Fatalf("unexpected rules list %+v", rules)
	}
}

func TestNewRuleRegistry_RejectsInvalidRule(t *testing.T) {
	if _, err := NewRuleRegistry(domain.Rule{Name: "global", Limit: 0, WindowSeconds: 60}); err == nil {
		t.Fatalf("expected invalid initial rule to be rejected")
	}
}

// Cada par escrito tem window = limit*10; um leitor que visse um par misturado quebraria a relação.
func TestRuleRegistry_ConcurrentReadersNeverSeeTornPair(t *testing.T) {
	reg, _ := NewRuleRegistry(domain.Rule{Name: "global", Limit: 1, WindowSeconds: 10})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 500; i++ {
			if _, err := reg.Update("global", i, i*10); err != nil {
				t.Errorf("unexpected update error: %v", err)
				return
			}
		}
		close(stop)
	}()

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				r, err := reg.Resolve("global")
				if err != nil {
					t.Errorf("unexpected resolve error: %v", err)
					return
				}
				if r.WindowSeconds != r.Limit*10 {
					t.Errorf("torn rule observed: %+v", r)
					return
				}
			}
		}()
	}
	wg.Wait()
}
