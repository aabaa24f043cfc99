package infra

import (
	"context"
	"errors"

	"limitguard/middleware/ratelimit/domain"
)

// TeeStats repassa cada evento para todos os destinos, na ordem.
// Um destino com erro não impede os demais; os erros voltam juntos.
type TeeStats []domain.StatsStore

var _ domain.StatsStore = TeeStats(nil)

func (t TeeStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
