package infra

import (
	"context"
	"strconv"

	"limitguard/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats expõe os vereditos como métricas Prometheus.
//
// Labels: rule, result (allowed|blocked) e degraded. A origem vai num contador
// separado; caller/key nunca viram label.
type PrometheusStats struct {
	decisions *prometheus.CounterVec
	origins   *prometheus.CounterVec
	count     *prometheus.HistogramVec
}

var _ domain.StatsStore = (*PrometheusStats)(nil)

// NewPrometheusStats cria e registra os coletores em reg.
func NewPrometheusStats(reg prometheus.Registerer) (*PrometheusStats, error) {
	p := &PrometheusStats{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limitguard",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by rule and result.",
		}, []string{"rule", "result", "degraded"}),
		origins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limitguard",
			Name:      "requests_by_origin_total",
			Help:      "Evaluated requests by caller origin.",
		}, []string{"origin"}),
		count: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "limitguard",
			Name:      "window_count",
			Help:      "Counter value observed in the window at decision time.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"rule"}),
	}
	for _, c := range []prometheus.Collector{p.decisions, p.origins, p.count} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "blocked"
	if ev.Allowed {
		result = "allowed"
	}
	origin := ev.Origin
	if origin == "" {
		origin = domain.UnknownOrigin
	}

	p.decisions.WithLabelValues(ev.Rule, result, strconv.FormatBool(ev.Degraded)).Inc()
	p.origins.WithLabelValues(origin).Inc()
	if !ev.Degraded {
		p.count.WithLabelValues(ev.Rule).Observe(float64(ev.Count))
	}
	return nil
}
