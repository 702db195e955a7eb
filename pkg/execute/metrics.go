package execute

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts backend calls and plan outcomes.
type Metrics struct {
	Ops        *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec
	Plans      *prometheus.CounterVec
}

// NewMetrics creates the executor metrics and registers them with reg.
// Collectors that are already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadforge_backend_ops_total",
				Help: "Backend calls made while executing plans",
			},
			[]string{"kind", "status"},
		),
		OpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threadforge_backend_op_duration_seconds",
				Help:    "Duration of backend calls",
				Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
			},
			[]string{"kind"},
		),
		Plans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threadforge_plans_total",
				Help: "Plans executed, by outcome",
			},
			[]string{"status"},
		),
	}

	var err error
	if m.Ops, err = register(reg, m.Ops); err != nil {
		return nil, err
	}
	if m.OpDuration, err = register(reg, m.OpDuration); err != nil {
		return nil, err
	}
	if m.Plans, err = register(reg, m.Plans); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// OpCounts sums the backend call counter by status ("ok", "error") from g.
func OpCounts(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "threadforge_backend_ops_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "status" {
					out[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	return out, nil
}
