package engine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats counts leaf outcomes of one pass.
type Stats struct {
	// Pushed leaves were newer locally and written to the store.
	Pushed int
	// Pulled leaves were newer in the store and written into the value.
	Pulled int
	// Unchanged leaves already agreed.
	Unchanged int
	// Discovered collection keys existed only in the store and were inserted locally.
	Discovered int
}

// Converged reports whether the pass wrote nothing on either side.
func (s Stats) Converged() bool {
	return s.Pushed == 0 && s.Pulled == 0 && s.Discovered == 0
}

func (s Stats) String() string {
	return fmt.Sprintf("pushed=%d pulled=%d unchanged=%d discovered=%d",
		s.Pushed, s.Pulled, s.Unchanged, s.Discovered)
}

// Metrics are the Prometheus collectors an Engine updates after each pass.
type Metrics struct {
	Passes     *prometheus.CounterVec
	Merges     *prometheus.CounterVec
	Discovered prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg, if non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "passes_total",
			Help:      "Sync passes by result (ok, error).",
		}, []string{"result"}),
		Merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "leaf_merges_total",
			Help:      "Leaf merge outcomes (push, pull, equal).",
		}, []string{"outcome"}),
		Discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "discovered_total",
			Help:      "Collection keys materialized from the store.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Passes, m.Merges, m.Discovered} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observe(s Stats, err error) {
	if err != nil {
		m.Passes.WithLabelValues("error").Inc()
		return
	}
	m.Passes.WithLabelValues("ok").Inc()
	m.Merges.WithLabelValues("push").Add(float64(s.Pushed))
	m.Merges.WithLabelValues("pull").Add(float64(s.Pulled))
	m.Merges.WithLabelValues("equal").Add(float64(s.Unchanged))
	m.Discovered.Add(float64(s.Discovered))
}
