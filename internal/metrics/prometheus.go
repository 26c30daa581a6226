package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports counters as relay_<counter>_total{label}.
type Prometheus struct {
	vecs map[Counter]*prometheus.CounterVec
}

// NewPrometheus registers one CounterVec per counter on reg.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if namespace == "" {
		namespace = "relay"
	}
	p := &Prometheus{vecs: make(map[Counter]*prometheus.CounterVec, len(Counters))}
	for _, c := range Counters {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      string(c) + "_total",
			Help:      fmt.Sprintf("Total number of %s items.", c),
		}, []string{"label"})
		if err := reg.Register(vec); err != nil {
			return nil, fmt.Errorf("register %s: %w", c, err)
		}
		p.vecs[c] = vec
	}
	return p, nil
}

func (p *Prometheus) Add(c Counter, label string, n uint64) {
	vec, ok := p.vecs[c]
	if !ok {
		return
	}
	vec.WithLabelValues(label).Add(float64(n))
}
