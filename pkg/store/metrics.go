package store

import "github.com/prometheus/client_golang/prometheus"

// Attempt outcomes.
const (
	outcomeSuccess   = "success"
	outcomeTransient = "transient"
	outcomePermanent = "permanent"
)

// Metrics counts store calls.
type Metrics struct {
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewMetrics creates the store counters and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "section_ledger",
			Subsystem: "store",
			Name:      "attempts_total",
			Help:      "Calls made to the table store, by operation and outcome.",
		}, []string{"op", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "section_ledger",
			Subsystem: "store",
			Name:      "retries_total",
			Help:      "Retries scheduled after a transient table store failure.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.retries)
	}
	return m
}

func (m *Metrics) attempt(op, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// Counts is a read of the store counters.
type Counts struct {
	Attempts  int
	Transient int
	Permanent int
	Retries   int
}

// GatherCounts sums the store counters registered with g across operations.
func GatherCounts(g prometheus.Gatherer) (Counts, error) {
	families, err := g.Gather()
	if err != nil {
		return Counts{}, err
	}

	var c Counts
	for _, f := range families {
		switch f.GetName() {
		case "section_ledger_store_attempts_total":
			for _, m := range f.GetMetric() {
				n := int(m.GetCounter().GetValue())
				c.Attempts += n
				for _, l := range m.GetLabel() {
					if l.GetName() != "outcome" {
						continue
					}
					switch l.GetValue() {
					case outcomeTransient:
						c.Transient += n
					case outcomePermanent:
						c.Permanent += n
					}
				}
			}
		case "section_ledger_store_retries_total":
			for _, m := range f.GetMetric() {
				c.Retries += int(m.GetCounter().GetValue())
			}
		}
	}
	return c, nil
}
