package reconcile

import "github.com/prometheus/client_golang/prometheus"

func (m *Metrics) RecordsFor(unit string) prometheus.Counter {
	return m.records.WithLabelValues(unit)
}
