package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("audit:record").End(nil))
	boom := errors.New("boom")
	assert.Same(t, boom, m.Track("audit:record").End(boom))

	assert.Equal(t, 1.0, counterValue(t, reg, "userdesk_jobs_total", map[string]string{"type": "audit:record", "outcome": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "userdesk_jobs_total", map[string]string{"type": "audit:record", "outcome": "failure"}))
}

func TestNilMetricsTrackerIsNoop(t *testing.T) {
	var m *Metrics
	err := errors.New("x")
	assert.Equal(t, err, m.Track("audit:prune").End(err))
}
