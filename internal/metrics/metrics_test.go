package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterSum(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
	}
	return sum
}

func TestRecorders(t *testing.T) {
	m := New()
	m.Apply("applied")
	m.Apply("applied")
	m.Apply("already_applied")
	m.DedupHit()
	m.RoutingAction("create_task", "failed")

	assert.Equal(t, 3.0, counterSum(t, m, "autofill_apply_total"))
	assert.Equal(t, 1.0, counterSum(t, m, "autofill_dedup_hits_total"))
	assert.Equal(t, 1.0, counterSum(t, m, "autofill_routing_actions_total"))
	assert.Equal(t, 0.0, counterSum(t, m, "autofill_feedback_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Apply("applied")
		m.DedupHit()
		m.RoutingAction("x", "ok")
		m.Feedback("signature", "accepted")
		m.Suggestion("pending")
	})
}
