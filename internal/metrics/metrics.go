// Package metrics holds the Prometheus collectors shared by the engines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
//
// Collectors:
//   - autofill_apply_total{status} - apply outcomes (applied, already_applied, error)
//   - autofill_dedup_hits_total - interactions reused instead of created
//   - autofill_routing_actions_total{type,status} - executed routing actions
//   - autofill_feedback_total{prediction_type,judgment} - logged feedback
//   - autofill_suggestions_total{status} - suggestion transitions
type Metrics struct {
	Registry *prometheus.Registry

	ApplyTotal          *prometheus.CounterVec
	DedupHitsTotal      prometheus.Counter
	RoutingActionsTotal *prometheus.CounterVec
	FeedbackTotal       *prometheus.CounterVec
	SuggestionsTotal    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry so several instances can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ApplyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_apply_total",
			Help: "Apply calls by outcome",
		}, []string{"status"}),
		DedupHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "autofill_dedup_hits_total",
			Help: "Interactions reused by the dedup matcher",
		}),
		RoutingActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_routing_actions_total",
			Help: "Routing actions executed by type and status",
		}, []string{"type", "status"}),
		FeedbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_feedback_total",
			Help: "Feedback records by prediction type and judgment",
		}, []string{"prediction_type", "judgment"}),
		SuggestionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autofill_suggestions_total",
			Help: "Suggestion state transitions",
		}, []string{"status"}),
	}
}

func (m *Metrics) Apply(status string) {
	if m == nil {
		return
	}
	m.ApplyTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) DedupHit() {
	if m == nil {
		return
	}
	m.DedupHitsTotal.Inc()
}

func (m *Metrics) RoutingAction(actionType, status string) {
	if m == nil {
		return
	}
	m.RoutingActionsTotal.WithLabelValues(actionType, status).Inc()
}

func (m *Metrics) Feedback(predictionType, judgment string) {
	if m == nil {
		return
	}
	m.FeedbackTotal.WithLabelValues(predictionType, judgment).Inc()
}

func (m *Metrics) Suggestion(status string) {
	if m == nil {
		return
	}
	m.SuggestionsTotal.WithLabelValues(status).Inc()
}
