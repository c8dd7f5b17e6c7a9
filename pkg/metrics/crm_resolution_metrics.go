package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResolutionMetrics exposes organization resolution counters and latencies.
// All methods are no-ops on a nil receiver.
type ResolutionMetrics struct {
	SuggestionsComputed *prometheus.CounterVec
	LookupFailures      *prometheus.CounterVec
	PassDuration        prometheus.Histogram
	PassesSuperseded    prometheus.Counter
	Decisions           *prometheus.CounterVec
}

// NewResolutionMetrics registers the resolution metrics with reg.
func NewResolutionMetrics(reg prometheus.Registerer) *ResolutionMetrics {
	factory := promauto.With(reg)

	return &ResolutionMetrics{
		SuggestionsComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_resolution_suggestions_total",
			Help: "Suggestions computed by kind and match stage",
		}, []string{"kind", "stage"}), // stage: "exact", "disambiguated", "variant", "fallback"

		LookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_resolution_lookup_failures_total",
			Help: "Store read failures while computing suggestions",
		}, []string{"stage"}),

		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_resolution_pass_duration_seconds",
			Help:    "Duration of a full batch suggestion pass",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		PassesSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Name: "crm_resolution_passes_superseded_total",
			Help: "Batch passes discarded because a newer pass started",
		}),

		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_resolution_decisions_total",
			Help: "Accept and reject outcomes by suggestion kind",
		}, []string{"state", "kind", "outcome"}), // outcome: "success", "failure", "stale"
	}
}

func (m *ResolutionMetrics) IncSuggestion(kind, stage string) {
	if m != nil {
		m.SuggestionsComputed.WithLabelValues(kind, stage).Inc()
	}
}

func (m *ResolutionMetrics) IncLookupFailure(stage string) {
	if m != nil {
		m.LookupFailures.WithLabelValues(stage).Inc()
	}
}

func (m *ResolutionMetrics) ObservePass(d time.Duration) {
	if m != nil {
		m.PassDuration.Observe(d.Seconds())
	}
}

func (m *ResolutionMetrics) IncSuperseded() {
	if m != nil {
		m.PassesSuperseded.Inc()
	}
}

func (m *ResolutionMetrics) IncDecision(state, kind, outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(state, kind, outcome).Inc()
	}
}
