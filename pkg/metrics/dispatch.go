package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records batch-level outcomes of the notification dispatcher.
type DispatchMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	batches  *prometheus.CounterVec
}

// Outcome labels recorded per processed entry.
const (
	OutcomeSent           = "sent"
	OutcomeFailed         = "failed"
	OutcomeRescheduled    = "rescheduled"
	OutcomeTerminalFailed = "terminal_failed"
	OutcomeReleased       = "released"
)

// NewDispatchMetrics registers the dispatcher metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_batch_duration_seconds",
		Help:    "Duration of dispatch batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_entry_outcomes",
		Help: "Processed notification entries by outcome.",
	}, []string{"outcome"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_batches",
		Help: "Dispatch batch invocations by result.",
	}, []string{"trigger", "result"})
	reg.MustRegister(duration, outcomes, batches)
	return &DispatchMetrics{
		duration: duration,
		outcomes: outcomes,
		batches:  batches,
	}
}

// ObserveBatch records the duration of a batch for the named trigger.
func (m *DispatchMetrics) ObserveBatch(trigger string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(trigger)).Observe(duration.Seconds())
}

// AddOutcome increments the per-entry outcome counter.
func (m *DispatchMetrics) AddOutcome(outcome string, count int) {
	if m == nil || m.outcomes == nil || count <= 0 {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Add(float64(count))
}

// IncBatch counts a batch invocation result (ok/error) for the named trigger.
func (m *DispatchMetrics) IncBatch(trigger, result string) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(normalizeLabel(trigger), normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
