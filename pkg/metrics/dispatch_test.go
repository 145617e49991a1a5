package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestDispatchMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewDispatchMetrics(reg)

	metrics.ObserveBatch("cron", 250*time.Millisecond)
	metrics.AddOutcome(OutcomeSent, 3)
	metrics.AddOutcome(OutcomeFailed, 1)
	metrics.IncBatch("cron", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "dispatch_entry_outcomes", "outcome", OutcomeSent); err != nil {
		t.Fatalf("fetch sent: %v", err)
	} else if got != 3 {
		t.Fatalf("expected sent=3, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "dispatch_entry_outcomes", "outcome", OutcomeFailed); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "dispatch_batches", "trigger", "cron"); err != nil {
		t.Fatalf("fetch batches: %v", err)
	} else if got != 1 {
		t.Fatalf("expected batches=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "dispatch_batch_duration_seconds", "trigger", "cron"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestDispatchMetricsNilRegistererIsNoop(t *testing.T) {
	metrics := NewDispatchMetrics(nil)
	metrics.ObserveBatch("cron", time.Second)
	metrics.AddOutcome(OutcomeSent, 1)
	metrics.IncBatch("cron", "error")

	var zero *DispatchMetrics
	zero.AddOutcome(OutcomeSent, 1)
}

func TestDispatchMetricsIgnoresNonPositiveCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewDispatchMetrics(reg)
	metrics.AddOutcome(OutcomeSent, 0)
	metrics.AddOutcome(OutcomeSent, -4)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if _, err := fetchCounterValue(mfs, "dispatch_entry_outcomes", "outcome", OutcomeSent); err == nil {
		t.Fatal("expected no outcome series for non-positive counts")
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
