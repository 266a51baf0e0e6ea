package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/nia-ro/workdesk/internal/jobs"
	"github.com/nia-ro/workdesk/jobs"
)

type flakyPurger struct {
	calls    int
	failEach int
}

func (p *flakyPurger) Purge(ctx context.Context, before time.Time) (int64, error) {
	p.calls++
	if p.failEach > 0 && p.calls%p.failEach == 0 {
		return 0, errors.New("statement timeout")
	}
	return 250, nil
}

func TestAuditPurgeThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	store := &flakyPurger{failEach: 20}
	job := jobs.NewAuditPurgeJob(store, 90*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)

	task, err := jobs.NewAuditPurgeTask(0)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	for i := 0; i < 60; i++ {
		_ = job.Handle(context.Background(), task)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "workdesk_jobs_total", map[string]string{"job": jobs.TaskAuditPurge, "status": "success"})
	failure := metricValue(t, families, "workdesk_jobs_total", map[string]string{"job": jobs.TaskAuditPurge, "status": "failure"})
	if success+failure != 60 {
		t.Fatalf("expected 60 executions, got %f", success+failure)
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("purge success ratio too low: %f", ratio)
	}

	purged := metricValue(t, families, "workdesk_audit_records_purged_total", nil)
	if purged != success*250 {
		t.Fatalf("purged counter = %f, want %f", purged, success*250)
	}

	mean := histogramMean(t, families, "workdesk_job_duration_seconds", map[string]string{"job": jobs.TaskAuditPurge})
	if mean > 0.5 {
		t.Fatalf("purge duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok && lp.GetValue() != val {
			return false
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
