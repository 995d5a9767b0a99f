//go:build linux

package sandbox

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsObserveJudgement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveJudgement(JudgementResult{
		Verdict: VerdictAC,
		Cases: []CaseResult{
			{Name: "1", Verdict: VerdictAC, CPUTime: 120 * time.Millisecond},
		},
	})

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "judge_verdicts_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "verdict" && label.GetValue() == "AC" {
					found = true
					if metric.GetCounter().GetValue() != 1 {
						t.Errorf("judge_verdicts_total{verdict=AC} = %v, want 1", metric.GetCounter().GetValue())
					}
				}
			}
		}
	}
	if !found {
		t.Error("expected judge_verdicts_total{verdict=AC} to be recorded")
	}
}

func TestMetricsObserveWorkerRestart(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveWorkerRestart()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var got float64
	for _, mf := range metricFamilies {
		if mf.GetName() == "judge_worker_restarts_total" {
			got = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if got != 1 {
		t.Errorf("judge_worker_restarts_total = %v, want 1", got)
	}
}
