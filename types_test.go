//go:build linux

package sandbox

import "testing"

func TestVerdictPrecedence(t *testing.T) {
	tests := []struct {
		a, b Verdict
		want Verdict
	}{
		{VerdictAC, VerdictWA, VerdictWA},
		{VerdictWA, VerdictTLE, VerdictTLE},
		{VerdictTLE, VerdictMLE, VerdictMLE},
		{VerdictMLE, VerdictRE, VerdictRE},
		{VerdictRE, VerdictITLE, VerdictITLE},
		{VerdictITLE, VerdictIE, VerdictIE},
		{VerdictIE, VerdictCE, VerdictCE},
		{VerdictCE, VerdictICE, VerdictICE},
		{VerdictAC, VerdictAC, VerdictAC},
		{VerdictICE, VerdictAC, VerdictICE},
	}

	for _, tt := range tests {
		if got := worseVerdict(tt.a, tt.b); got != tt.want {
			t.Errorf("worseVerdict(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestUnknownResultSentinels(t *testing.T) {
	r := unknownResult(StatusIE)
	if r.Status != StatusIE {
		t.Errorf("Status = %v, want %v", r.Status, StatusIE)
	}
	if r.ReturnCode != -1 || r.CPUTime != -1 || r.PeakMemory != -1 {
		t.Errorf("unknownResult should sentinel all numeric fields to -1, got %+v", r)
	}
}
