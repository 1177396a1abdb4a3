package verdict

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiowebux/loadcheck/internal/config"
	"github.com/studiowebux/loadcheck/internal/recovery"
	"github.com/studiowebux/loadcheck/internal/stats"
	"github.com/studiowebux/loadcheck/internal/stress"
)

func stressResult(p95 float64, errorRate float64) *stress.Result {
	total := 100
	errors := int(errorRate * float64(total))
	return &stress.Result{
		TotalRequests: total,
		ErrorCount:    errors,
		ErrorRate:     errorRate,
		Latency: stats.Summary{
			Count:       total,
			FiniteCount: total - errors,
			ErrorCount:  errors,
			AvgMs:       p95 * 0.8,
			P95Ms:       p95,
		},
	}
}

func TestJudgeStress(t *testing.T) {
	tests := []struct {
		name      string
		p95       float64
		errorRate float64
		sla       float64
		maxErrors float64
		want      Status
	}{
		{"both within thresholds", 120, 0.01, 300, 0.05, StatusPass},
		{"latency breach", 450, 0.01, 300, 0.05, StatusFail},
		{"error rate breach", 120, 0.2, 300, 0.05, StatusFail},
		{"both breached", 450, 0.2, 300, 0.05, StatusFail},
		{"exactly at sla", 300, 0.05, 300, 0.05, StatusPass},
		{"no sla configured", 9999, 0.01, 0, 0.05, StatusPass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routine := &config.Routine{SLAMsP95: tt.sla, MaxErrorRate: &tt.maxErrors}
			v := JudgeStress(stressResult(tt.p95, tt.errorRate), routine)

			assert.Equal(t, tt.want, v.Status)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestJudgeStressAllFailed(t *testing.T) {
	// Every shot failed: the p95 sentinel is +Inf, which must fail any SLA
	result := stressResult(math.Inf(1), 1.0)
	result.Latency.FiniteCount = 0
	result.Latency.ErrorCount = result.TotalRequests

	maxErrors := 0.05
	routine := &config.Routine{SLAMsP95: 300, MaxErrorRate: &maxErrors}
	v := JudgeStress(result, routine)

	assert.Equal(t, StatusFail, v.Status)
}

func TestJudgeStressZeroTolerance(t *testing.T) {
	// An explicit 0.0 budget fails on any error at all
	zero := 0.0
	routine := &config.Routine{MaxErrorRate: &zero}

	v := JudgeStress(stressResult(120, 0.01), routine)
	assert.Equal(t, StatusFail, v.Status)

	v = JudgeStress(stressResult(120, 1.0), routine)
	assert.Equal(t, StatusFail, v.Status)

	v = JudgeStress(stressResult(120, 0.0), routine)
	assert.Equal(t, StatusPass, v.Status)
}

func TestJudgeStressFullFailureAgainstAnyBudget(t *testing.T) {
	// error_rate 1.0 fails every budget below 1.0
	for _, budget := range []float64{0.0, 0.05, 0.5, 0.999} {
		b := budget
		routine := &config.Routine{MaxErrorRate: &b}
		v := JudgeStress(stressResult(120, 1.0), routine)
		assert.Equal(t, StatusFail, v.Status, "budget %.3f", budget)
	}
}

func TestJudgeRecovery(t *testing.T) {
	latency := 42.0

	tests := []struct {
		name   string
		result *recovery.Result
		want   Status
	}{
		{"not checked", &recovery.Result{Checked: false}, StatusSkip},
		{"recovered", &recovery.Result{Checked: true, WithinSLA: true, LastLatencyMs: &latency, SecondsWaited: 4}, StatusPass},
		{"did not recover", &recovery.Result{Checked: true, WithinSLA: false, SecondsWaited: 62}, StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := JudgeRecovery(tt.result)
			assert.Equal(t, tt.want, v.Status)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestReportJSONNullsForUnavailableLatency(t *testing.T) {
	result := stressResult(math.Inf(1), 1.0)
	result.Latency.AvgMs = math.Inf(1)
	result.Latency.MinMs = math.Inf(1)
	result.Latency.MaxMs = math.Inf(1)
	result.Latency.FiniteCount = 0
	result.Latency.ErrorCount = result.TotalRequests

	report := &Report{
		Stress:        result,
		StressVerdict: Verdict{Status: StatusFail, Reason: "every shot failed"},
	}

	raw, err := report.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	stressObj := decoded["stress"].(map[string]any)
	assert.Nil(t, stressObj["latency_p95_ms"], "non-finite p95 must serialize as null")
	assert.Nil(t, stressObj["latency_avg_ms"])
	assert.Equal(t, float64(100), stressObj["total_requests"])
	assert.Equal(t, float64(1), stressObj["error_rate"])

	_, hasRecovery := decoded["recovery"]
	assert.False(t, hasRecovery, "recovery block omitted when not run")
}

func TestReportJSONIncludesRecovery(t *testing.T) {
	latency := 88.5
	report := &Report{
		Name:          "checkout-soak",
		Stress:        stressResult(120, 0.0),
		StressVerdict: Verdict{Status: StatusPass, Reason: "within thresholds"},
		Recovery: &recovery.Result{
			Checked:       true,
			WithinSLA:     true,
			LastLatencyMs: &latency,
			SecondsWaited: 6,
		},
		RecoveryVerdict: &Verdict{Status: StatusPass, Reason: "recovered"},
	}

	raw, err := report.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "checkout-soak", decoded["name"])

	recoveryObj := decoded["recovery"].(map[string]any)
	assert.Equal(t, true, recoveryObj["within_sla"])
	assert.Equal(t, 88.5, recoveryObj["last_latency_ms"])
	assert.Equal(t, float64(6), recoveryObj["seconds_waited"])
}

func TestRenderSmoke(t *testing.T) {
	report := &Report{
		Name:          "smoke",
		Stress:        stressResult(120, 0.0),
		StressVerdict: Verdict{Status: StatusPass, Reason: "within thresholds"},
	}

	var buf bytes.Buffer
	report.Render(&buf)
	out := buf.String()

	assert.Contains(t, out, "[STRESS]")
	assert.Contains(t, out, "[RESOURCES]")
	assert.NotContains(t, out, "[RECOVERY]", "recovery block omitted when not run")
	assert.Contains(t, out, "error_rate")
}

func TestRenderAllFailedShowsDash(t *testing.T) {
	result := stressResult(math.Inf(1), 1.0)
	result.Latency.AvgMs = math.Inf(1)
	result.Latency.MinMs = math.Inf(1)
	result.Latency.MaxMs = math.Inf(1)

	report := &Report{
		Stress:        result,
		StressVerdict: Verdict{Status: StatusFail, Reason: "every shot failed"},
	}

	var buf bytes.Buffer
	report.Render(&buf)

	assert.Contains(t, buf.String(), "latency_p95   : -", "unavailable latency renders as a dash")
}
