// Package verdict judges phase results against configured thresholds and
// renders the structured report. Judgment creates a fresh Verdict per phase;
// verdicts are never mutated afterwards.
package verdict

import (
	"fmt"

	"github.com/studiowebux/loadcheck/internal/config"
	"github.com/studiowebux/loadcheck/internal/recovery"
	"github.com/studiowebux/loadcheck/internal/stress"
)

// Status is the outcome of one phase judgment
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

// Verdict is a pass/fail/skip decision with its supporting reason
type Verdict struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

// JudgeStress passes iff the p95 latency meets the SLA (when one is
// configured) and the error rate is within the threshold
func JudgeStress(result *stress.Result, routine *config.Routine) Verdict {
	passLatency := routine.SLAMsP95 <= 0 || result.Latency.P95Ms <= routine.SLAMsP95
	passErrors := result.ErrorRate <= routine.ErrorBudget()

	switch {
	case passLatency && passErrors:
		return Verdict{
			Status: StatusPass,
			Reason: fmt.Sprintf("p95=%.1fms, error_rate=%.3f within thresholds", result.Latency.P95Ms, result.ErrorRate),
		}
	case !passLatency && !passErrors:
		return Verdict{
			Status: StatusFail,
			Reason: fmt.Sprintf("p95=%.1fms exceeds SLA %.1fms and error_rate=%.3f exceeds %.3f",
				result.Latency.P95Ms, routine.SLAMsP95, result.ErrorRate, routine.ErrorBudget()),
		}
	case !passLatency:
		return Verdict{
			Status: StatusFail,
			Reason: fmt.Sprintf("p95=%.1fms exceeds SLA %.1fms", result.Latency.P95Ms, routine.SLAMsP95),
		}
	default:
		return Verdict{
			Status: StatusFail,
			Reason: fmt.Sprintf("error_rate=%.3f exceeds %.3f", result.ErrorRate, routine.ErrorBudget()),
		}
	}
}

// JudgeRecovery skips when no health URL was configured, passes when the
// target came back within the SLA, fails otherwise
func JudgeRecovery(result *recovery.Result) Verdict {
	if !result.Checked {
		return Verdict{
			Status: StatusSkip,
			Reason: "no health_url configured",
		}
	}
	if result.WithinSLA {
		return Verdict{
			Status: StatusPass,
			Reason: fmt.Sprintf("health check recovered within SLA after %ds", result.SecondsWaited),
		}
	}
	return Verdict{
		Status: StatusFail,
		Reason: fmt.Sprintf("did not recover within SLA after %ds", result.SecondsWaited),
	}
}
