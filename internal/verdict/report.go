package verdict

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/loadcheck/internal/monitor"
	"github.com/studiowebux/loadcheck/internal/recovery"
	"github.com/studiowebux/loadcheck/internal/stats"
	"github.com/studiowebux/loadcheck/internal/stress"
)

const blockWidth = 70

var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"}
	colorRed    = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"}
	colorYellow = lipgloss.AdaptiveColor{Light: "#8b8000", Dark: "#ffff00"}

	stylePass = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	styleFail = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	styleSkip = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
)

// Report bundles the results and verdicts of one engine run.
// Recovery fields are nil when the routine carries no recovery descriptor.
type Report struct {
	Name            string
	Stress          *stress.Result
	StressVerdict   Verdict
	Recovery        *recovery.Result
	RecoveryVerdict *Verdict
}

// Render writes the human-readable report blocks to w
func (r *Report) Render(w io.Writer) {
	r.renderStressBlock(w)
	r.renderResourceBlock(w)
	if r.Recovery != nil && r.RecoveryVerdict != nil {
		r.renderRecoveryBlock(w)
	}
}

func (r *Report) renderStressBlock(w io.Writer) {
	lines := []kv{
		{"status", styledStatus(r.StressVerdict.Status)},
		{"reason", r.StressVerdict.Reason},
		{"requests", fmt.Sprintf("%d (errors %d)", r.Stress.TotalRequests, r.Stress.ErrorCount)},
		{"error_rate", fmt.Sprintf("%.1f%%", r.Stress.ErrorRate*100)},
		{"latency_avg", fmtMs(r.Stress.Latency.AvgMs)},
		{"latency_p50", fmtMs(r.Stress.Latency.P50Ms)},
		{"latency_p90", fmtMs(r.Stress.Latency.P90Ms)},
		{"latency_p95", fmtMs(r.Stress.Latency.P95Ms)},
		{"latency_p99", fmtMs(r.Stress.Latency.P99Ms)},
		{"latency_min", fmtMs(r.Stress.Latency.MinMs)},
		{"latency_max", fmtMs(r.Stress.Latency.MaxMs)},
	}
	printBlock(w, "STRESS", "Stress / load test result", lines)
}

func (r *Report) renderResourceBlock(w io.Writer) {
	res := r.Stress.Resources
	if res.Samples == 0 {
		printBlock(w, "RESOURCES", "Resource monitoring snapshot", []kv{
			{"status", styledStatus(StatusSkip)},
			{"reason", "no resource samples collected"},
			{"samples", "0"},
		})
		return
	}

	lines := []kv{
		{"samples", fmt.Sprintf("%d", res.Samples)},
		{"system_cpu", fmtTriplet(res.SystemCPUPct, "%")},
		{"proc_cpu", fmtTriplet(res.ProcessCPUPct, "%")},
		{"proc_mem", fmtTriplet(res.ProcessMemMB, " MB")},
		{"threads", fmtTriplet(res.ProcessThreads, "")},
		{"net_tx", fmtTriplet(res.NetSentKBps, " KB/s")},
		{"net_rx", fmtTriplet(res.NetRecvKBps, " KB/s")},
	}
	printBlock(w, "RESOURCES", "Resource monitoring snapshot", lines)
}

func (r *Report) renderRecoveryBlock(w io.Writer) {
	lastLatency := "-"
	if r.Recovery.LastLatencyMs != nil {
		lastLatency = fmtMs(*r.Recovery.LastLatencyMs)
	}

	lines := []kv{
		{"status", styledStatus(r.RecoveryVerdict.Status)},
		{"reason", r.RecoveryVerdict.Reason},
		{"within_sla", fmt.Sprintf("%t", r.Recovery.WithinSLA)},
		{"last_latency", lastLatency},
		{"waited", fmt.Sprintf("%d s", r.Recovery.SecondsWaited)},
	}
	printBlock(w, "RECOVERY", "Recovery test result", lines)
}

// kv is one detail line in a report block
type kv struct {
	key   string
	value string
}

func printBlock(w io.Writer, tag, title string, lines []kv) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", blockWidth))
	fmt.Fprintf(w, "[%s] %s\n", tag, title)
	fmt.Fprintln(w, strings.Repeat("-", blockWidth))
	for _, line := range lines {
		fmt.Fprintf(w, "  %-14s: %s\n", line.key, line.value)
	}
	fmt.Fprintln(w, strings.Repeat("=", blockWidth))
}

func styledStatus(status Status) string {
	switch status {
	case StatusPass:
		return stylePass.Render(string(status))
	case StatusFail:
		return styleFail.Render(string(status))
	default:
		return styleSkip.Render(string(status))
	}
}

// fmtMs formats a millisecond value, "-" when unavailable
func fmtMs(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.1f ms", v)
}

// fmtTriplet formats the avg/p95/max aggregate of one resource series
func fmtTriplet(s stats.SeriesStats, unit string) string {
	return fmt.Sprintf("avg %.1f%s / p95 %.1f%s / max %.1f%s", s.Avg, unit, s.P95, unit, s.Max, unit)
}

// jsonReport is the machine-readable report shape. Latency fields are
// pointers so an unavailable (non-finite) statistic serializes as null
// instead of breaking JSON encoding.
type jsonReport struct {
	Name     string              `json:"name,omitempty"`
	Stress   jsonStressReport    `json:"stress"`
	Recovery *jsonRecoveryReport `json:"recovery,omitempty"`
}

type jsonStressReport struct {
	TotalRequests int              `json:"total_requests"`
	ErrorCount    int              `json:"error_count"`
	FiniteCount   int              `json:"finite_count"`
	ErrorRate     float64          `json:"error_rate"`
	LatencyAvgMs  *float64         `json:"latency_avg_ms"`
	LatencyP50Ms  *float64         `json:"latency_p50_ms"`
	LatencyP90Ms  *float64         `json:"latency_p90_ms"`
	LatencyP95Ms  *float64         `json:"latency_p95_ms"`
	LatencyP99Ms  *float64         `json:"latency_p99_ms"`
	LatencyMinMs  *float64         `json:"latency_min_ms"`
	LatencyMaxMs  *float64         `json:"latency_max_ms"`
	Resources     monitor.Summary  `json:"resources"`
	Verdict       Verdict          `json:"verdict"`
}

type jsonRecoveryReport struct {
	Checked       bool     `json:"checked"`
	WithinSLA     bool     `json:"within_sla"`
	LastLatencyMs *float64 `json:"last_latency_ms"`
	SecondsWaited int      `json:"seconds_waited"`
	Verdict       Verdict  `json:"verdict"`
}

// JSON serializes the report for machine consumption
func (r *Report) JSON() ([]byte, error) {
	out := jsonReport{
		Name: r.Name,
		Stress: jsonStressReport{
			TotalRequests: r.Stress.TotalRequests,
			ErrorCount:    r.Stress.ErrorCount,
			FiniteCount:   r.Stress.Latency.FiniteCount,
			ErrorRate:     r.Stress.ErrorRate,
			LatencyAvgMs:  finitePtr(r.Stress.Latency.AvgMs),
			LatencyP50Ms:  finitePtr(r.Stress.Latency.P50Ms),
			LatencyP90Ms:  finitePtr(r.Stress.Latency.P90Ms),
			LatencyP95Ms:  finitePtr(r.Stress.Latency.P95Ms),
			LatencyP99Ms:  finitePtr(r.Stress.Latency.P99Ms),
			LatencyMinMs:  finitePtr(r.Stress.Latency.MinMs),
			LatencyMaxMs:  finitePtr(r.Stress.Latency.MaxMs),
			Resources:     r.Stress.Resources,
			Verdict:       r.StressVerdict,
		},
	}

	if r.Recovery != nil && r.RecoveryVerdict != nil {
		out.Recovery = &jsonRecoveryReport{
			Checked:       r.Recovery.Checked,
			WithinSLA:     r.Recovery.WithinSLA,
			LastLatencyMs: r.Recovery.LastLatencyMs,
			SecondsWaited: r.Recovery.SecondsWaited,
			Verdict:       *r.RecoveryVerdict,
		}
	}

	return json.MarshalIndent(out, "", "  ")
}

// finitePtr returns nil for non-finite values so they serialize as null
func finitePtr(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
