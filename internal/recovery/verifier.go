// Package recovery verifies that a target returns to a healthy state within
// a bounded time budget after an induced-overload scenario is cleared.
package recovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/studiowebux/loadcheck/internal/config"
)

const (
	// ProbeTimeout bounds a single trigger call or health probe
	ProbeTimeout = 5 * time.Second
	// HealthySentinel is the status value the health endpoint must report
	HealthySentinel = "ok"
)

// Result is the immutable outcome of one recovery phase.
// Checked is false when no health URL was configured, which is distinct
// from "checked but failed". LastLatencyMs is nil when no probe completed.
type Result struct {
	Checked       bool
	WithinSLA     bool
	LastLatencyMs *float64
	SecondsWaited int
}

// healthBody is the expected health endpoint response shape
type healthBody struct {
	Status string `json:"status"`
}

// Verifier polls a health endpoint until it reports healthy within the SLA
// latency, or the wait budget runs out
type Verifier struct {
	cfg    config.RecoveryConfig
	client *http.Client
	log    logrus.FieldLogger
}

// NewVerifier creates a Verifier for the given recovery configuration
func NewVerifier(cfg config.RecoveryConfig, log logrus.FieldLogger) *Verifier {
	return &Verifier{
		cfg:    cfg,
		client: &http.Client{Timeout: ProbeTimeout},
		log:    log,
	}
}

// Run executes the recovery phase. It fires the remediation trigger
// best-effort, then polls the health URL each interval. A probe satisfies
// recovery when it returns HTTP 200 with a JSON body whose status field is
// "ok" and the probe latency is within the SLA. Probe failures are retried
// until the wait budget elapses; they are never fatal.
func (v *Verifier) Run(ctx context.Context) *Result {
	if v.cfg.HealthURL == "" {
		return &Result{Checked: false}
	}

	v.trigger(ctx)

	pollInterval := time.Duration(v.cfg.PollIntervalSec) * time.Second
	var lastLatency *float64

	waited := 0
	for waited <= v.cfg.MaxRecoverySec {
		latency, healthy := v.probe(ctx)
		if latency != nil {
			lastLatency = latency
		}

		if healthy && latency != nil && *latency <= float64(v.cfg.RecoverySLAMs) {
			v.log.WithFields(logrus.Fields{
				"latency_ms": *latency,
				"waited_sec": waited,
			}).Info("target recovered within SLA")
			return &Result{
				Checked:       true,
				WithinSLA:     true,
				LastLatencyMs: latency,
				SecondsWaited: waited,
			}
		}

		select {
		case <-ctx.Done():
			return &Result{Checked: true, WithinSLA: false, LastLatencyMs: lastLatency, SecondsWaited: waited}
		case <-time.After(pollInterval):
		}
		waited += v.cfg.PollIntervalSec
	}

	v.log.WithField("waited_sec", waited).Warn("target did not recover within the wait budget")
	return &Result{
		Checked:       true,
		WithinSLA:     false,
		LastLatencyMs: lastLatency,
		SecondsWaited: waited,
	}
}

// trigger fires the remediation action. Best-effort: a failure is logged
// and the polling phase proceeds regardless.
func (v *Verifier) trigger(ctx context.Context) {
	if v.cfg.TriggerURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.TriggerURL, nil)
	if err != nil {
		v.log.WithError(err).Warn("failed to build recovery trigger request")
		return
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.log.WithError(err).Warn("recovery trigger call failed")
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}

// probe issues one health check. Returns the probe latency (nil when the
// request itself failed) and whether the response satisfied the healthy
// condition apart from latency.
func (v *Verifier) probe(ctx context.Context) (*float64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.HealthURL, nil)
	if err != nil {
		return nil, false
	}

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	latency := float64(time.Since(start)) / float64(time.Millisecond)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &latency, false
	}
	if resp.StatusCode != http.StatusOK {
		return &latency, false
	}

	var health healthBody
	if err := json.Unmarshal(body, &health); err != nil {
		// Unparseable body counts as a non-recovered tick
		return &latency, false
	}

	return &latency, health.Status == HealthySentinel
}
