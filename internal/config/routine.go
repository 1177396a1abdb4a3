package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTimeoutMs is the per-shot timeout applied when the routine does not set one
	DefaultTimeoutMs = 2000
	// DefaultMonitorIntervalMs is the resource sampling cadence
	DefaultMonitorIntervalMs = 500
	// DefaultPollIntervalSec is the recovery health-probe cadence
	DefaultPollIntervalSec = 2
	// DefaultMaxRecoverySec is the recovery wait budget
	DefaultMaxRecoverySec = 60
	// DefaultRecoverySLAMs is the latency budget for a single health probe
	DefaultRecoverySLAMs = 300
)

// Routine describes one full engine run: the target, the load shape,
// the pass/fail thresholds, and the optional monitor/recovery descriptors.
type Routine struct {
	Name            string            `yaml:"name" json:"name"`
	TargetURL       string            `yaml:"target_url" json:"target_url"`
	Method          string            `yaml:"method" json:"method"`
	Headers         map[string]string `yaml:"headers" json:"headers"`
	Payload         string            `yaml:"payload" json:"payload"`
	SuccessStatuses []int             `yaml:"success_statuses" json:"success_statuses"`
	TimeoutMs       int               `yaml:"timeout_ms" json:"timeout_ms"`
	Concurrency     int               `yaml:"concurrency" json:"concurrency"`
	RPS             int               `yaml:"rps" json:"rps"`
	DurationSec     int               `yaml:"duration_sec" json:"duration_sec"`
	WarmupSec       int               `yaml:"warmup_sec" json:"warmup_sec"`
	SLAMsP95        float64           `yaml:"sla_ms_p95" json:"sla_ms_p95"`
	// MaxErrorRate is a pointer so an explicit 0.0 (zero tolerance) stays
	// distinct from "unset"
	MaxErrorRate    *float64          `yaml:"max_error_rate" json:"max_error_rate"`
	TLS             *TLSConfig        `yaml:"tls" json:"tls"`
	Monitor         MonitorConfig     `yaml:"monitor" json:"monitor"`
	Recovery        RecoveryConfig    `yaml:"recovery" json:"recovery"`
}

// TLSConfig contains TLS options for the shooter's HTTP client
type TLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	CertFile           string `yaml:"cert_file" json:"cert_file"`
	KeyFile            string `yaml:"key_file" json:"key_file"`
	CAFile             string `yaml:"ca_file" json:"ca_file"`
}

// MonitorConfig describes the resource sampler: which process to watch
// (pid, then listening port, then name substring) and the sampling shape.
type MonitorConfig struct {
	Enabled      *bool  `yaml:"enabled" json:"enabled"`
	PID          int32  `yaml:"pid" json:"pid"`
	Port         uint32 `yaml:"port" json:"port"`
	NameContains string `yaml:"name_contains" json:"name_contains"`
	IntervalMs   int    `yaml:"interval_ms" json:"interval_ms"`
	SeriesLimit  int    `yaml:"series_limit" json:"series_limit"`
}

// IsEnabled reports whether resource sampling should run (default true)
func (m MonitorConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Interval returns the sampling interval as a time.Duration
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMs) * time.Millisecond
}

// RecoveryConfig describes the post-incident verification phase.
// An empty HealthURL means the phase reports "not checked" rather than failing.
type RecoveryConfig struct {
	TriggerURL      string `yaml:"trigger_url" json:"trigger_url"`
	HealthURL       string `yaml:"health_url" json:"health_url"`
	PollIntervalSec int    `yaml:"poll_interval_sec" json:"poll_interval_sec"`
	MaxRecoverySec  int    `yaml:"max_recovery_sec" json:"max_recovery_sec"`
	RecoverySLAMs   int    `yaml:"recovery_sla_ms" json:"recovery_sla_ms"`
}

// Configured reports whether the recovery phase should run at all
func (r RecoveryConfig) Configured() bool {
	return r.TriggerURL != "" || r.HealthURL != ""
}

// Load reads a routine file (.yaml/.yml, or .json/.jsonc with comments),
// expands ${VAR} references in the URLs, applies defaults, and validates.
func Load(path string) (*Routine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routine file: %w", err)
	}

	routine := &Routine{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), routine); err != nil {
			return nil, fmt.Errorf("failed to parse routine file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, routine); err != nil {
			return nil, fmt.Errorf("failed to parse routine file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported routine file extension: %s (expected .yaml, .yml, .json or .jsonc)", filepath.Ext(path))
	}

	routine.ExpandEnv()
	routine.ApplyDefaults()

	if err := routine.Validate(); err != nil {
		return nil, err
	}
	return routine, nil
}

// ExpandEnv expands ${VAR} references in the routine URLs so the same file
// can point at different hosts per environment
func (r *Routine) ExpandEnv() {
	r.TargetURL = os.ExpandEnv(r.TargetURL)
	r.Recovery.TriggerURL = os.ExpandEnv(r.Recovery.TriggerURL)
	r.Recovery.HealthURL = os.ExpandEnv(r.Recovery.HealthURL)
}

// ApplyDefaults fills unset optional fields with their defaults
func (r *Routine) ApplyDefaults() {
	if r.Method == "" {
		r.Method = "GET"
	}
	r.Method = strings.ToUpper(r.Method)
	if len(r.SuccessStatuses) == 0 {
		r.SuccessStatuses = []int{200}
	}
	if r.TimeoutMs == 0 {
		r.TimeoutMs = DefaultTimeoutMs
	}
	if r.Monitor.IntervalMs == 0 {
		r.Monitor.IntervalMs = DefaultMonitorIntervalMs
	}
	if r.Monitor.SeriesLimit == 0 {
		// Five minutes of samples at the configured interval
		r.Monitor.SeriesLimit = 5 * 60 * 1000 / r.Monitor.IntervalMs
	}
	if r.Recovery.PollIntervalSec == 0 {
		r.Recovery.PollIntervalSec = DefaultPollIntervalSec
	}
	if r.Recovery.MaxRecoverySec == 0 {
		r.Recovery.MaxRecoverySec = DefaultMaxRecoverySec
	}
	if r.Recovery.RecoverySLAMs == 0 {
		r.Recovery.RecoverySLAMs = DefaultRecoverySLAMs
	}
}

// Validate rejects misconfigured routines before any phase starts.
// Silently defaulting these would mask a broken test, so each error names
// the offending field.
func (r *Routine) Validate() error {
	if r.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0")
	}
	if r.Concurrency > 1000 {
		return fmt.Errorf("concurrency cannot exceed 1000")
	}
	if r.RPS <= 0 {
		return fmt.Errorf("rps must be greater than 0")
	}
	if r.DurationSec <= 0 {
		return fmt.Errorf("duration_sec must be greater than 0")
	}
	if r.WarmupSec < 0 {
		return fmt.Errorf("warmup_sec cannot be negative")
	}
	if r.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be greater than 0")
	}
	if r.MaxErrorRate != nil && (*r.MaxErrorRate < 0 || *r.MaxErrorRate > 1) {
		return fmt.Errorf("max_error_rate must be between 0.0 and 1.0")
	}
	if r.SLAMsP95 < 0 {
		return fmt.Errorf("sla_ms_p95 cannot be negative")
	}
	if r.Monitor.IsEnabled() && r.Monitor.IntervalMs <= 0 {
		return fmt.Errorf("monitor.interval_ms must be greater than 0")
	}
	if r.Monitor.SeriesLimit <= 0 {
		return fmt.Errorf("monitor.series_limit must be greater than 0")
	}
	if r.Recovery.HealthURL != "" {
		if r.Recovery.PollIntervalSec <= 0 {
			return fmt.Errorf("recovery.poll_interval_sec must be greater than 0")
		}
		if r.Recovery.MaxRecoverySec <= 0 {
			return fmt.Errorf("recovery.max_recovery_sec must be greater than 0")
		}
		if r.Recovery.RecoverySLAMs <= 0 {
			return fmt.Errorf("recovery.recovery_sla_ms must be greater than 0")
		}
	}
	return nil
}

// Timeout returns the per-shot timeout as a time.Duration
func (r *Routine) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Duration returns the stress phase duration as a time.Duration
func (r *Routine) Duration() time.Duration {
	return time.Duration(r.DurationSec) * time.Second
}

// Warmup returns the warmup duration as a time.Duration
func (r *Routine) Warmup() time.Duration {
	return time.Duration(r.WarmupSec) * time.Second
}

// ErrorBudget returns the tolerated error-rate fraction. Unset means every
// error is tolerated; an explicit 0.0 means none are.
func (r *Routine) ErrorBudget() float64 {
	if r.MaxErrorRate == nil {
		return 1.0
	}
	return *r.MaxErrorRate
}

// IsSuccessStatus reports whether code counts as a successful shot
func (r *Routine) IsSuccessStatus(code int) bool {
	for _, s := range r.SuccessStatuses {
		if s == code {
			return true
		}
	}
	return false
}
