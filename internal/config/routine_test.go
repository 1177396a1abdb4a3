package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoutineFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const yamlRoutine = `
name: checkout-soak
target_url: http://127.0.0.1:8000/api/items
method: post
concurrency: 20
rps: 50
duration_sec: 10
sla_ms_p95: 300
max_error_rate: 0.05
monitor:
  port: 8000
recovery:
  health_url: http://127.0.0.1:8000/health
`

const jsoncRoutine = `{
	// same routine as the YAML fixture
	"name": "checkout-soak",
	"target_url": "http://127.0.0.1:8000/api/items",
	"method": "post",
	"concurrency": 20,
	"rps": 50,
	"duration_sec": 10,
	"sla_ms_p95": 300,
	"max_error_rate": 0.05,
	"monitor": {"port": 8000},
	"recovery": {"health_url": "http://127.0.0.1:8000/health"}
}`

func TestLoadYAML(t *testing.T) {
	routine, err := Load(writeRoutineFile(t, "routine.yaml", yamlRoutine))
	require.NoError(t, err)

	assert.Equal(t, "checkout-soak", routine.Name)
	assert.Equal(t, "POST", routine.Method, "method is upper-cased")
	assert.Equal(t, 20, routine.Concurrency)
	assert.Equal(t, 50, routine.RPS)
	assert.Equal(t, 300.0, routine.SLAMsP95)
}

func TestLoadJSONCEquivalentToYAML(t *testing.T) {
	fromYAML, err := Load(writeRoutineFile(t, "routine.yaml", yamlRoutine))
	require.NoError(t, err)
	fromJSONC, err := Load(writeRoutineFile(t, "routine.jsonc", jsoncRoutine))
	require.NoError(t, err)

	assert.Equal(t, fromYAML, fromJSONC)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load(writeRoutineFile(t, "routine.toml", "target_url = 'x'"))
	assert.ErrorContains(t, err, "unsupported routine file extension")
}

func TestLoadDefaults(t *testing.T) {
	routine, err := Load(writeRoutineFile(t, "minimal.yaml", `
target_url: http://127.0.0.1:9/
concurrency: 5
rps: 10
duration_sec: 2
`))
	require.NoError(t, err)

	assert.Equal(t, "GET", routine.Method)
	assert.Equal(t, []int{200}, routine.SuccessStatuses)
	assert.Equal(t, DefaultTimeoutMs, routine.TimeoutMs)
	assert.Nil(t, routine.MaxErrorRate, "unset tolerance stays unset")
	assert.Equal(t, 1.0, routine.ErrorBudget(), "unset tolerance accepts every error")
	assert.Equal(t, DefaultMonitorIntervalMs, routine.Monitor.IntervalMs)
	assert.Equal(t, 600, routine.Monitor.SeriesLimit, "five minutes at 500ms")
	assert.True(t, routine.Monitor.IsEnabled())
	assert.Equal(t, DefaultPollIntervalSec, routine.Recovery.PollIntervalSec)
	assert.Equal(t, DefaultMaxRecoverySec, routine.Recovery.MaxRecoverySec)
	assert.Equal(t, DefaultRecoverySLAMs, routine.Recovery.RecoverySLAMs)
}

func TestLoadExpandsEnvInURLs(t *testing.T) {
	t.Setenv("LOADCHECK_TEST_HOST", "10.1.2.3:8080")

	routine, err := Load(writeRoutineFile(t, "env.yaml", `
target_url: http://${LOADCHECK_TEST_HOST}/api
concurrency: 1
rps: 1
duration_sec: 1
recovery:
  health_url: http://${LOADCHECK_TEST_HOST}/health
`))
	require.NoError(t, err)

	assert.Equal(t, "http://10.1.2.3:8080/api", routine.TargetURL)
	assert.Equal(t, "http://10.1.2.3:8080/health", routine.Recovery.HealthURL)
}

func TestValidateRejectsByField(t *testing.T) {
	valid := func() *Routine {
		r := &Routine{
			TargetURL:   "http://127.0.0.1:8000/",
			Concurrency: 10,
			RPS:         10,
			DurationSec: 5,
		}
		r.ApplyDefaults()
		return r
	}

	tests := []struct {
		name    string
		mutate  func(*Routine)
		wantErr string
	}{
		{"missing target", func(r *Routine) { r.TargetURL = "" }, "target_url"},
		{"zero concurrency", func(r *Routine) { r.Concurrency = 0 }, "concurrency"},
		{"excessive concurrency", func(r *Routine) { r.Concurrency = 2000 }, "concurrency"},
		{"zero rps", func(r *Routine) { r.RPS = 0 }, "rps"},
		{"zero duration", func(r *Routine) { r.DurationSec = 0 }, "duration_sec"},
		{"negative warmup", func(r *Routine) { r.WarmupSec = -1 }, "warmup_sec"},
		{"bad error rate", func(r *Routine) { v := 1.5; r.MaxErrorRate = &v }, "max_error_rate"},
		{"negative error rate", func(r *Routine) { v := -0.1; r.MaxErrorRate = &v }, "max_error_rate"},
		{"negative sla", func(r *Routine) { r.SLAMsP95 = -10 }, "sla_ms_p95"},
		{"bad monitor interval", func(r *Routine) { r.Monitor.IntervalMs = -1 }, "monitor.interval_ms"},
		{"bad poll interval", func(r *Routine) {
			r.Recovery.HealthURL = "http://127.0.0.1/health"
			r.Recovery.PollIntervalSec = -1
		}, "recovery.poll_interval_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := r.Validate()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestExplicitZeroErrorRatePreserved(t *testing.T) {
	routine, err := Load(writeRoutineFile(t, "strict.yaml", `
target_url: http://127.0.0.1:8000/
concurrency: 5
rps: 10
duration_sec: 2
max_error_rate: 0.0
`))
	require.NoError(t, err)

	require.NotNil(t, routine.MaxErrorRate)
	assert.Equal(t, 0.0, *routine.MaxErrorRate, "zero tolerance must survive defaulting")
	assert.Equal(t, 0.0, routine.ErrorBudget())
	assert.NoError(t, routine.Validate())
}

func TestIsSuccessStatus(t *testing.T) {
	r := &Routine{SuccessStatuses: []int{200, 201}}

	assert.True(t, r.IsSuccessStatus(200))
	assert.True(t, r.IsSuccessStatus(201))
	assert.False(t, r.IsSuccessStatus(500))
	assert.False(t, r.IsSuccessStatus(0))
}
