package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestCreateAndGetRun(t *testing.T) {
	mgr := newTestManager(t)

	run := &Run{
		Name:      "checkout-soak",
		TargetURL: "http://127.0.0.1:8000/api/items",
		StartedAt: time.Now().UTC(),
		Status:    "running",
	}
	require.NoError(t, mgr.CreateRun(run))
	require.NotZero(t, run.ID, "CreateRun must fill in the ID")

	got, err := mgr.GetRun(run.ID)
	require.NoError(t, err)

	assert.Equal(t, "checkout-soak", got.Name)
	assert.Equal(t, run.TargetURL, got.TargetURL)
	assert.Equal(t, "running", got.Status)
	assert.Nil(t, got.CompletedAt, "run is not completed yet")
	assert.Nil(t, got.P95LatencyMs, "latencies unset until the run finishes")
}

func TestUpdateRunRoundTrip(t *testing.T) {
	mgr := newTestManager(t)

	run := &Run{
		Name:      "checkout-soak",
		TargetURL: "http://127.0.0.1:8000/",
		StartedAt: time.Now().UTC(),
		Status:    "running",
	}
	require.NoError(t, mgr.CreateRun(run))

	completed := time.Now().UTC()
	avg, p50, p95, p99, min, max := 42.1, 40.0, 88.5, 120.3, 12.0, 250.9
	recLast := 55.0

	run.CompletedAt = &completed
	run.Status = "completed"
	run.TotalRequests = 300
	run.ErrorCount = 6
	run.ErrorRate = 0.02
	run.AvgLatencyMs = &avg
	run.P50LatencyMs = &p50
	run.P95LatencyMs = &p95
	run.P99LatencyMs = &p99
	run.MinLatencyMs = &min
	run.MaxLatencyMs = &max
	run.ResourceSummary = `{"samples":10}`
	run.StressStatus = "PASS"
	run.StressReason = "within thresholds"
	run.RecoveryChecked = true
	run.RecoveryWithinSLA = true
	run.RecoveryLastLatencyMs = &recLast
	run.RecoveryWaitedSec = 4
	run.RecoveryStatus = "PASS"
	require.NoError(t, mgr.UpdateRun(run))

	got, err := mgr.GetRun(run.ID)
	require.NoError(t, err)

	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 300, got.TotalRequests)
	assert.Equal(t, 6, got.ErrorCount)
	assert.InDelta(t, 0.02, got.ErrorRate, 1e-9)
	require.NotNil(t, got.P95LatencyMs)
	assert.Equal(t, 88.5, *got.P95LatencyMs)
	require.NotNil(t, got.MaxLatencyMs)
	assert.Equal(t, 250.9, *got.MaxLatencyMs)
	assert.Equal(t, `{"samples":10}`, got.ResourceSummary)
	assert.Equal(t, "PASS", got.StressStatus)
	assert.True(t, got.RecoveryChecked)
	assert.True(t, got.RecoveryWithinSLA)
	require.NotNil(t, got.RecoveryLastLatencyMs)
	assert.Equal(t, 55.0, *got.RecoveryLastLatencyMs)
	assert.Equal(t, 4, got.RecoveryWaitedSec)
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateRunNilLatencies(t *testing.T) {
	// A run where every shot failed stores NULL latency columns
	mgr := newTestManager(t)

	run := &Run{
		TargetURL: "http://127.0.0.1:9/",
		StartedAt: time.Now().UTC(),
		Status:    "running",
	}
	require.NoError(t, mgr.CreateRun(run))

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Status = "completed"
	run.TotalRequests = 50
	run.ErrorCount = 50
	run.ErrorRate = 1.0
	run.StressStatus = "FAIL"
	require.NoError(t, mgr.UpdateRun(run))

	got, err := mgr.GetRun(run.ID)
	require.NoError(t, err)

	assert.Nil(t, got.AvgLatencyMs)
	assert.Nil(t, got.P95LatencyMs)
	assert.Nil(t, got.MinLatencyMs)
	assert.Nil(t, got.MaxLatencyMs)
	assert.Equal(t, 1.0, got.ErrorRate)
}

func TestListRunsNewestFirst(t *testing.T) {
	mgr := newTestManager(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		run := &Run{
			Name:      "run",
			TargetURL: "http://127.0.0.1:8000/",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    "completed",
		}
		require.NoError(t, mgr.CreateRun(run))
	}

	runs, err := mgr.ListRuns(3)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt), "newest first")
	assert.True(t, runs[1].StartedAt.After(runs[2].StartedAt))
}

func TestDeleteRunCascadesShots(t *testing.T) {
	mgr := newTestManager(t)

	run := &Run{
		TargetURL: "http://127.0.0.1:8000/",
		StartedAt: time.Now().UTC(),
		Status:    "completed",
	}
	require.NoError(t, mgr.CreateRun(run))

	shots := []*Shot{
		{RunID: run.ID, Timestamp: time.Now().UTC(), ElapsedMs: 10, StatusCode: 200, LatencyMs: 12.5},
		{RunID: run.ID, Timestamp: time.Now().UTC(), ElapsedMs: 20, StatusCode: 0, LatencyMs: 2000, ErrorMessage: "connection refused"},
	}
	require.NoError(t, mgr.SaveShotsBatch(shots))

	require.NoError(t, mgr.DeleteRun(run.ID))

	remaining, err := mgr.GetShots(run.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "deleting a run removes its shots")
}

func TestSaveAndGetShots(t *testing.T) {
	mgr := newTestManager(t)

	run := &Run{
		TargetURL: "http://127.0.0.1:8000/",
		StartedAt: time.Now().UTC(),
		Status:    "completed",
	}
	require.NoError(t, mgr.CreateRun(run))

	shots := []*Shot{
		{RunID: run.ID, Timestamp: time.Now().UTC(), ElapsedMs: 30, StatusCode: 200, LatencyMs: 15.0},
		{RunID: run.ID, Timestamp: time.Now().UTC(), ElapsedMs: 10, StatusCode: 200, LatencyMs: 11.0},
		{RunID: run.ID, Timestamp: time.Now().UTC(), ElapsedMs: 20, StatusCode: 503, LatencyMs: 9.0},
	}
	require.NoError(t, mgr.SaveShotsBatch(shots))

	got, err := mgr.GetShots(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, int64(10), got[0].ElapsedMs, "shots come back in elapsed order")
	assert.Equal(t, int64(20), got[1].ElapsedMs)
	assert.Equal(t, int64(30), got[2].ElapsedMs)
	assert.Equal(t, 503, got[1].StatusCode)
}

func TestSaveShotsBatchEmpty(t *testing.T) {
	mgr := newTestManager(t)
	assert.NoError(t, mgr.SaveShotsBatch(nil))
}
