// Package analytics computes per-routine aggregates over the run history,
// used to spot latency regressions across repeated runs of the same routine.
package analytics

import (
	"database/sql"
	"fmt"
	"time"
)

// Trend is the aggregate of all completed runs sharing one routine name
type Trend struct {
	Name         string
	Runs         int
	PassCount    int
	PassRate     float64
	AvgP95Ms     *float64
	BestP95Ms    *float64
	WorstP95Ms   *float64
	AvgErrorRate float64
	LastStatus   string
	LastRun      time.Time
}

// TrendsByRoutine groups completed runs by routine name, newest routine
// first. Runs without a name are grouped under their target URL.
func TrendsByRoutine(db *sql.DB) ([]Trend, error) {
	rows, err := db.Query(`
		SELECT
			COALESCE(NULLIF(name, ''), target_url) AS routine,
			COUNT(*),
			SUM(CASE WHEN stress_status = 'PASS' THEN 1 ELSE 0 END),
			AVG(p95_latency_ms),
			MIN(p95_latency_ms),
			MAX(p95_latency_ms),
			AVG(error_rate),
			MAX(started_at)
		FROM runs
		WHERE status = 'completed'
		GROUP BY routine
		ORDER BY MAX(started_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var trends []Trend
	for rows.Next() {
		var t Trend
		var avg, best, worst sql.NullFloat64
		if err := rows.Scan(&t.Name, &t.Runs, &t.PassCount, &avg, &best, &worst, &t.AvgErrorRate, &t.LastRun); err != nil {
			return nil, err
		}
		if t.Runs > 0 {
			t.PassRate = float64(t.PassCount) / float64(t.Runs)
		}
		t.AvgP95Ms = nullable(avg)
		t.BestP95Ms = nullable(best)
		t.WorstP95Ms = nullable(worst)
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range trends {
		status, err := lastStatus(db, trends[i].Name)
		if err != nil {
			return nil, err
		}
		trends[i].LastStatus = status
	}
	return trends, nil
}

// Regression compares a run's p95 against the routine's historical average
// over the most recent window runs. Reported only when both sides have data
// and the run is at least threshold times slower.
func Regression(db *sql.DB, name string, currentP95 float64, window int, threshold float64) (bool, float64, error) {
	if window <= 0 {
		window = 10
	}

	var baseline sql.NullFloat64
	err := db.QueryRow(`
		SELECT AVG(p95_latency_ms) FROM (
			SELECT p95_latency_ms
			FROM runs
			WHERE COALESCE(NULLIF(name, ''), target_url) = ?
			  AND status = 'completed'
			  AND p95_latency_ms IS NOT NULL
			ORDER BY started_at DESC
			LIMIT ?
		)
	`, name, window).Scan(&baseline)
	if err != nil {
		return false, 0, fmt.Errorf("failed to query baseline: %w", err)
	}

	if !baseline.Valid || baseline.Float64 <= 0 {
		return false, 0, nil
	}

	ratio := currentP95 / baseline.Float64
	return ratio >= threshold, baseline.Float64, nil
}

func lastStatus(db *sql.DB, name string) (string, error) {
	var status sql.NullString
	err := db.QueryRow(`
		SELECT stress_status
		FROM runs
		WHERE COALESCE(NULLIF(name, ''), target_url) = ? AND status = 'completed'
		ORDER BY started_at DESC
		LIMIT 1
	`, name).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return status.String, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
