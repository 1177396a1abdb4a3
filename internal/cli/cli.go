// Package cli orchestrates a full engine run: configuration loading, the
// stress and recovery phases, judgment, reporting, and history persistence.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/studiowebux/loadcheck/internal/analytics"
	"github.com/studiowebux/loadcheck/internal/config"
	"github.com/studiowebux/loadcheck/internal/history"
	"github.com/studiowebux/loadcheck/internal/recovery"
	"github.com/studiowebux/loadcheck/internal/stress"
	"github.com/studiowebux/loadcheck/internal/verdict"
)

// shotBatchSize is how many shot metrics are inserted per transaction
const shotBatchSize = 100

// RunOptions contains options for executing a routine file
type RunOptions struct {
	FilePath     string
	OutputFormat string // "text" (default) or "json"
	DBPath       string // empty disables history persistence
	EnvFile      string
	Log          logrus.FieldLogger
}

// Run executes a routine file end to end
func Run(opts RunOptions) error {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	// Configuration errors are fatal and surface before any phase starts
	routine, err := config.Load(opts.FilePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mgr *history.Manager
	var run *history.Run
	if opts.DBPath != "" {
		mgr, err = history.NewManager(opts.DBPath)
		if err != nil {
			// History is supporting infrastructure; a broken database should
			// not stop the run itself
			log.WithError(err).Warn("failed to open history database, continuing without persistence")
		} else {
			defer mgr.Close()
			run = &history.Run{
				Name:      routine.Name,
				TargetURL: routine.TargetURL,
				StartedAt: time.Now(),
				Status:    "running",
			}
			if err := mgr.CreateRun(run); err != nil {
				log.WithError(err).Warn("failed to create run record, continuing without persistence")
				mgr = nil
			}
		}
	}

	log.WithFields(logrus.Fields{
		"target":      routine.TargetURL,
		"rps":         routine.RPS,
		"concurrency": routine.Concurrency,
		"duration_s":  routine.DurationSec,
	}).Info("starting stress phase")

	generator, err := stress.New(routine, log)
	if err != nil {
		return err
	}
	result, runErr := generator.Run(ctx)

	stressVerdict := verdict.JudgeStress(result, routine)
	report := &verdict.Report{
		Name:          routine.Name,
		Stress:        result,
		StressVerdict: stressVerdict,
	}

	// The recovery phase reports "not checked" rather than failing when no
	// health URL is configured
	if runErr == nil {
		if routine.Recovery.Configured() {
			log.Info("starting recovery phase")
		}
		rec := recovery.NewVerifier(routine.Recovery, log).Run(ctx)
		recoveryVerdict := verdict.JudgeRecovery(rec)
		report.Recovery = rec
		report.RecoveryVerdict = &recoveryVerdict
	}

	if mgr != nil {
		warnOnRegression(log, mgr, routine, result)
		persist(log, mgr, run, report, runErr)
	}

	switch opts.OutputFormat {
	case "json":
		data, err := report.JSON()
		if err != nil {
			return fmt.Errorf("failed to serialize report: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(data))
	default:
		report.Render(os.Stdout)
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	return nil
}

// Regression detection parameters: how many past runs form the baseline
// and how much slower than it counts as a regression
const (
	regressionWindow    = 10
	regressionThreshold = 1.5
)

// warnOnRegression compares this run's p95 against the routine's recent
// history. Informational only; the verdict is unaffected.
func warnOnRegression(log logrus.FieldLogger, mgr *history.Manager, routine *config.Routine, result *stress.Result) {
	p95 := result.Latency.P95Ms
	if math.IsInf(p95, 0) || math.IsNaN(p95) {
		return
	}

	name := routine.Name
	if name == "" {
		name = routine.TargetURL
	}

	regressed, baseline, err := analytics.Regression(mgr.DB(), name, p95, regressionWindow, regressionThreshold)
	if err != nil {
		log.WithError(err).Debug("failed to compute latency baseline")
		return
	}
	if regressed {
		log.WithFields(logrus.Fields{
			"p95_ms":      p95,
			"baseline_ms": baseline,
		}).Warn("p95 latency regressed against recent runs of this routine")
	}
}

// persist writes the final run record and per-shot metrics.
// Failures are logged, not fatal: the report has already been produced.
func persist(log logrus.FieldLogger, mgr *history.Manager, run *history.Run, report *verdict.Report, runErr error) {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = "completed"
	if runErr != nil {
		run.Status = "failed"
	}

	run.TotalRequests = report.Stress.TotalRequests
	run.ErrorCount = report.Stress.ErrorCount
	run.ErrorRate = report.Stress.ErrorRate
	run.AvgLatencyMs = finitePtr(report.Stress.Latency.AvgMs)
	run.P50LatencyMs = finitePtr(report.Stress.Latency.P50Ms)
	run.P95LatencyMs = finitePtr(report.Stress.Latency.P95Ms)
	run.P99LatencyMs = finitePtr(report.Stress.Latency.P99Ms)
	run.MinLatencyMs = finitePtr(report.Stress.Latency.MinMs)
	run.MaxLatencyMs = finitePtr(report.Stress.Latency.MaxMs)
	run.StressStatus = string(report.StressVerdict.Status)
	run.StressReason = report.StressVerdict.Reason

	if resources, err := json.Marshal(report.Stress.Resources); err == nil {
		run.ResourceSummary = string(resources)
	}

	if report.Recovery != nil && report.RecoveryVerdict != nil {
		run.RecoveryChecked = report.Recovery.Checked
		run.RecoveryWithinSLA = report.Recovery.WithinSLA
		run.RecoveryLastLatencyMs = report.Recovery.LastLatencyMs
		run.RecoveryWaitedSec = report.Recovery.SecondsWaited
		run.RecoveryStatus = string(report.RecoveryVerdict.Status)
	}

	if err := mgr.UpdateRun(run); err != nil {
		log.WithError(err).Warn("failed to update run record")
		return
	}

	shots := report.Stress.Shots
	for start := 0; start < len(shots); start += shotBatchSize {
		end := start + shotBatchSize
		if end > len(shots) {
			end = len(shots)
		}

		batch := make([]*history.Shot, 0, end-start)
		for _, shot := range shots[start:end] {
			batch = append(batch, &history.Shot{
				RunID:        run.ID,
				Timestamp:    shot.Timestamp,
				ElapsedMs:    shot.ElapsedMs,
				StatusCode:   shot.StatusCode,
				LatencyMs:    shot.LatencyMs,
				ErrorMessage: shot.Err,
			})
		}
		if err := mgr.SaveShotsBatch(batch); err != nil {
			log.WithError(err).Warn("failed to save shot metrics")
			return
		}
	}
}

// finitePtr converts an unavailable (non-finite) statistic to nil for storage
func finitePtr(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
