package stress

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/studiowebux/loadcheck/internal/config"
	"github.com/studiowebux/loadcheck/internal/monitor"
	"github.com/studiowebux/loadcheck/internal/shooter"
	"github.com/studiowebux/loadcheck/internal/stats"
)

const (
	// WarmupShotDelay is the pause between warmup shots
	WarmupShotDelay = 50 * time.Millisecond
	// SamplerJoinTimeout bounds the wait for the resource sampler to stop
	SamplerJoinTimeout = 1 * time.Second
)

// Shot is the per-request metric record kept for reporting and persistence.
// LatencyMs is the elapsed time even for failed shots; StatusCode 0 marks a
// transport failure.
type Shot struct {
	Timestamp  time.Time
	ElapsedMs  int64
	StatusCode int
	LatencyMs  float64
	Err        string
}

// Result is the immutable outcome of one stress phase
type Result struct {
	Name          string
	StartedAt     time.Time
	CompletedAt   time.Time
	TotalRequests int
	ErrorCount    int
	ErrorRate     float64
	Latency       stats.Summary
	Resources     monitor.Summary
	Shots         []Shot
}

// Generator runs the stress phase: optional warmup, then a fixed-duration
// loop issuing shots at the target rate with bounded concurrency, with the
// resource sampler running alongside.
type Generator struct {
	routine *config.Routine
	shooter *shooter.Shooter
	log     logrus.FieldLogger
}

// New creates a Generator for a validated routine
func New(routine *config.Routine, log logrus.FieldLogger) (*Generator, error) {
	if err := routine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid routine: %w", err)
	}

	sh, err := shooter.New(routine)
	if err != nil {
		return nil, err
	}

	return &Generator{
		routine: routine,
		shooter: sh,
		log:     log,
	}, nil
}

// Run executes the stress phase and returns its result. The phase completes
// in bounded time regardless of target responsiveness since every shot has
// its own timeout. A cancelled context stops scheduling new shots; in-flight
// shots still run to completion and are counted, and the error is returned
// alongside the partial result.
func (g *Generator) Run(ctx context.Context) (*Result, error) {
	g.warmup(ctx)

	sampler := monitor.NewSampler(g.routine.Monitor, g.log)
	if g.routine.Monitor.IsEnabled() {
		sampler.Start()
	}

	start := time.Now()
	shots := g.loop(ctx, start)

	if g.routine.Monitor.IsEnabled() {
		sampler.Stop(SamplerJoinTimeout)
	}

	result := g.aggregate(start, shots, sampler.Summarize())
	g.log.WithFields(logrus.Fields{
		"requests":   result.TotalRequests,
		"errors":     result.ErrorCount,
		"error_rate": result.ErrorRate,
	}).Info("stress phase completed")

	return result, ctx.Err()
}

// warmup primes connection pools and caches so steady-state measurement is
// not skewed by cold starts. Results are discarded.
func (g *Generator) warmup(ctx context.Context) {
	if g.routine.WarmupSec <= 0 {
		return
	}

	g.log.WithField("warmup_sec", g.routine.WarmupSec).Debug("warming up target")
	deadline := time.Now().Add(g.routine.Warmup())
	for time.Now().Before(deadline) {
		g.shooter.Shoot(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(WarmupShotDelay):
		}
	}
}

// loop issues shots until the phase duration elapses. Launches are paced at
// the target rate by a token limiter; a weighted semaphore caps in-flight
// shots at the concurrency bound. The loop stops scheduling at the deadline
// but does not abort shots already in flight.
func (g *Generator) loop(ctx context.Context, start time.Time) []Shot {
	limiter := rate.NewLimiter(rate.Limit(g.routine.RPS), 1)
	sem := semaphore.NewWeighted(int64(g.routine.Concurrency))

	deadline := start.Add(g.routine.Duration())
	paceCtx, cancelPacing := context.WithDeadline(ctx, deadline)
	defer cancelPacing()

	shots := make([]Shot, 0, g.routine.RPS*g.routine.DurationSec)
	resultCh := make(chan Shot, g.routine.Concurrency*2)

	var collectWG sync.WaitGroup
	collectWG.Add(1)
	go func() {
		defer collectWG.Done()
		for shot := range resultCh {
			shots = append(shots, shot)
		}
	}()

	var wg sync.WaitGroup
	for {
		// Wait returns an error once the pacing deadline passes
		if err := limiter.Wait(paceCtx); err != nil {
			break
		}
		if err := sem.Acquire(paceCtx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			outcome := g.shooter.Shoot(ctx)
			resultCh <- Shot{
				Timestamp:  time.Now(),
				ElapsedMs:  time.Since(start).Milliseconds(),
				StatusCode: outcome.StatusCode,
				LatencyMs:  outcome.LatencyMs,
				Err:        outcome.Err,
			}
		}()
	}

	wg.Wait()
	close(resultCh)
	collectWG.Wait()

	return shots
}

// aggregate folds the collected shots and resource summary into a Result.
// Failed shots enter the latency sample set as a non-finite sentinel so the
// error rate stays accurate while percentiles cover finite samples only.
func (g *Generator) aggregate(start time.Time, shots []Shot, resources monitor.Summary) *Result {
	samples := make([]float64, 0, len(shots))
	for _, shot := range shots {
		if shot.succeeded(g.routine) {
			samples = append(samples, shot.LatencyMs)
		} else {
			samples = append(samples, math.Inf(1))
		}
	}

	summary := stats.Summarize(samples)

	errorRate := 0.0
	if summary.Count > 0 {
		errorRate = float64(summary.ErrorCount) / float64(summary.Count)
	}

	return &Result{
		Name:          g.routine.Name,
		StartedAt:     start,
		CompletedAt:   time.Now(),
		TotalRequests: summary.Count,
		ErrorCount:    summary.ErrorCount,
		ErrorRate:     errorRate,
		Latency:       summary,
		Resources:     resources,
		Shots:         shots,
	}
}

// succeeded reports whether the shot counts as successful for the routine
func (s Shot) succeeded(routine *config.Routine) bool {
	return s.Err == "" && s.StatusCode != 0 && routine.IsSuccessStatus(s.StatusCode)
}
