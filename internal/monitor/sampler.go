// Package monitor samples system and target-process resource usage on a
// fixed cadence while a load phase runs. Each series guards its own access,
// so summaries stay safe to read even when a stuck sampling call outlives
// the Stop budget.
package monitor

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"

	"github.com/studiowebux/loadcheck/internal/config"
	"github.com/studiowebux/loadcheck/internal/stats"
)

// Metric series keys
const (
	MetricSystemCPU      = "system_cpu_pct"
	MetricProcessCPU     = "process_cpu_pct"
	MetricProcessMemMB   = "process_mem_mb"
	MetricProcessThreads = "process_threads"
	MetricNetSentKB      = "net_sent_kb"
	MetricNetRecvKB      = "net_recv_kb"
)

var metricKeys = []string{
	MetricSystemCPU,
	MetricProcessCPU,
	MetricProcessMemMB,
	MetricProcessThreads,
	MetricNetSentKB,
	MetricNetRecvKB,
}

// Summary is the per-metric aggregate of a sampling window.
// Samples == 0 marks a window where nothing was collected.
type Summary struct {
	Samples        int               `json:"samples"`
	SystemCPUPct   stats.SeriesStats `json:"system_cpu_pct"`
	ProcessCPUPct  stats.SeriesStats `json:"process_cpu_pct"`
	ProcessMemMB   stats.SeriesStats `json:"process_mem_mb"`
	ProcessThreads stats.SeriesStats `json:"process_threads"`
	NetSentKBps    stats.SeriesStats `json:"net_sent_kb"`
	NetRecvKBps    stats.SeriesStats `json:"net_recv_kb"`
}

// Sampler periodically reads system CPU, the target process's CPU, RSS and
// thread count, and network throughput deltas, appending each metric to its
// own capped series. Individual read failures degrade that one data point
// only. Runs until Stop; terminates within one interval of the stop signal.
type Sampler struct {
	cfg      config.MonitorConfig
	log      logrus.FieldLogger
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	proc    *process.Process
	lastNet *psnet.IOCountersStat

	series map[string]*Series
}

// NewSampler creates a Sampler for the given monitor configuration
func NewSampler(cfg config.MonitorConfig, log logrus.FieldLogger) *Sampler {
	series := make(map[string]*Series, len(metricKeys))
	for _, key := range metricKeys {
		series[key] = NewSeries(cfg.SeriesLimit)
	}

	return &Sampler{
		cfg:      cfg,
		log:      log,
		interval: cfg.Interval(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		series:   series,
	}
}

// Start launches the sampling goroutine. The first cpu.Percent call primes
// the delta baseline so the first tick reports a real value.
func (s *Sampler) Start() {
	if _, err := cpu.Percent(0, false); err != nil {
		s.log.WithError(err).Debug("failed to prime system CPU counter")
	}

	s.proc = findProcess(s.cfg)
	if counters, err := psnet.IOCounters(false); err == nil && len(counters) > 0 {
		s.lastNet = &counters[0]
	}

	go s.loop()
}

// Stop signals the sampler and waits for it to exit, at most timeout.
// If the sampler does not stop in time the caller proceeds anyway; the
// per-series locking keeps later reads safe against the straggler.
func (s *Sampler) Stop(timeout time.Duration) {
	s.stopOnce.Do(func() {
		close(s.stop)
	})

	select {
	case <-s.done:
	case <-time.After(timeout):
		s.log.WithField("timeout", timeout).Warn("resource sampler did not stop in time, proceeding without it")
	}
}

// Summarize aggregates every series. Call after Stop; safe even when Stop
// timed out and the sampling goroutine is still winding down.
func (s *Sampler) Summarize() Summary {
	return Summary{
		Samples:        s.series[MetricSystemCPU].Len(),
		SystemCPUPct:   stats.AggregateSeries(s.series[MetricSystemCPU].Values()),
		ProcessCPUPct:  stats.AggregateSeries(s.series[MetricProcessCPU].Values()),
		ProcessMemMB:   stats.AggregateSeries(s.series[MetricProcessMemMB].Values()),
		ProcessThreads: stats.AggregateSeries(s.series[MetricProcessThreads].Values()),
		NetSentKBps:    stats.AggregateSeries(s.series[MetricNetSentKB].Values()),
		NetRecvKBps:    stats.AggregateSeries(s.series[MetricNetRecvKB].Values()),
	}
}

// SeriesLen returns the retained length of one metric series
func (s *Sampler) SeriesLen(key string) int {
	if series, ok := s.series[key]; ok {
		return series.Len()
	}
	return 0
}

func (s *Sampler) loop() {
	defer close(s.done)

	for {
		s.sample()

		select {
		case <-s.stop:
			return
		case <-time.After(s.interval):
		}
	}
}

// sample reads every metric once. Each read is independent: a failure skips
// that metric for this tick and leaves the others intact.
func (s *Sampler) sample() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.series[MetricSystemCPU].Append(percents[0])
	}

	s.sampleProcess()
	s.sampleNetwork()
}

func (s *Sampler) sampleProcess() {
	if s.proc != nil {
		if running, err := s.proc.IsRunning(); err != nil || !running {
			s.proc = nil
		}
	}
	if s.proc == nil {
		// The target may have restarted under a new pid
		s.proc = findProcess(s.cfg)
		if s.proc == nil {
			return
		}
	}

	if pct, err := s.proc.Percent(0); err == nil {
		s.series[MetricProcessCPU].Append(pct)
	}
	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		s.series[MetricProcessMemMB].Append(float64(mem.RSS) / (1024 * 1024))
	}
	if threads, err := s.proc.NumThreads(); err == nil {
		s.series[MetricProcessThreads].Append(float64(threads))
	}
}

func (s *Sampler) sampleNetwork() {
	counters, err := psnet.IOCounters(false)
	if err != nil || len(counters) == 0 {
		return
	}
	now := counters[0]

	if s.lastNet != nil {
		seconds := s.interval.Seconds()
		if seconds <= 0 {
			seconds = 1e-6
		}
		// Counters can reset (interface bounce); skip the tick instead of
		// recording a wrapped delta
		if now.BytesSent >= s.lastNet.BytesSent {
			s.series[MetricNetSentKB].Append(float64(now.BytesSent-s.lastNet.BytesSent) / 1024.0 / seconds)
		}
		if now.BytesRecv >= s.lastNet.BytesRecv {
			s.series[MetricNetRecvKB].Append(float64(now.BytesRecv-s.lastNet.BytesRecv) / 1024.0 / seconds)
		}
	}
	s.lastNet = &now
}
