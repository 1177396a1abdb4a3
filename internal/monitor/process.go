package monitor

import (
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/studiowebux/loadcheck/internal/config"
)

// findProcess resolves the monitored process, trying pid, then listening
// TCP port, then process-name substring. Returns nil when nothing matches;
// the sampler retries on later ticks since the target may restart.
func findProcess(cfg config.MonitorConfig) *process.Process {
	if cfg.PID > 0 {
		if proc, err := process.NewProcess(cfg.PID); err == nil {
			return proc
		}
	}

	if cfg.Port > 0 {
		if conns, err := psnet.Connections("inet"); err == nil {
			for _, conn := range conns {
				if conn.Laddr.Port == cfg.Port && conn.Pid > 0 {
					if proc, err := process.NewProcess(conn.Pid); err == nil {
						return proc
					}
				}
			}
		}
	}

	if cfg.NameContains != "" {
		needle := strings.ToLower(cfg.NameContains)
		if procs, err := process.Processes(); err == nil {
			for _, proc := range procs {
				name, err := proc.Name()
				if err == nil && strings.Contains(strings.ToLower(name), needle) {
					return proc
				}
				cmdline, err := proc.Cmdline()
				if err == nil && strings.Contains(strings.ToLower(cmdline), needle) {
					return proc
				}
			}
		}
	}

	return nil
}
