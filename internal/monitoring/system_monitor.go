package monitoring

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemMonitor periodically samples process CPU and memory usage and
// exports them as Prometheus gauges. Sampling uses gopsutil so the
// numbers match what the OS accounts to this process, not just the Go
// heap.
type SystemMonitor struct {
	proc     *process.Process
	logger   zerolog.Logger
	interval time.Duration
}

func NewSystemMonitor(logger zerolog.Logger, interval time.Duration) (*SystemMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process handle: %w", err)
	}
	return &SystemMonitor{
		proc:     proc,
		logger:   logger.With().Str("component", "system_monitor").Logger(),
		interval: interval,
	}, nil
}

// Run samples until the context is cancelled.
func (m *SystemMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *SystemMonitor) sample() {
	cpuPct, err := m.proc.CPUPercent()
	if err != nil {
		m.logger.Warn().Str("error", SensitiveErr(err)).Msg("CPU sample failed")
	} else {
		SetProcessCPUPercent(cpuPct)
	}

	var rss uint64
	if mem, err := m.proc.MemoryInfo(); err != nil {
		m.logger.Warn().Str("error", SensitiveErr(err)).Msg("Memory sample failed")
	} else {
		rss = mem.RSS
		SetProcessMemoryBytes(mem.RSS)
	}

	goroutines := runtime.NumGoroutine()
	SetGoroutines(goroutines)

	m.logger.Debug().
		Float64("cpu_percent", cpuPct).
		Uint64("rss_bytes", rss).
		Int("goroutines", goroutines).
		Msg("System sample")
}
