package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"pushflow/logger"
)

// StartReport periodically emits process and host statistics together with
// the warn/error totals tracked by the logger.
func StartReport(ctx context.Context, log *logger.Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitReport(log)
			}
		}
	}()
}

func emitReport(log *logger.Log) {
	const component = "runtime_report"

	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memUsedMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(vm.Used) / 1024 / 1024
	}

	EmitMetric(log, component, "cpu_percent", cpuPct, "gauge", logger.Fields{"unit": "percent"})
	EmitMetric(log, component, "memory_used_mb", memUsedMB, "gauge", logger.Fields{"unit": "megabytes"})
	EmitMetric(log, component, "goroutines", runtime.NumGoroutine(), "gauge", nil)

	for name, counts := range logger.Counts() {
		EmitMetric(log, component, "log_warnings", counts.Warns, "counter", logger.Fields{"source": name})
		EmitMetric(log, component, "log_errors", counts.Errors, "counter", logger.Fields{"source": name})
	}
}
