package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jmharte/overseer/internal/metrics"
	"github.com/jmharte/overseer/internal/proc"
)

// monitor samples the task's process group on a fixed cadence for the task's
// lifetime. The inter-sample wait is interruptible by shutdown so no sampling
// activity trails past termination.
func (r *Runner) monitor(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sample()
		}
	}
}

// sample aggregates CPU and resident memory across the live group members
// and publishes the gauges. A vanished group yields an empty sample, never a
// supervisor-visible failure.
func (r *Runner) sample() {
	r.mu.Lock()
	pgid := r.pgid
	r.mu.Unlock()
	if pgid <= 0 {
		return
	}

	usage, err := proc.GroupUsage(pgid)
	if err != nil {
		r.logger.Debug("resource sample failed",
			zap.String("task", r.task.Name),
			zap.Error(err))
		return
	}
	if usage.Members == 0 {
		metrics.AddEmptySample(r.task.Name)
		return
	}

	metrics.SetTaskUsage(r.task.Name, usage.CPUPercent, usage.MemoryBytes)
	r.logger.Debug("task resource sample",
		zap.String("task", r.task.Name),
		zap.Float64("cpu_percent", usage.CPUPercent),
		zap.Uint64("memory_bytes", usage.MemoryBytes),
		zap.Int("members", usage.Members))

	if r.memoryWarn > 0 && usage.MemoryBytes > uint64(r.memoryWarn) {
		r.logger.Warn("task memory above warning threshold",
			zap.String("task", r.task.Name),
			zap.Uint64("memory_bytes", usage.MemoryBytes),
			zap.Int64("threshold_bytes", r.memoryWarn))
	}
}
