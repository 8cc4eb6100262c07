package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	taskCPU = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overseer",
		Name:      "task_cpu_percent",
		Help:      "Aggregate CPU percentage across every live process in the task's group.",
	}, []string{"task"})

	taskMemory = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overseer",
		Name:      "task_memory_bytes",
		Help:      "Aggregate resident memory in bytes across every live process in the task's group.",
	}, []string{"task"})

	emptySamples = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "task_empty_samples_total",
		Help:      "Resource samples that found no live processes in the task's group.",
	}, []string{"task"})

	signalsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "task_signals_total",
		Help:      "Termination signals delivered to task process groups by the supervisor.",
	}, []string{"task", "signal"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overseer",
		Name:      "build_info",
		Help:      "Build metadata for the running overseer binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(taskCPU, taskMemory, emptySamples, signalsSent, buildInfo)
}

// Registry returns the Prometheus registry containing all overseer metrics.
func Registry() *prometheus.Registry {
	return registry
}

// SetTaskUsage records an aggregate resource sample for a task's group.
func SetTaskUsage(task string, cpuPercent float64, memoryBytes uint64) {
	if task == "" {
		return
	}
	taskCPU.WithLabelValues(task).Set(cpuPercent)
	taskMemory.WithLabelValues(task).Set(float64(memoryBytes))
}

// AddEmptySample counts a sample tick that found the group already gone.
func AddEmptySample(task string) {
	if task == "" {
		return
	}
	emptySamples.WithLabelValues(task).Inc()
}

// AddSignalSent counts a termination signal issued against a task's group.
func AddSignalSent(task, signal string) {
	if task == "" || signal == "" {
		return
	}
	signalsSent.WithLabelValues(task, signal).Inc()
}

// ResetTask clears the per-task series once the task is torn down.
func ResetTask(task string) {
	if task == "" {
		return
	}
	taskCPU.DeleteLabelValues(task)
	taskMemory.DeleteLabelValues(task)
	emptySamples.DeleteLabelValues(task)
	signalsSent.DeletePartialMatch(prometheus.Labels{"task": task})
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
