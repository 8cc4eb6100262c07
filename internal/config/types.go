package config

import (
	"fmt"
	"time"

	units "github.com/docker/go-units"
)

// Duration wraps time.Duration so task manifests can express delays as
// human-readable strings ("2s", "500ms").
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// File mirrors a task.yaml manifest.
type File struct {
	Task TaskSpec `yaml:"task"`
}

// TaskSpec describes a single unit of work to supervise.
type TaskSpec struct {
	Name            string            `yaml:"name"`
	Run             []string          `yaml:"run"`
	Env             map[string]string `yaml:"env"`
	RunAsUser       string            `yaml:"runAsUser"`
	Workdir         string            `yaml:"workdir"`
	GracePeriod     Duration          `yaml:"gracePeriod"`
	MonitorInterval Duration          `yaml:"monitorInterval"`
	LeaderTimeout   Duration          `yaml:"leaderTimeout"`
	MemoryWarn      string            `yaml:"memoryWarn"`

	// MemoryWarnBytes is the parsed form of MemoryWarn, resolved by Load.
	MemoryWarnBytes int64 `yaml:"-"`
}

const (
	defaultGracePeriod     = 2 * time.Second
	defaultMonitorInterval = 5 * time.Second
	defaultLeaderTimeout   = time.Second
)

// ApplyDefaults fills unset durations with process-wide defaults.
func (f *File) ApplyDefaults() error {
	t := &f.Task
	if !t.GracePeriod.IsSet() {
		t.GracePeriod.Duration = defaultGracePeriod
	}
	if !t.MonitorInterval.IsSet() {
		t.MonitorInterval.Duration = defaultMonitorInterval
	}
	if !t.LeaderTimeout.IsSet() {
		t.LeaderTimeout.Duration = defaultLeaderTimeout
	}
	if t.MemoryWarn != "" {
		bytes, err := units.RAMInBytes(t.MemoryWarn)
		if err != nil {
			return fmt.Errorf("invalid memoryWarn %q: %w", t.MemoryWarn, err)
		}
		t.MemoryWarnBytes = bytes
	}
	return nil
}

// Validate checks the manifest for structural errors.
func (f *File) Validate() error {
	t := &f.Task
	if t.Name == "" {
		return fmt.Errorf("task name is required")
	}
	if len(t.Run) == 0 {
		return fmt.Errorf("task %s: run command is required", t.Name)
	}
	if t.GracePeriod.Duration < 0 {
		return fmt.Errorf("task %s: gracePeriod must not be negative", t.Name)
	}
	if t.MonitorInterval.Duration <= 0 {
		return fmt.Errorf("task %s: monitorInterval must be positive", t.Name)
	}
	if t.LeaderTimeout.Duration <= 0 {
		return fmt.Errorf("task %s: leaderTimeout must be positive", t.Name)
	}
	return nil
}

// Scoped returns a copy of the manifest reduced to what the staged
// configuration may carry. Environment and command are stripped unless the
// matching include flag is set.
func (f *File) Scoped(includeEnv, includeCommand bool) *File {
	scoped := &File{Task: f.Task}
	scoped.Task.Env = nil
	scoped.Task.Run = nil
	if includeEnv && len(f.Task.Env) > 0 {
		env := make(map[string]string, len(f.Task.Env))
		for k, v := range f.Task.Env {
			env[k] = v
		}
		scoped.Task.Env = env
	}
	if includeCommand && len(f.Task.Run) > 0 {
		scoped.Task.Run = append([]string(nil), f.Task.Run...)
	}
	return scoped
}
