// Package task defines the work descriptor and terminal classification for a
// supervised unit of work.
package task

import (
	"fmt"
	"syscall"

	"github.com/jmharte/overseer/internal/config"
)

// State captures the lifecycle of a supervised task. Transitions only move
// forward: NotStarted -> Starting -> Running -> Terminated. Starting persists
// until the child has elected itself leader of its own process group.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateTerminated State = "terminated"
)

// CauseKind distinguishes how a supervised process group died.
type CauseKind string

const (
	// CauseExited marks a clean exit with an OS exit code.
	CauseExited CauseKind = "exited"
	// CauseSignaledBySupervisor marks a death from a signal this supervisor
	// issued through its own termination path.
	CauseSignaledBySupervisor CauseKind = "signaled_by_supervisor"
	// CauseSignaledExternally marks an out-of-band kill: the fatal signal was
	// never issued by this supervisor (OOM eviction, operator kill).
	CauseSignaledExternally CauseKind = "signaled_externally"
)

// TerminationCause is the durable classification of a task's death.
type TerminationCause struct {
	Kind   CauseKind
	Code   int
	Signal syscall.Signal
}

// ReturnCode renders the cause as a single integer: the exit code for clean
// exits, or the negated signal number for signalled deaths.
func (c TerminationCause) ReturnCode() int {
	if c.Kind == CauseExited {
		return c.Code
	}
	return -int(c.Signal)
}

func (c TerminationCause) String() string {
	switch c.Kind {
	case CauseExited:
		return fmt.Sprintf("exited with code %d", c.Code)
	case CauseSignaledBySupervisor:
		return fmt.Sprintf("terminated by supervisor with signal %s", c.Signal)
	case CauseSignaledExternally:
		return fmt.Sprintf("killed externally with signal %s", c.Signal)
	}
	return "unknown"
}

// Task is the immutable work descriptor handed to the runner: an argument
// vector, an environment, an optional alternate OS identity and a working
// directory. The process group it spawns is identified by integer id only and
// intentionally not modelled as an owned handle.
type Task struct {
	Name      string
	RunID     string
	Command   []string
	Env       map[string]string
	RunAsUser string
	Workdir   string
}

// FromSpec builds a Task from a loaded manifest.
func FromSpec(spec *config.TaskSpec, runID string) *Task {
	t := &Task{
		Name:      spec.Name,
		RunID:     runID,
		RunAsUser: spec.RunAsUser,
		Workdir:   spec.Workdir,
	}
	if len(spec.Run) > 0 {
		t.Command = append([]string(nil), spec.Run...)
	}
	if len(spec.Env) > 0 {
		env := make(map[string]string, len(spec.Env))
		for k, v := range spec.Env {
			env[k] = v
		}
		t.Env = env
	}
	return t
}
