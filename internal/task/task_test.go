package task

import (
	"syscall"
	"testing"

	"github.com/jmharte/overseer/internal/config"
)

func TestTerminationCauseReturnCode(t *testing.T) {
	tests := []struct {
		name  string
		cause TerminationCause
		want  int
	}{
		{"clean exit", TerminationCause{Kind: CauseExited, Code: 0}, 0},
		{"failed exit", TerminationCause{Kind: CauseExited, Code: 3}, 3},
		{"supervisor term", TerminationCause{Kind: CauseSignaledBySupervisor, Signal: syscall.SIGTERM}, -15},
		{"external kill", TerminationCause{Kind: CauseSignaledExternally, Signal: syscall.SIGKILL}, -9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cause.ReturnCode(); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFromSpecCopies(t *testing.T) {
	spec := &config.TaskSpec{
		Name:      "copy",
		Run:       []string{"/bin/sh", "-c", "true"},
		Env:       map[string]string{"KEY": "value"},
		RunAsUser: "etl",
		Workdir:   "/srv",
	}
	tsk := FromSpec(spec, "run-1")

	if tsk.Name != "copy" || tsk.RunID != "run-1" || tsk.RunAsUser != "etl" || tsk.Workdir != "/srv" {
		t.Fatalf("unexpected descriptor %+v", tsk)
	}

	// The descriptor is detached from the spec it was built from.
	tsk.Command[0] = "changed"
	tsk.Env["KEY"] = "changed"
	if spec.Run[0] != "/bin/sh" || spec.Env["KEY"] != "value" {
		t.Fatal("descriptor mutation leaked into the spec")
	}
}
