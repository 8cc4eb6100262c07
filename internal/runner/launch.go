package runner

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"syscall"
)

// buildCmd assembles the child command. The child is started as a session
// leader so it is born owning a fresh process group whose id equals its pid.
// When an alternate identity is requested the launch routes through sudo: the
// supervisor process must keep its own identity to retain the right to signal
// and reap the child afterwards.
func (r *Runner) buildCmd(cfgPath string) (*exec.Cmd, error) {
	if len(r.task.Command) == 0 {
		return nil, fmt.Errorf("task %s requires a command", r.task.Name)
	}

	argv := append([]string(nil), r.task.Command...)
	if r.needsImpersonation() {
		argv = append([]string{"sudo", "-E", "-H", "-u", r.task.RunAsUser}, argv...)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if r.task.Workdir != "" {
		cmd.Dir = r.task.Workdir
	}

	env := os.Environ()
	for k, v := range r.task.Env {
		env = append(env, k+"="+v)
	}
	// Identifying context so side effects of the work can be correlated back
	// to this task without inspecting supervisor internals.
	env = append(env,
		"OVERSEER_CONTEXT_TASK="+r.task.Name,
		"OVERSEER_CONTEXT_RUN="+r.task.RunID,
		"OVERSEER_CONFIG_PATH="+cfgPath,
	)
	cmd.Env = env

	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd, nil
}

// needsImpersonation reports whether launching must drop to an alternate OS
// identity. Running as the supervisor's own user needs no privilege helper.
func (r *Runner) needsImpersonation() bool {
	if r.task.RunAsUser == "" {
		return false
	}
	if current, err := user.Current(); err == nil && current.Username == r.task.RunAsUser {
		return false
	}
	return true
}
