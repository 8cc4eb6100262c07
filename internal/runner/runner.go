package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	units "github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/jmharte/overseer/internal/cliutil"
	"github.com/jmharte/overseer/internal/config"
	"github.com/jmharte/overseer/internal/listener"
	"github.com/jmharte/overseer/internal/metrics"
	"github.com/jmharte/overseer/internal/proc"
	"github.com/jmharte/overseer/internal/staging"
	"github.com/jmharte/overseer/internal/task"
)

const defaultMemoryFloor = uint64(128 * units.MiB)

// Runner supervises a single task: it stages configuration, launches the
// child as a process-group leader, samples the group's resource usage,
// terminates the group on request and classifies the exit.
type Runner struct {
	task   *task.Task
	file   *config.File
	logger *zap.Logger

	listeners *listener.Registry
	stager    *staging.Stager

	esc             proc.Escalation
	monitorInterval time.Duration
	leaderTimeout   time.Duration
	memoryWarn      int64
	memoryFloor     uint64

	mu        sync.Mutex
	state     task.State
	cmd       *exec.Cmd
	pgid      int
	cfgPath   string
	sent      map[syscall.Signal]bool
	cause     task.TerminationCause
	haveCause bool

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}

	logWG sync.WaitGroup
	done  chan struct{}
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger used by the runner and its stager.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithListeners attaches the registry lifecycle events are delivered to.
func WithListeners(reg *listener.Registry) Option {
	return func(r *Runner) { r.listeners = reg }
}

// WithEscalation overrides the process-wide default termination policy.
func WithEscalation(esc proc.Escalation) Option {
	return func(r *Runner) { r.esc = esc }
}

// WithMonitorInterval overrides the resource sampling cadence.
func WithMonitorInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.monitorInterval = d
		}
	}
}

// WithLeaderTimeout overrides the bound on the group-leader election poll.
func WithLeaderTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.leaderTimeout = d
		}
	}
}

// WithMemoryFloor overrides the available-memory floor used by the
// out-of-band kill diagnosis.
func WithMemoryFloor(bytes uint64) Option {
	return func(r *Runner) { r.memoryFloor = bytes }
}

// New constructs a runner for the task. A nil manifest is synthesized from
// the task descriptor so callers that do not go through a task.yaml still get
// a stageable configuration.
func New(t *task.Task, file *config.File, opts ...Option) *Runner {
	if file == nil {
		file = &config.File{Task: config.TaskSpec{
			Name:      t.Name,
			Run:       t.Command,
			Env:       t.Env,
			RunAsUser: t.RunAsUser,
			Workdir:   t.Workdir,
		}}
		_ = file.ApplyDefaults()
	}

	r := &Runner{
		task:            t,
		file:            file,
		logger:          zap.NewNop(),
		esc:             proc.DefaultEscalation,
		monitorInterval: file.Task.MonitorInterval.Duration,
		leaderTimeout:   file.Task.LeaderTimeout.Duration,
		memoryWarn:      file.Task.MemoryWarnBytes,
		memoryFloor:     defaultMemoryFloor,
		state:           task.StateNotStarted,
		sent:            make(map[syscall.Signal]bool),
		done:            make(chan struct{}),
	}
	if file.Task.GracePeriod.IsSet() {
		r.esc.Grace = file.Task.GracePeriod.Duration
	}
	for _, opt := range opts {
		opt(r)
	}
	r.stager = staging.New(r.logger)
	if r.monitorInterval <= 0 {
		r.monitorInterval = 5 * time.Second
	}
	if r.leaderTimeout <= 0 {
		r.leaderTimeout = time.Second
	}
	return r
}

// Start stages the configuration, launches the child and waits for its group
// self-election to converge. It fails fast: any error here means the task
// never reached Running and only the Starting/Stopping event pair fired.
func (r *Runner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	if r.state != task.StateNotStarted {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("task %s already started (state %s)", r.task.Name, state)
	}
	r.state = task.StateStarting
	r.mu.Unlock()

	r.notify(listener.EventStarting, nil)

	includes := r.task.RunAsUser != ""
	owner := ""
	if r.needsImpersonation() {
		owner = r.task.RunAsUser
	}
	cfgPath, err := r.stager.Stage(r.file, staging.Options{
		IncludeEnv:     includes,
		IncludeCommand: includes,
		Owner:          owner,
	})
	if err != nil {
		return r.failStart(fmt.Errorf("stage config for task %s: %w", r.task.Name, err))
	}
	r.mu.Lock()
	r.cfgPath = cfgPath
	r.mu.Unlock()

	cmd, err := r.buildCmd(cfgPath)
	if err != nil {
		return r.failStart(err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.failStart(fmt.Errorf("task %s stdout: %w", r.task.Name, err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.failStart(fmt.Errorf("task %s stderr: %w", r.task.Name, err))
	}

	if err := cmd.Start(); err != nil {
		return r.failStart(fmt.Errorf("launch task %s: %w", r.task.Name, err))
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	r.logWG.Add(2)
	go r.streamOutput(stdout, "stdout")
	go r.streamOutput(stderr, "stderr")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	pgid, err := proc.AwaitLeader(ctx, cmd.Process.Pid, r.leaderTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		<-waitCh
		r.logWG.Wait()
		r.mu.Lock()
		r.cmd = nil
		r.mu.Unlock()
		return r.failStart(fmt.Errorf("task %s group election: %w", r.task.Name, err))
	}

	monCtx, monCancel := context.WithCancel(context.Background())
	monDone := make(chan struct{})

	r.mu.Lock()
	r.pgid = pgid
	r.state = task.StateRunning
	r.monitorCancel = monCancel
	r.monitorDone = monDone
	r.mu.Unlock()

	r.logger.Info("task running",
		zap.String("task", r.task.Name),
		zap.String("run", r.task.RunID),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("pgid", pgid))
	r.notify(listener.EventRunning, nil)

	go r.monitor(monCtx, monDone)
	go r.watchExit(waitCh)
	return nil
}

// failStart unwinds a failed launch: staged config removed, state back to
// NotStarted, the Stopping event paired with the Starting one already sent.
func (r *Runner) failStart(err error) error {
	r.mu.Lock()
	cfgPath := r.cfgPath
	r.cfgPath = ""
	r.state = task.StateNotStarted
	r.mu.Unlock()

	if uerr := r.stager.Unstage(cfgPath); uerr != nil {
		r.logger.Warn("unstage config after failed launch", zap.Error(uerr))
	}
	r.notify(listener.EventStopping, err)
	return err
}

// Terminate empties the task's process group using the escalation policy. It
// is the sole cancellation entry point, callable from any goroutine, safe to
// invoke repeatedly and bounded by the policy's grace window. A group with no
// live members is a no-op.
func (r *Runner) Terminate() {
	r.mu.Lock()
	cmd := r.cmd
	esc := r.esc
	pgid := r.pgid
	r.mu.Unlock()

	// Resolve the group fresh while the handle is live: the id must not be
	// cached across the child's leader self-election. After the child has
	// been reaped the recorded group id stays actionable, and surviving
	// descendants in it still get signalled.
	if cmd != nil && cmd.Process != nil {
		if fresh, err := proc.Group(cmd.Process.Pid); err == nil {
			pgid = fresh
		}
	}
	if pgid <= 0 {
		return
	}

	// Recording happens before each send so exit classification never races
	// the signal, and only for signals that actually go out.
	onSignal := func(sig syscall.Signal) {
		r.recordSent(sig)
		metrics.AddSignalSent(r.task.Name, sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), esc.Grace+2*time.Second)
	defer cancel()
	if err := proc.TerminateGroup(ctx, pgid, esc, onSignal); err != nil {
		r.logger.Warn("terminate process group",
			zap.String("task", r.task.Name),
			zap.Int("pgid", pgid),
			zap.Error(err))
	}
}

// watchExit reaps the child, classifies the termination and records the
// single durable result.
func (r *Runner) watchExit(waitCh <-chan error) {
	waitErr := <-waitCh
	r.logWG.Wait()

	cause := r.classify(waitErr)

	r.mu.Lock()
	cancel := r.monitorCancel
	monDone := r.monitorDone
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if monDone != nil {
		<-monDone
	}

	r.mu.Lock()
	r.state = task.StateTerminated
	r.cause = cause
	r.haveCause = true
	cfgPath := r.cfgPath
	r.cfgPath = ""
	r.cmd = nil
	r.mu.Unlock()

	code := cause.ReturnCode()
	r.logger.Info("task terminated",
		zap.String("task", r.task.Name),
		zap.String("run", r.task.RunID),
		zap.Int("return_code", code),
		zap.String("cause", cause.String()))

	if code == 0 {
		r.notifyCode(listener.EventSucceeded, code)
	} else {
		r.notifyCode(listener.EventFailed, code)
	}
	r.notifyCode(listener.EventStopping, code)

	if err := r.stager.Unstage(cfgPath); err != nil {
		r.logger.Warn("unstage config", zap.Error(err))
	}
	metrics.ResetTask(r.task.Name)

	close(r.done)
}

// classify turns the reaped wait status into a termination cause. A signal we
// issued ourselves is a supervisor kill; any other signal is out-of-band and
// gets a best-effort memory-pressure diagnosis.
func (r *Runner) classify(waitErr error) task.TerminationCause {
	if waitErr == nil {
		return task.TerminationCause{Kind: task.CauseExited, Code: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				sig := ws.Signal()
				if r.signalSent(sig) {
					return task.TerminationCause{Kind: task.CauseSignaledBySupervisor, Signal: sig}
				}
				if low, avail := proc.LowMemory(r.memoryFloor); low {
					r.logger.Warn("task process was killed externally; the system is running out of memory",
						zap.String("task", r.task.Name),
						zap.String("signal", sig.String()),
						zap.Uint64("available_bytes", avail))
				} else {
					r.logger.Warn("task process was killed externally",
						zap.String("task", r.task.Name),
						zap.String("signal", sig.String()))
				}
				return task.TerminationCause{Kind: task.CauseSignaledExternally, Signal: sig}
			}
			return task.TerminationCause{Kind: task.CauseExited, Code: ws.ExitStatus()}
		}
		return task.TerminationCause{Kind: task.CauseExited, Code: exitErr.ExitCode()}
	}

	r.logger.Error("task wait failed", zap.String("task", r.task.Name), zap.Error(waitErr))
	return task.TerminationCause{Kind: task.CauseExited, Code: -1}
}

// ReturnCode blocks until the task has a durable result or ctx expires. A
// deadline only interrupts the wait; the result stays retrievable by calling
// ReturnCode again.
func (r *Runner) ReturnCode(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-r.done:
		code, _ := r.ReturnCodeNow()
		return code, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("waiting for task %s: %w", r.task.Name, ctx.Err())
	}
}

// ReturnCodeNow reports the result without blocking.
func (r *Runner) ReturnCodeNow() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveCause {
		return 0, false
	}
	return r.cause.ReturnCode(), true
}

// TerminationCause reports the classified cause once the task terminated.
func (r *Runner) TerminationCause() (task.TerminationCause, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cause, r.haveCause
}

// State reports the task's lifecycle state.
func (r *Runner) State() task.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PGID reports the process-group id assigned at launch, or zero before the
// task reached Running.
func (r *Runner) PGID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pgid
}

// Pid reports the direct child's pid while a process handle exists.
func (r *Runner) Pid() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0, false
	}
	return r.cmd.Process.Pid, true
}

func (r *Runner) recordSent(sig syscall.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[sig] = true
}

func (r *Runner) signalSent(sig syscall.Signal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[sig]
}

func (r *Runner) notify(t listener.EventType, err error) {
	r.listeners.Notify(listener.Event{
		Timestamp: time.Now(),
		Task:      r.task.Name,
		Run:       r.task.RunID,
		Type:      t,
		Err:       err,
	})
}

func (r *Runner) notifyCode(t listener.EventType, code int) {
	r.listeners.Notify(listener.Event{
		Timestamp:  time.Now(),
		Task:       r.task.Name,
		Run:        r.task.RunID,
		Type:       t,
		ReturnCode: code,
		HasCode:    true,
	})
}

func (r *Runner) streamOutput(rd io.Reader, stream string) {
	defer r.logWG.Done()
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		r.logger.Info("task output",
			zap.String("task", r.task.Name),
			zap.String("stream", stream),
			zap.String("line", cliutil.RedactSecrets(scanner.Text())))
	}
}
