//go:build !windows

package proc

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const reapPollInterval = 50 * time.Millisecond

// Escalation is the graceful-then-forceful signal sequence used to terminate
// a process group, separated by a bounded grace interval.
type Escalation struct {
	Graceful syscall.Signal
	Forceful syscall.Signal
	Grace    time.Duration
}

// DefaultEscalation is the process-wide termination policy.
var DefaultEscalation = Escalation{
	Graceful: syscall.SIGTERM,
	Forceful: syscall.SIGKILL,
	Grace:    2 * time.Second,
}

// SignalGroup delivers sig to every member of the process group. A group with
// no live members is a no-op, not an error.
func SignalGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 0 {
		return nil
	}
	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d with %s: %w", pgid, sig, err)
	}
	return nil
}

// TerminateGroup empties the process group: it enumerates the live members,
// sends the graceful signal to the group as a whole, waits up to the grace
// interval for the original members to die, then sends the forceful signal to
// the group if any survive. Safe to call repeatedly and concurrently with a
// natural exit; "process already gone" is success throughout.
//
// onSignal, when non-nil, runs immediately before each signal actually goes
// out, so callers can record it ahead of any exit it causes.
func TerminateGroup(ctx context.Context, pgid int, esc Escalation, onSignal func(syscall.Signal)) error {
	members, err := GroupMembers(pgid)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	if onSignal != nil {
		onSignal(esc.Graceful)
	}
	if err := SignalGroup(pgid, esc.Graceful); err != nil {
		return err
	}

	deadline := time.Now().Add(esc.Grace)
	for time.Now().Before(deadline) {
		if !anyAlive(members) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reapPollInterval):
		}
	}

	if !anyAlive(members) {
		return nil
	}
	if onSignal != nil {
		onSignal(esc.Forceful)
	}
	if err := SignalGroup(pgid, esc.Forceful); err != nil {
		return err
	}

	// Give the forceful signal a moment to land so callers observe an empty
	// group on return.
	forcefulDeadline := time.Now().Add(time.Second)
	for time.Now().Before(forcefulDeadline) && anyAlive(members) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reapPollInterval):
		}
	}
	return nil
}

func anyAlive(pids []int) bool {
	for _, pid := range pids {
		if Alive(pid) {
			return true
		}
	}
	return false
}
