//go:build !windows

package proc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

const leaderPollInterval = 10 * time.Millisecond

// Group resolves the current process-group id of pid. The result is read
// fresh from the OS on every call; callers must not cache it while the child
// may still be electing itself group leader.
func Group(pid int) (int, error) {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return 0, fmt.Errorf("getpgid %d: %w", pid, err)
	}
	return pgid, nil
}

// Alive reports whether pid refers to a live (or zombie) process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// GroupMembers enumerates every live process whose group id matches pgid.
// A group with no members yields an empty slice, not an error.
func GroupMembers(pgid int) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	var members []int
	for _, p := range procs {
		pid := int(p.Pid)
		if pid == 0 {
			continue
		}
		got, err := unix.Getpgid(pid)
		if err != nil {
			// Process vanished between enumeration and the pgid read.
			continue
		}
		if got == pgid {
			members = append(members, pid)
		}
	}
	return members, nil
}

// AwaitLeader polls until the child's group id equals its own pid, marking it
// as the root of a fresh process group. The parent has no blocking primitive
// for this transition, so a bounded poll is the only portable option. A child
// that is already gone is treated as having completed election: it was
// started as a session leader, so its group id matched its pid from birth.
func AwaitLeader(ctx context.Context, pid int, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		pgid, err := unix.Getpgid(pid)
		if err == nil && pgid == pid {
			return pgid, nil
		}
		if errors.Is(err, unix.ESRCH) {
			return pid, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("process %d did not become group leader within %s", pid, timeout)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(leaderPollInterval):
		}
	}
}
