//go:build !windows

package proc

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// Usage is a point-in-time resource sample aggregated over every live member
// of a process group. A sample with Members == 0 is the empty sample: the
// group had already exited, which is a valid observation rather than a
// failure.
type Usage struct {
	CPUPercent  float64
	MemoryBytes uint64
	Members     int
}

// GroupUsage sums CPU percentage and resident memory across all live members
// of the group. Processes that vanish mid-sample are skipped.
func GroupUsage(pgid int) (Usage, error) {
	procs, err := process.Processes()
	if err != nil {
		return Usage{}, fmt.Errorf("enumerate processes: %w", err)
	}

	var usage Usage
	for _, p := range procs {
		pid := int(p.Pid)
		if pid == 0 {
			continue
		}
		got, err := unix.Getpgid(pid)
		if err != nil || got != pgid {
			continue
		}
		usage.Members++
		if cpu, err := p.CPUPercent(); err == nil {
			usage.CPUPercent += cpu
		}
		if info, err := p.MemoryInfo(); err == nil && info != nil {
			usage.MemoryBytes += info.RSS
		}
	}
	return usage, nil
}

// LowMemory reports whether system available memory has fallen below floor.
// It is a best-effort probe used to annotate out-of-band kills with a likely
// memory-pressure cause; any failure reads as "no pressure detected".
func LowMemory(floor uint64) (bool, uint64) {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return false, 0
	}
	return vm.Available < floor, vm.Available
}
