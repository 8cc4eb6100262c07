// Package runner supervises one unit of work as an isolated OS process group.
//
// The runner launches the child as a session leader so the child's process
// group id equals its own pid, which is what lets a single signal later reach
// everything the task spawned. Cancellation always targets the group by
// integer id rather than the process handle, because orphaned descendants can
// outlive the handle. Full group termination relies on POSIX job control and
// is therefore only guaranteed on Unix hosts.
//
// Per task, two concurrent activities run alongside the child: a resource
// sampling loop publishing aggregate CPU and memory gauges, and a reaper
// waiting on the child's true exit status. Both treat "process already gone"
// as a normal outcome and both are torn down before the task is declared
// terminated.
package runner
