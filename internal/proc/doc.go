// Package proc provides the process-group primitives the supervisor is built
// on: resolving a child's group id, enumerating live group members, escalating
// group termination and aggregating resource usage across a group.
//
// Full process-group semantics require POSIX job control and are only
// supported on Unix hosts. Every query against a dead pid or an empty group is
// a defined, non-error outcome: process ids are immutable once assigned, so
// callers racing with process exit simply observe an empty result.
package proc
