// Package id holds the small newtype identifiers threaded through the
// kernel: hart, process, user, group and file-descriptor numbers.
package id

// HartID identifies a RISC-V hardware thread.
type HartID uint

// PID identifies a process. PID doubles as the Sv39 ASID (§9 of the design
// notes), so the space is 16 bits. proc.New hands out PIDs from a monotonic
// counter truncated to 16 bits and never recycles them, so values repeat
// after 65535 processes.
type PID uint16

// UID identifies a user.
type UID uint16

// GID identifies a group.
type GID uint16

// FD identifies an open file within a single process's descriptor table.
type FD uint64
