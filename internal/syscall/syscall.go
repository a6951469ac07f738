// Package syscall implements the kernel's syscall ABI and dispatch table
// (§4.9): register convention (number in x17, args in x10-x16, return in
// x10) and the single functional syscall, write. Grounded in qor-os's
// syscalls::handler raw_handle_syscall / handlers::write, recast as a Go
// dispatch table keyed by number rather than a generated enum.
package syscall

import (
	"github.com/AshTS/QorKernel/internal/executor"
	"github.com/AshTS/QorKernel/internal/id"
	"github.com/AshTS/QorKernel/internal/kerr"
	"github.com/AshTS/QorKernel/internal/proc"
	"github.com/AshTS/QorKernel/internal/trap"
)

// Number identifies a syscall by its x17 value. Only Write is wired to a
// handler; every other number is reserved (§1 Non-goals: "full syscall
// ABI" is out of scope).
type Number uint64

const Write Number = 64

// Table looks up a process by PID for syscall dispatch, satisfying
// trap.SyscallRunner.
type Table struct {
	Processes *proc.Table
}

// Dispatch implements trap.SyscallRunner: it reads the syscall number and
// arguments out of frame per the ABI, runs the handler, and writes the
// result back into x10 (§4.9).
func (t *Table) Dispatch(pid id.PID, frame *trap.Frame) {
	p, ok := t.Processes.Lookup(uint16(pid))
	if !ok {
		return
	}

	number := Number(frame.Registers[17])
	var result int64
	switch number {
	case Write:
		result = write(p, frame.Registers[10], frame.Registers[11], frame.Registers[12])
	default:
		result = kerr.BadFileDescriptor.Syscall() // unimplemented syscalls report as if fd were invalid; §1 excludes a full ABI
	}
	frame.Registers[10] = uint64(result)
}

// write implements the single functional syscall (§4.9 "write(fd, buf,
// len)"): it resolves the userspace buffer through the process's page
// table, finds the file object at fd, and drives its async write to
// completion on a fresh, single-use executor before returning the byte
// count.
func write(p *proc.Process, fdArg, bufVA, length uint64) int64 {
	physAddr, ok := p.Translate(bufVA)
	if !ok {
		return kerr.Fault.Syscall()
	}

	fd := id.FD(fdArg)
	f, ok := p.File(fd)
	if !ok {
		return kerr.BadFileDescriptor.Syscall()
	}

	buf := bytesAt(physAddr, length)

	exec := executor.New()
	future := f.Write(buf)
	exec.Spawn(executor.FutureFunc(func() executor.Poll {
		switch future.Poll() {
		case proc.WriteReady:
			return executor.Ready
		default:
			return executor.Pending
		}
	}))
	exec.Run()

	n, err := future.Result()
	if err != nil {
		return kerr.Fault.Syscall()
	}
	return int64(n)
}
