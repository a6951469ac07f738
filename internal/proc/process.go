// Package proc implements the process model: ELF loading, address-space
// construction, and the trap-frame based user-mode entry (§4.9).
// Generalizes the teacher's accnt.Space_t and tinfo.Tinfo_t (biscuit's
// per-process and per-hart state) to RISC-V's page table + trap frame
// pair.
package proc

import (
	"sync"
	"sync/atomic"

	"github.com/AshTS/QorKernel/internal/id"
	"github.com/AshTS/QorKernel/internal/mem"
	"github.com/AshTS/QorKernel/internal/sv39"
	"github.com/AshTS/QorKernel/internal/trap"
)

// State is one of a process's lifecycle states (§4.9).
type State int

const (
	Active State = iota
	Running
	Sleeping
	Waiting
	Terminated
)

// File is the minimal async file object a syscall handler operates on
// (§4.9/§4.10): writes are driven to completion on a fresh single-use
// executor rather than blocking the caller directly.
type File interface {
	// Write returns a Future that completes once len(data) bytes have
	// been accepted, or an error is latched for Result to report.
	Write(data []byte) WriteFuture
}

// WriteFuture is the Future returned by File.Write; Result is only valid
// once the executor has polled it to Ready.
type WriteFuture interface {
	Poll() WriteFuturePoll
	Result() (int, error)
}

// WriteFuturePoll mirrors executor.Poll without importing executor here
// (this type alone is reused by every File implementation; importing the
// full package would be a needless dependency for such a small contract).
type WriteFuturePoll int

const (
	WritePending WriteFuturePoll = iota
	WriteReady
)

// Process is one running program: its page table, trap frame, mapped
// regions, and open file table (§3 "Process").
type Process struct {
	PID   id.PID
	State State

	PageTable *sv39.Table
	Frame     *trap.Frame

	ProgramCounter uint64

	Mapped []*MappedPageSequence
	Stats  *MemoryStatistics

	filesMu sync.Mutex
	Files   map[id.FD]File
}

var pidCounter atomic.Uint32

func newPID() id.PID {
	return id.PID(pidCounter.Add(1))
}

// New allocates a bare process with an empty page table and zeroed trap
// frame, ready for the caller to populate (LoadELF does this for an ELF
// image).
func New() *Process {
	return &Process{
		PID:       newPID(),
		State:     Active,
		PageTable: &sv39.Table{},
		Frame:     &trap.Frame{},
		Stats:     &MemoryStatistics{},
		Files:     make(map[id.FD]File),
	}
}

// Satp builds this process's SATP value, using its PID as the Sv39 ASID
// (§9 "PID doubles as ASID").
func (p *Process) Satp(root uintptr) uint64 {
	return sv39.Satp(uint16(p.PID), mem.Pa(root))
}

// File looks up an open file descriptor, reporting false if it isn't
// present.
func (p *Process) File(fd id.FD) (File, bool) {
	p.filesMu.Lock()
	defer p.filesMu.Unlock()
	f, ok := p.Files[fd]
	return f, ok
}

// SetFile installs f at fd, overwriting any previous occupant.
func (p *Process) SetFile(fd id.FD, f File) {
	p.filesMu.Lock()
	defer p.filesMu.Unlock()
	p.Files[fd] = f
}

// Translate resolves a userspace virtual address through this process's
// page table.
func (p *Process) Translate(va uint64) (uintptr, bool) {
	pa, ok := p.PageTable.Translate(va)
	return uintptr(pa), ok
}
