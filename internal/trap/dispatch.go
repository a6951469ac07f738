package trap

import (
	"fmt"

	"github.com/AshTS/QorKernel/internal/id"
	"github.com/AshTS/QorKernel/internal/klog"
)

// UARTInterruptSource and VirtIOInterruptSources are the PLIC source ids
// wired up at boot (qor-os's interrupts.rs): the UART is source 10, the
// eight VirtIO MMIO windows are sources 1-8.
const UARTInterruptSource = 10

var VirtIOInterruptSources = [8]uint32{1, 2, 3, 4, 5, 6, 7, 8}

// Info carries everything a handler needs: the decoded cause, the
// faulting pc/tval, hart and status, and the active trap frame (§4.5
// "Handler contract on entry").
type Info struct {
	Cause  Cause
	TVal   uint64
	EPC    uint64
	Hart   id.HartID
	Status uint64
	Frame  *Frame
}

// FromRaw decodes a raw trap into an Info, panicking on an unrecognized
// cause code — bootstrap/dispatch failures of this kind are fatal (§7).
func FromRaw(epc, tval, cause uint64, hart id.HartID, status uint64, frame *Frame) Info {
	c, ok := causeFromRaw(cause)
	if !ok {
		panic(fmt.Sprintf("trap: invalid cause %#x", cause))
	}
	return Info{Cause: c, TVal: tval, EPC: epc, Hart: hart, Status: status, Frame: frame}
}

// Clint is the subset of CLINT behaviour trap dispatch needs.
type Clint interface {
	HandleInterrupt(hart id.HartID)
}

// PLIC is the subset of PLIC behaviour trap dispatch needs.
type PLIC interface {
	Claim(hart id.HartID) (source uint32, ok bool)
	Complete(hart id.HartID, source uint32)
}

// UART is the subset of UART behaviour trap dispatch needs.
type UART interface {
	ReadByte() (b byte, ok bool, err error)
}

// Scheduler pulls one process out of the run table and switches to it, if
// any exists (§4.5's MachineTimer handling, §4.8 "switch_to_user").
type Scheduler interface {
	SwitchToFirst() bool
}

// SyscallRunner dispatches a syscall for the given process/frame (§4.9).
type SyscallRunner interface {
	Dispatch(pid id.PID, frame *Frame)
}

// BlockWaiters is woken by a VirtIO interrupt source; the concrete
// virtio package registers callbacks per source id.
type BlockWaiters interface {
	Wake(source uint32)
}

// Dispatcher holds the collaborators trap dispatch needs, injected rather
// than imported directly to keep this package free of a dependency on
// proc/syscall/plic/clint/uart/virtio (proc and syscall import trap, so
// importing them here would cycle).
type Dispatcher struct {
	Clint     Clint
	PLIC      PLIC
	UART      UART
	Scheduler Scheduler
	Syscalls  SyscallRunner
	Block     BlockWaiters
	Log       *klog.Logger
}

// Handle implements §4.5's dispatch table. It returns the PC to resume
// at: epc+4 for synchronous traps (skip the trapping instruction), epc
// for asynchronous ones.
func (d *Dispatcher) Handle(info Info) uint64 {
	switch {
	case info.Cause.IsAsync && info.Cause.Async == MachineTimer:
		d.Clint.HandleInterrupt(info.Hart)
		d.Scheduler.SwitchToFirst()

	case info.Cause.IsAsync && info.Cause.Async == MachineExternal:
		d.handleExternal(info)

	case !info.Cause.IsAsync && info.Cause.Sync == Breakpoint:
		d.logger().Debug("breakpoint at %#x", info.EPC)

	case !info.Cause.IsAsync && info.Cause.Sync == EnvironmentCallFromUMode:
		d.Syscalls.Dispatch(info.Frame.PID(), info.Frame)

	default:
		panic(fmt.Sprintf("trap: unhandled cause %v", info.Cause))
	}

	if info.Cause.IsAsync {
		return info.EPC
	}
	return info.EPC + 4
}

func (d *Dispatcher) handleExternal(info Info) {
	source, ok := d.PLIC.Claim(info.Hart)
	if !ok {
		panic("trap: PLIC external interrupt with no pending source")
	}
	switch {
	case source == UARTInterruptSource:
		if b, ok, err := d.UART.ReadByte(); err == nil && ok {
			d.logger().Trace("uart: %c", b)
		}
	case isVirtIOSource(source):
		if d.Block != nil {
			d.Block.Wake(source)
		}
	default:
		panic(fmt.Sprintf("trap: unhandled interrupt source %d", source))
	}
	d.PLIC.Complete(info.Hart, source)
}

func (d *Dispatcher) logger() *klog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return klog.Global()
}

func isVirtIOSource(source uint32) bool {
	for _, s := range VirtIOInterruptSources {
		if s == source {
			return true
		}
	}
	return false
}
