// Package trap implements the machine-mode trap frame, cause decoding,
// and dispatch (§4.5). It generalizes the teacher's trap-frame
// conventions (biscuit's per-hart state in tinfo.Tinfo_t) to RISC-V's
// TrapFrame/mscratch model.
package trap

import "github.com/AshTS/QorKernel/internal/id"

// Frame is the machine-mode trap frame (§3 "TrapFrame"): 32 general
// registers, 32 FP registers, the active SATP, a trap stack, and the hart
// id. One lives per hart for kernel traps; per-process frames hold user
// state on entry.
type Frame struct {
	Registers             [32]uint64
	FloatingPointRegisters [32]uint64
	Satp                   uint64
	TrapStack              uintptr
	TrapStackSize          uint64
	HartID                 id.HartID
}

// PID recovers the process id from the frame's SATP ASID field (bits
// 44-59), since PID doubles as the Sv39 ASID (§9).
func (f *Frame) PID() id.PID {
	return id.PID((f.Satp >> 44) & 0xffff)
}
