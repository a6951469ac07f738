package proc

import "unsafe"

// SwitchTo performs the (irreversible, on real hardware) switch into p's
// user-mode execution context. Build-tagged assembly backs this on
// riscv64; other GOARCHes have no meaningful mret and never reach here in
// practice (this kernel only targets QEMU's riscv64 virt platform).
func SwitchTo(p *Process) {
	p.State = Running
	satp := p.Frame.Satp
	if satp == 0 {
		satp = p.Satp(uintptr(unsafe.Pointer(p.PageTable)))
		p.Frame.Satp = satp
	}
	switchToUser(uintptr(unsafe.Pointer(p.Frame)), p.ProgramCounter, satp)
}
