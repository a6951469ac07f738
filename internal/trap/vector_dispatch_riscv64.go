//go:build riscv64

package trap

import (
	"unsafe"

	"github.com/AshTS/QorKernel/internal/id"
)

// InstallVector points mtvec at the raw trap entry and mscratch at
// frame, the Frame every subsequent trap on this hart saves registers
// into before calling back into SetActive's Dispatcher.
func InstallVector(frame *Frame) {
	installVector(uintptr(unsafe.Pointer(frame)))
}

// dispatchFromVector is called by trapentry (vector_riscv64.s) with the
// Go stack not yet safely established for anything beyond this leaf
// call — it must not allocate, and every collaborator it reaches
// (Dispatcher's Clint/PLIC/UART/Scheduler/Syscalls) must hold up under
// that constraint, same as a traditional kernel's top-half.
func dispatchFromVector(framePtr uintptr) {
	frame := (*Frame)(unsafe.Pointer(framePtr))
	epc, tval, cause, status, hart := readTrapCSRs()
	info := FromRaw(epc, tval, cause, id.HartID(hart), status, frame)
	resume := active.Handle(info)
	writeMepc(resume)
}
