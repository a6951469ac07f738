//go:build riscv64

package proc

// switchToUser is implemented in switch_riscv64.s: it loads satp, points
// mscratch at frame, and executes mret into pc at the loaded privilege
// level (§4.9 "switch_to_user"). There is no Go-expressible equivalent of
// mret — this is the one place the kernel must drop to assembly, same as
// the teacher's own runtime does for context switches it can't express in
// Go.
//
//go:noescape
func switchToUser(framePtr uintptr, pc uint64, satp uint64)
