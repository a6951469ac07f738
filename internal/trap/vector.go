package trap

// active is the Dispatcher the raw trap vector calls into. It is a
// package-level singleton rather than a parameter because the assembly
// trampoline that invokes it (vector_riscv64.s) cannot carry a Go
// closure across a machine-mode trap.
var active *Dispatcher

// SetActive installs the Dispatcher the trap vector will use once
// InstallVector arms mtvec, and every trap after that point is assumed to
// belong to the same hart as the frame InstallVector was given (this
// kernel targets a single hart; see §9 SMP non-goal).
func SetActive(d *Dispatcher) {
	active = d
}
