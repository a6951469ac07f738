//go:build riscv64

package trap

// readTrapCSRs reads the machine-mode trap-cause registers plus the
// current hart id, all of which only a raw CSR read can produce.
//
//go:noescape
func readTrapCSRs() (epc, tval, cause, status, hart uint64)
