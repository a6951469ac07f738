package syscall

import "unsafe"

// bytesAt views length bytes starting at a physical address as a Go byte
// slice. Valid only because, on this kernel's MMU configuration, the
// addresses the page table resolves to are directly usable pointers
// (§4.4 "identity mapping").
func bytesAt(addr uintptr, length uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
}
