package proc

import (
	"io"
	"unsafe"
)

// ScratchHeap is the byte-allocator contract a File can use to stage a
// write before it reaches a device (§4.3's byte allocator, here put to
// work rather than left unconsumed). internal/byteheap.Heap satisfies
// this directly.
type ScratchHeap interface {
	Alloc(size, align uintptr) (uintptr, error)
	Free(ptr uintptr)
}

// ConsoleFile adapts any io.Writer (in practice the UART) into the
// minimal async File a process's fd table holds, satisfying the write
// syscall's collaborator contract (§4.10).
//
// It copies the caller's buffer into a scratch region carved from heap
// before writing it out, rather than handing the device a pointer into
// the process's own mapped memory: the process still owns that mapping
// and could keep writing to it while the device is mid-transfer.
type ConsoleFile struct {
	w    io.Writer
	heap ScratchHeap
}

// NewConsoleFile wraps w, staging every write through heap.
func NewConsoleFile(w io.Writer, heap ScratchHeap) *ConsoleFile {
	return &ConsoleFile{w: w, heap: heap}
}

// Write implements File. The underlying UART write is itself blocking
// (one byte at a time, spinning on LSR), so the returned future is always
// Ready on its first poll — there's nothing to wait on beyond that call.
func (c *ConsoleFile) Write(data []byte) WriteFuture {
	if len(data) == 0 || c.heap == nil {
		n, err := c.w.Write(data)
		return &readyWrite{n: n, err: err}
	}

	ptr, err := c.heap.Alloc(uintptr(len(data)), 1)
	if err != nil {
		// Heap exhausted: fall back to writing the caller's buffer
		// directly rather than failing a write the device could still
		// service.
		n, werr := c.w.Write(data)
		return &readyWrite{n: n, err: werr}
	}
	defer c.heap.Free(ptr)

	scratch := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(data))
	copy(scratch, data)
	n, err := c.w.Write(scratch)
	return &readyWrite{n: n, err: err}
}

type readyWrite struct {
	n   int
	err error
}

func (r *readyWrite) Poll() WriteFuturePoll    { return WriteReady }
func (r *readyWrite) Result() (int, error)     { return r.n, r.err }
