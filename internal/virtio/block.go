package virtio

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"github.com/AshTS/QorKernel/internal/executor"
)

const (
	reqTypeIn  = 0
	reqTypeOut = 1

	pendingStatus = 111

	// BlockSize is the VirtIO block device's fixed sector size, matching
	// the BlockDeviceDriver contract's BLOCK_SIZE=512 (§4.10).
	BlockSize = 512
)

// BlockError is one of the status codes a completed request can report.
type BlockError int

const (
	ErrIO BlockError = iota + 1
	ErrUnsupported
)

func (e BlockError) Error() string {
	switch e {
	case ErrIO:
		return "virtio: block I/O error"
	case ErrUnsupported:
		return "virtio: unsupported block operation"
	default:
		return "virtio: unknown block error"
	}
}

// ErrQueueNotInitialized is returned when a block operation runs before
// Initialize.
var ErrQueueNotInitialized = errors.New("virtio: queue not initialized")

// request holds the fixed-layout 16-byte VirtIO block request header,
// a pointer to the caller's data buffer, and the status word — the three
// pieces the 3-descriptor chain in executeRequest points at.
type request struct {
	RequestType uint32
	Reserved    uint32
	Sector      uint64
	data        unsafe.Pointer
	status      atomic.Uint32 // the device writes the status into the low byte
}

// BlockDevice drives a single VirtIO block device over its queue 0.
type BlockDevice struct {
	dev          *Device
	queue        *Queue
	ackUsedIndex uint16
}

// NewBlockDevice wraps an already-probed VirtIO Device known to be a
// block device.
func NewBlockDevice(dev *Device) *BlockDevice {
	return &BlockDevice{dev: dev}
}

// Initialize runs the legacy queue-setup handshake for queue 0 (§4.10,
// qor-os's VirtIOBlockDevice::initialize).
func (b *BlockDevice) Initialize(queuePFN func(q *Queue) uint32) error {
	maxSize := b.dev.MaxQueueSize(0)
	if maxSize < RingSize {
		return ErrBadQueueSize
	}
	b.queue = NewQueue()
	b.dev.SetQueue(0, RingSize, queuePFN(b.queue))
	b.dev.CompleteSetup()
	return nil
}

func (b *BlockDevice) executeRequest(req *request, dataLen uint32, write bool) {
	headerDesc := Descriptor{
		Addr: uint64(uintptr(unsafe.Pointer(req))),
		Len:  16,
		Flags: DescFNext,
	}
	headerIdx := b.queue.AddDescriptor(headerDesc)

	dataFlags := uint16(DescFNext)
	if !write {
		dataFlags |= DescFWrite
	}
	dataDesc := Descriptor{
		Addr:  uint64(uintptr(req.data)),
		Len:   dataLen,
		Flags: dataFlags,
	}
	dataIdx := b.queue.AddDescriptor(dataDesc)
	b.queue.LinkChain(headerIdx, dataIdx)

	statusDesc := Descriptor{
		Addr:  uint64(uintptr(unsafe.Pointer(&req.status))),
		Len:   1,
		Flags: DescFWrite,
	}
	statusIdx := b.queue.AddDescriptor(statusDesc)
	b.queue.LinkChain(dataIdx, statusIdx)

	b.queue.Submit(headerIdx)
	b.dev.Notify(0)
}

func newRequest(reqType uint32, sector uint64, data unsafe.Pointer) *request {
	r := &request{RequestType: reqType, Sector: sector, data: data}
	r.status.Store(pendingStatus)
	return r
}

func statusResult(v uint32) error {
	switch v {
	case 0:
		return nil
	case 1:
		return ErrIO
	case 2:
		return ErrUnsupported
	default:
		return errors.New("virtio: unrecognized block status")
	}
}

// BlockingReadWrite performs a synchronous block operation (§8 "VirtIO
// block read"): it submits the request and spins until the device writes
// a terminal status.
func (b *BlockDevice) BlockingReadWrite(data unsafe.Pointer, length int, blockIndex uint64, write bool) error {
	if b.queue == nil {
		return ErrQueueNotInitialized
	}
	reqType := uint32(reqTypeIn)
	if write {
		reqType = reqTypeOut
	}
	req := newRequest(reqType, blockIndex, data)
	b.executeRequest(req, uint32(length), write)

	for req.status.Load() == pendingStatus {
	}
	return statusResult(req.status.Load())
}

// NonBlockingReadWrite submits the request and returns a Future that
// resolves once the device posts a terminal status (§4.10/§4.8).
func (b *BlockDevice) NonBlockingReadWrite(data unsafe.Pointer, length int, blockIndex uint64, write bool) (*OperationFuture, error) {
	if b.queue == nil {
		return nil, ErrQueueNotInitialized
	}
	reqType := uint32(reqTypeIn)
	if write {
		reqType = reqTypeOut
	}
	req := newRequest(reqType, blockIndex, data)
	b.executeRequest(req, uint32(length), write)
	return &OperationFuture{req: req}, nil
}

// DrainUsed advances past completed entries in the used ring without
// freeing anything — individual requests own their own lifetime, per
// qor-os's clean_up.
func (b *BlockDevice) DrainUsed() {
	for b.ackUsedIndex != b.queue.Used.Idx {
		b.ackUsedIndex++
	}
}

// OperationFuture polls a single in-flight block request's status byte
// and implements executor.Future (§4.10/§4.8 "block-operation future").
type OperationFuture struct {
	req *request
	err error
}

// Poll implements executor.Future.
func (f *OperationFuture) Poll() executor.Poll {
	v := f.req.status.Load()
	if v == pendingStatus {
		return executor.Pending
	}
	f.err = statusResult(v)
	return executor.Ready
}

// Result returns the completed operation's outcome; valid only after Poll
// has returned executor.Ready.
func (f *OperationFuture) Result() error { return f.err }
