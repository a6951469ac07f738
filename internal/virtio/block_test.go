package virtio

import (
	"testing"
	"unsafe"
)

// fakeMMIO backs a Device with a plain byte slice instead of a real MMIO
// window, the way a host-side test double would (the register offsets in
// mmio.go are small enough to fit comfortably inside one page).
func fakeMMIO(t *testing.T) *Device {
	t.Helper()
	buf := make([]byte, 0x200)
	d := &Device{base: uintptr(unsafe.Pointer(&buf[0]))}
	d.setReg32(regMagicValue, magicValue)
	d.setReg32(regDeviceID, DeviceIDBlock)
	d.setReg32(regHostFeatures, 0)
	d.setReg32(regQueueNumMax, RingSize)
	return d
}

func TestProbeRecognizesMagicValue(t *testing.T) {
	d := fakeMMIO(t)
	got, err := Probe(d.base)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if got.DeviceID() != DeviceIDBlock {
		t.Fatalf("DeviceID() = %d, want %d", got.DeviceID(), DeviceIDBlock)
	}
}

func TestProbeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, 0x10)
	if _, err := Probe(uintptr(unsafe.Pointer(&buf[0]))); err != ErrNotVirtIO {
		t.Fatalf("Probe on zeroed memory = %v, want ErrNotVirtIO", err)
	}
}

func TestBlockDeviceInitializeRejectsUndersizedQueue(t *testing.T) {
	d := fakeMMIO(t)
	d.setReg32(regQueueNumMax, RingSize-1)
	bd := NewBlockDevice(d)
	if err := bd.Initialize(func(*Queue) uint32 { return 0 }); err != ErrBadQueueSize {
		t.Fatalf("Initialize with undersized queue = %v, want ErrBadQueueSize", err)
	}
}

func TestBlockDeviceInitializeSetsDriverOK(t *testing.T) {
	d := fakeMMIO(t)
	bd := NewBlockDevice(d)
	if err := bd.Initialize(func(q *Queue) uint32 { return uint32(uintptr(unsafe.Pointer(q)) / 4096) }); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if d.Status()&StatusDriverOK == 0 {
		t.Fatal("expected StatusDriverOK to be set after Initialize")
	}
	if bd.queue == nil {
		t.Fatal("expected queue to be assigned after Initialize")
	}
}

// TestBlockDeviceBlockingReadWriteBeforeInitialize covers §8 scenario 6's
// precondition: a block operation issued before Initialize must fail
// cleanly rather than dereference a nil queue.
func TestBlockDeviceBlockingReadWriteBeforeInitialize(t *testing.T) {
	bd := NewBlockDevice(fakeMMIO(t))
	buf := make([]byte, BlockSize)
	err := bd.BlockingReadWrite(unsafe.Pointer(&buf[0]), BlockSize, 0, false)
	if err != ErrQueueNotInitialized {
		t.Fatalf("BlockingReadWrite before Initialize = %v, want ErrQueueNotInitialized", err)
	}
}

// TestBlockDeviceExecuteRequestChainsThreeDescriptors exercises the
// request/data/status descriptor chain executeRequest builds (§4.10),
// without driving it through a real device (nothing services the used
// ring in this test, so it only checks submission, not completion).
func TestBlockDeviceExecuteRequestChainsThreeDescriptors(t *testing.T) {
	d := fakeMMIO(t)
	bd := NewBlockDevice(d)
	if err := bd.Initialize(func(q *Queue) uint32 { return uint32(uintptr(unsafe.Pointer(q)) / 4096) }); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	data := make([]byte, BlockSize)
	req := newRequest(reqTypeIn, 3, unsafe.Pointer(&data[0]))
	bd.executeRequest(req, BlockSize, false)

	headIdx := bd.queue.Available.Ring[bd.queue.Available.Idx-1]
	headerDesc := bd.queue.Descriptors[headIdx]
	if headerDesc.Flags&DescFNext == 0 {
		t.Fatal("expected header descriptor to chain to the data descriptor")
	}
	dataDesc := bd.queue.Descriptors[headerDesc.Next]
	if dataDesc.Flags&DescFWrite == 0 {
		t.Fatal("expected data descriptor to be device-writable on a read")
	}
	if dataDesc.Flags&DescFNext == 0 {
		t.Fatal("expected data descriptor to chain to the status descriptor")
	}
	statusDesc := bd.queue.Descriptors[dataDesc.Next]
	if statusDesc.Len != 1 {
		t.Fatalf("status descriptor length = %d, want 1", statusDesc.Len)
	}
}
