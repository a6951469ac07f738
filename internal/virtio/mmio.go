// Package virtio implements the legacy VirtIO MMIO transport (§6
// "VirtIO MMIO") and, on top of it, a block device driver (§4.10's
// BlockDeviceDriver collaborator contract). Grounded in
// qor-os/src/drivers/virtio and qor-riscv's generic VirtIO wrapper.
package virtio

import (
	"errors"
	"sync/atomic"
	"unsafe"
)

const (
	regMagicValue      = 0x00
	regVersion         = 0x04
	regDeviceID        = 0x08
	regVendorID        = 0x0C
	regHostFeatures    = 0x10
	regHostFeaturesSel = 0x14
	regGuestFeatures   = 0x20
	regGuestFeaturesSel = 0x24
	regGuestPageSize   = 0x28
	regQueueSel        = 0x30
	regQueueNumMax     = 0x34
	regQueueNum        = 0x38
	regQueueAlign      = 0x3C
	regQueuePFN        = 0x40
	regQueueNotify     = 0x50
	regInterruptStatus = 0x60
	regInterruptAck    = 0x64
	regStatus          = 0x70
	regConfig          = 0x100

	magicValue = 0x74726976

	StatusAcknowledge = 1
	StatusDriver      = 2
	StatusDriverOK    = 4
	StatusFeaturesOK  = 8

	// DeviceIDBlock is the VirtIO device-id for a block device.
	DeviceIDBlock = 2

	guestPageSize = 4096
)

// ErrNotVirtIO is returned when the magic value doesn't match.
var ErrNotVirtIO = errors.New("virtio: bad magic value")

// ErrBadQueueSize is returned when the device's maximum queue size is
// smaller than RingSize.
var ErrBadQueueSize = errors.New("virtio: queue size too small")

// Device wraps one VirtIO MMIO register window.
type Device struct {
	base uintptr
}

// ProbeAddresses returns the eight descending MMIO windows probed at boot
// (§6), starting at 0x1000_8000 down to 0x1000_1000.
func ProbeAddresses() []uintptr {
	addrs := make([]uintptr, 8)
	for i := range addrs {
		addrs[i] = 0x1000_8000 - uintptr(i)*0x1000
	}
	return addrs
}

// Probe returns a Device for base if the magic value matches, else
// ErrNotVirtIO.
func Probe(base uintptr) (*Device, error) {
	d := &Device{base: base}
	if d.reg32(regMagicValue) != magicValue {
		return nil, ErrNotVirtIO
	}
	return d, nil
}

func (d *Device) regPtr32(offset uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(d.base + offset))
}

func (d *Device) reg32(offset uintptr) uint32 {
	return atomic.LoadUint32(d.regPtr32(offset))
}

func (d *Device) setReg32(offset uintptr, v uint32) {
	atomic.StoreUint32(d.regPtr32(offset), v)
}

// DeviceID returns the device's type id (§6: 2 = block device).
func (d *Device) DeviceID() uint32 { return d.reg32(regDeviceID) }

// Status returns the current status register value.
func (d *Device) Status() uint32 { return d.reg32(regStatus) }

// SetStatus ORs bits into the status register, per the VirtIO handshake.
func (d *Device) SetStatus(bits uint32) {
	d.setReg32(regStatus, d.Status()|bits)
}

// ResetStatus writes zero, resetting the device.
func (d *Device) ResetStatus() { d.setReg32(regStatus, 0) }

// NegotiateFeatures runs the legacy feature handshake: acknowledge,
// driver, then mask host features through filter before writing them
// back and declaring FEATURES_OK.
func (d *Device) NegotiateFeatures(filter func(uint32) uint32) {
	d.SetStatus(StatusAcknowledge)
	d.SetStatus(StatusDriver)
	host := d.reg32(regHostFeatures)
	d.setReg32(regGuestFeatures, filter(host))
	d.SetStatus(StatusFeaturesOK)
	d.setReg32(regGuestPageSize, guestPageSize)
}

// MaxQueueSize returns the device's reported maximum size for queue.
func (d *Device) MaxQueueSize(queue uint32) uint32 {
	d.setReg32(regQueueSel, queue)
	return d.reg32(regQueueNumMax)
}

// SetQueue configures queue's size, alignment, and physical page frame
// number, matching the legacy MMIO transport's queue-setup sequence.
func (d *Device) SetQueue(queue uint32, size uint32, pfn uint32) {
	d.setReg32(regQueueSel, queue)
	d.setReg32(regQueueNum, size)
	d.setReg32(regQueueAlign, guestPageSize)
	d.setReg32(regQueuePFN, pfn)
}

// CompleteSetup declares DRIVER_OK, handing control of the queues to the
// device.
func (d *Device) CompleteSetup() {
	d.SetStatus(StatusDriverOK)
}

// Notify kicks the device for the given queue.
func (d *Device) Notify(queue uint32) {
	d.setReg32(regQueueNotify, queue)
}

// InterruptStatus and InterruptAck service the device's interrupt line.
func (d *Device) InterruptStatus() uint32 { return d.reg32(regInterruptStatus) }
func (d *Device) InterruptAck(bits uint32) { d.setReg32(regInterruptAck, bits) }

// ConfigByte reads one byte from the device-specific configuration space
// (e.g. a block device's capacity field).
func (d *Device) ConfigByte(offset uintptr) byte {
	return *(*byte)(unsafe.Pointer(d.base + regConfig + offset))
}
