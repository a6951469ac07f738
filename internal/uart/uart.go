// Package uart drives the 16550-compatible UART at a fixed MMIO base
// (§6 "UART"). It exposes the byte interface trap dispatch and the
// console need, plus an io.Writer so kernel logging can target it.
package uart

import (
	"sync"
	"unsafe"
)

const (
	regRBR = 0 // receiver buffer (read, DLAB=0)
	regTHR = 0 // transmit holding (write, DLAB=0)
	regDLL = 0 // divisor latch low (DLAB=1)
	regIER = 1 // interrupt enable (DLAB=0)
	regDLM = 1 // divisor latch high (DLAB=1)
	regFCR = 2 // FIFO control (write)
	regLCR = 3 // line control
	regLSR = 5 // line status

	lcrDLAB  = 1 << 7
	lcrWordLength8 = 0x03
	fcrEnable      = 0x01
	fcrClear       = 0x06
	ierRxAvailable = 0x01

	lsrDataReady       = 0x01
	lsrTransmitterEmpty = 0x20

	// divisor for ~9600 baud against the virt platform's fixed UART clock.
	divisor = 592
)

// UART is the memory-mapped 16550 device at a fixed base address.
type UART struct {
	base uintptr
	mu   sync.Mutex
}

// New returns a UART mapped at base, performing the standard 8N1 +
// FIFO + receive-interrupt initialization sequence.
func New(base uintptr) *UART {
	u := &UART{base: base}
	u.init()
	return u
}

func (u *UART) reg(offset uintptr) *byte {
	return (*byte)(unsafe.Pointer(u.base + offset))
}

func (u *UART) init() {
	*u.reg(regIER) = 0
	*u.reg(regLCR) = lcrDLAB
	*u.reg(regDLL) = byte(divisor & 0xff)
	*u.reg(regDLM) = byte(divisor >> 8)
	*u.reg(regLCR) = lcrWordLength8
	*u.reg(regFCR) = fcrEnable | fcrClear
	*u.reg(regIER) = ierRxAvailable
}

// SendByte blocks until the transmitter is ready, then writes b.
func (u *UART) SendByte(b byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for *u.reg(regLSR)&lsrTransmitterEmpty == 0 {
	}
	*u.reg(regTHR) = b
	return nil
}

// ReadByte returns the pending received byte, if any, without blocking.
func (u *UART) ReadByte() (byte, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if *u.reg(regLSR)&lsrDataReady == 0 {
		return 0, false, nil
	}
	return *u.reg(regRBR), true, nil
}

// Write implements io.Writer by sending each byte in turn.
func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		if err := u.SendByte(b); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}
