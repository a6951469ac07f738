package uart

import (
	"testing"
	"unsafe"
)

func newTestUART() *UART {
	buf := make([]byte, 16)
	return New(uintptr(unsafe.Pointer(&buf[0])))
}

func TestInitConfiguresLineControlAnd8N1(t *testing.T) {
	u := newTestUART()
	if *u.reg(regLCR) != lcrWordLength8 {
		t.Fatalf("LCR = %#x, want 8N1 word length", *u.reg(regLCR))
	}
	if *u.reg(regIER) != ierRxAvailable {
		t.Fatalf("IER = %#x, want receive-interrupt enabled", *u.reg(regIER))
	}
}

func TestSendByteWritesTHRWhenTransmitterEmpty(t *testing.T) {
	u := newTestUART()
	*u.reg(regLSR) = lsrTransmitterEmpty
	if err := u.SendByte('A'); err != nil {
		t.Fatal(err)
	}
	if *u.reg(regTHR) != 'A' {
		t.Fatalf("THR = %q, want 'A'", *u.reg(regTHR))
	}
}

func TestReadByteReportsNoDataWithoutDataReady(t *testing.T) {
	u := newTestUART()
	*u.reg(regLSR) = 0
	_, ok, err := u.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no data ready")
	}
}

func TestReadByteReturnsPendingByte(t *testing.T) {
	u := newTestUART()
	*u.reg(regLSR) = lsrDataReady
	*u.reg(regRBR) = 'z'
	b, ok, err := u.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || b != 'z' {
		t.Fatalf("ReadByte() = %q,%v, want 'z',true", b, ok)
	}
}

func TestWriteImplementsIoWriter(t *testing.T) {
	u := newTestUART()
	*u.reg(regLSR) = lsrTransmitterEmpty
	n, err := u.Write([]byte("hi"))
	if err != nil || n != 2 {
		t.Fatalf("Write() = %d,%v", n, err)
	}
	if *u.reg(regTHR) != 'i' {
		t.Fatalf("THR = %q, want last byte written", *u.reg(regTHR))
	}
}
