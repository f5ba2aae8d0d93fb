package serial

import "testing"

type fakePort struct {
	regs   map[uint16]uint8
	writes []byte
}

func newFakePort() *fakePort {
	return &fakePort{regs: make(map[uint16]uint8)}
}

func (f *fakePort) In8(port uint16) uint8   { return f.regs[port] }
func (f *fakePort) Out8(port uint16, v uint8) {
	f.regs[port] = v
	if port%8 == regData {
		f.writes = append(f.writes, v)
	}
}

func TestInitProgramsDivisorAndLineControl(t *testing.T) {
	fp := newFakePort()
	c := New(COM1, fp)
	c.Init(1) // 115200 baud

	if fp.regs[COM1+regLineCtrl] != lineCtrl8N1 {
		t.Fatalf("expected line control left at 8N1 after DLAB sequence, got %#x", fp.regs[COM1+regLineCtrl])
	}
	if fp.regs[COM1+regFIFOCtrl] != fifoCtrlEnable {
		t.Fatalf("expected FIFO enabled, got %#x", fp.regs[COM1+regFIFOCtrl])
	}
	if fp.regs[COM1+regIntEnable] != intEnableTXRdy {
		t.Fatalf("expected transmit-ready interrupt enabled at end of init, got %#x", fp.regs[COM1+regIntEnable])
	}
}

func TestPutcWritesImmediatelyWhenTXReady(t *testing.T) {
	fp := newFakePort()
	fp.regs[COM1+regLineStatus] = lineStatusTXRdy
	c := New(COM1, fp)

	c.Putc('A')
	if len(fp.writes) != 1 || fp.writes[0] != 'A' {
		t.Fatalf("expected immediate write of 'A', got %v", fp.writes)
	}
	if c.TXPending() != 0 {
		t.Fatalf("expected nothing queued, got %d pending", c.TXPending())
	}
}

func TestPutcQueuesWhenTXNotReady(t *testing.T) {
	fp := newFakePort()
	c := New(COM1, fp)

	c.Putc('A')
	if len(fp.writes) != 0 {
		t.Fatalf("expected no immediate write, got %v", fp.writes)
	}
	if c.TXPending() != 1 {
		t.Fatalf("expected 1 byte queued, got %d", c.TXPending())
	}
}

func TestHandleIRQDrainsOneQueuedByte(t *testing.T) {
	fp := newFakePort()
	c := New(COM1, fp)
	c.Putc('x')
	c.Putc('y')

	fp.regs[COM1+regLineStatus] = lineStatusTXRdy
	c.HandleIRQ()

	if len(fp.writes) != 1 || fp.writes[0] != 'x' {
		t.Fatalf("expected first queued byte drained, got %v", fp.writes)
	}
	if c.TXPending() != 1 {
		t.Fatalf("expected one byte still queued, got %d", c.TXPending())
	}
}

func TestHandleIRQNoOpWhenTXNotReady(t *testing.T) {
	fp := newFakePort()
	c := New(COM1, fp)
	c.Putc('x')

	c.HandleIRQ() // line status register reads 0: not ready
	if len(fp.writes) != 0 {
		t.Fatalf("expected no write while TX not ready, got %v", fp.writes)
	}
}

func TestOverflowMarkerAtThreeSlotsRemaining(t *testing.T) {
	r := &ringBuffer{}
	// Drain space down to exactly 3 slots remaining.
	for r.spaceAvailable() > 3 {
		r.enqueue('a')
	}
	if r.spaceAvailable() != 3 {
		t.Fatalf("expected exactly 3 slots remaining, got %d", r.spaceAvailable())
	}

	ok := r.enqueueOrOverflow('X')
	if ok {
		t.Fatal("expected enqueueOrOverflow to report the byte dropped")
	}
	// The last three queued bytes should be the overflow marker, not 'X'.
	last3 := [3]byte{}
	for i := 0; i < 3; i++ {
		idx := (r.head - 3 + uint32(i) + ringSize) % ringSize
		last3[i] = r.buf[idx]
	}
	if last3 != [3]byte{'*', '*', '*'} {
		t.Fatalf("expected '***' marker queued, got %v", last3)
	}
}

func TestGetcBlocksUntilDataReady(t *testing.T) {
	fp := newFakePort()
	fp.regs[COM1+regLineStatus] = lineStatusRXRdy
	fp.regs[COM1+regData] = 'Z'
	c := New(COM1, fp)

	if got := c.Getc(); got != 'Z' {
		t.Fatalf("expected 'Z', got %q", got)
	}
}

func TestWriteSatisfiesIOWriter(t *testing.T) {
	fp := newFakePort()
	fp.regs[COM1+regLineStatus] = lineStatusTXRdy
	c := New(COM1, fp)

	n, err := c.Write([]byte("hi"))
	if err != nil || n != 2 {
		t.Fatalf("expected (2, nil), got (%d, %v)", n, err)
	}
	if len(fp.writes) != 2 || fp.writes[0] != 'h' || fp.writes[1] != 'i' {
		t.Fatalf("expected both bytes written immediately, got %v", fp.writes)
	}
}
