// Package serial drives a 16550-compatible COM port (spec §6 "Serial"):
// DLAB baud programming, FIFO control, and an interrupt-driven transmit
// path backed by a ring buffer.
//
// Grounded on the teacher's main/uart_qemu.go: the ring-buffer
// producer/consumer shape (head/tail indices, "***" overflow marker once
// free space is down to 3 slots, drain-on-interrupt; there is no poll-side
// drain) is carried over in spirit, retargeted from PL011 MMIO
// registers to 8250/16550 port I/O through internal/ioport.Port.
package serial

import "kstratum/internal/spinlock"

// Register offsets from the port base (8250/16550).
const (
	regData       = 0 // DLAB=0: data; DLAB=1: divisor low byte
	regIntEnable  = 1 // DLAB=0: IER; DLAB=1: divisor high byte
	regFIFOCtrl   = 2
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5
)

const (
	lineCtrlDLAB    = 1 << 7
	lineCtrl8N1     = 0x03
	fifoCtrlEnable  = 0xC7
	modemCtrlDTRRTS = 0x03
	modemCtrlOut2   = 0x08 // required for interrupts to reach the PIC/IOAPIC
	intEnableTXRdy  = 0x02
	lineStatusTXRdy = 0x20
	lineStatusRXRdy = 0x01
)

// Standard COM port base addresses.
const (
	COM1 uint16 = 0x3F8
	COM2 uint16 = 0x2F8
)

// Port is a narrow seam over the two byte-wide I/O operations this driver
// needs, so the driver can be exercised against a fake in tests the same
// way internal/apic and internal/timer are.
type Port interface {
	In8(port uint16) uint8
	Out8(port uint16, val uint8)
}

const ringSize = 4096

type ringBuffer struct {
	buf        [ringSize]byte
	head, tail uint32
}

func (r *ringBuffer) spaceAvailable() uint32 {
	if r.head >= r.tail {
		return ringSize - (r.head - r.tail) - 1
	}
	return r.tail - r.head - 1
}

func (r *ringBuffer) enqueue(c byte) bool {
	next := (r.head + 1) % ringSize
	if next == r.tail {
		return false
	}
	r.buf[r.head] = c
	r.head = next
	return true
}

func (r *ringBuffer) dequeue() (byte, bool) {
	if r.head == r.tail {
		return 0, false
	}
	c := r.buf[r.tail]
	r.tail = (r.tail + 1) % ringSize
	return c, true
}

// enqueueOrOverflow mirrors uartEnqueueOrOverflow: once free space is 3
// slots or fewer, the triggering character is dropped and a
// "***" marker is queued in its place.
func (r *ringBuffer) enqueueOrOverflow(c byte) bool {
	if r.spaceAvailable() <= 3 {
		r.enqueue('*')
		r.enqueue('*')
		r.enqueue('*')
		return false
	}
	return r.enqueue(c)
}

// COMPort is one 16550-compatible serial line.
type COMPort struct {
	base uint16
	io   Port

	mu spinlock.Mutex
	tx ringBuffer
}

// New builds a COMPort at base (COM1 or COM2) over io.
func New(base uint16, io Port) *COMPort {
	return &COMPort{base: base, io: io}
}

// Init programs the UART: baudDivisor sets the baud rate (115200/divisor),
// 8N1 framing, FIFOs enabled, OUT2 asserted so interrupts reach the PIC.
func (c *COMPort) Init(baudDivisor uint16) {
	c.io.Out8(c.base+regIntEnable, 0x00) // disable interrupts while programming

	c.io.Out8(c.base+regLineCtrl, lineCtrlDLAB)
	c.io.Out8(c.base+regData, uint8(baudDivisor&0xFF))
	c.io.Out8(c.base+regIntEnable, uint8(baudDivisor>>8))

	c.io.Out8(c.base+regLineCtrl, lineCtrl8N1)
	c.io.Out8(c.base+regFIFOCtrl, fifoCtrlEnable)
	c.io.Out8(c.base+regModemCtrl, modemCtrlDTRRTS|modemCtrlOut2)

	c.io.Out8(c.base+regIntEnable, intEnableTXRdy)
}

// Putc enqueues c for transmission. If the transmit holding register is
// currently idle the character is written immediately; otherwise it
// queues and the interrupt handler drains it once the UART signals ready.
func (c *COMPort) Putc(ch byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx.head == c.tx.tail && c.io.In8(c.base+regLineStatus)&lineStatusTXRdy != 0 {
		c.io.Out8(c.base+regData, ch)
		return
	}
	c.tx.enqueueOrOverflow(ch)
}

// Puts writes s one character at a time through Putc.
func (c *COMPort) Puts(s string) {
	for i := 0; i < len(s); i++ {
		c.Putc(s[i])
	}
}

// Write satisfies io.Writer so a COMPort can back internal/klog's Logger
// directly, the way the teacher's uartPuts family backs its own diagnostic
// writes.
func (c *COMPort) Write(p []byte) (int, error) {
	for _, b := range p {
		c.Putc(b)
	}
	return len(p), nil
}

// HandleIRQ drains one queued character per transmit-ready interrupt (spec
// §6: interrupt-driven transmit), matching the teacher's handleUARTIRQ
// drain-one-then-rearm shape.
func (c *COMPort) HandleIRQ() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.io.In8(c.base+regLineStatus)&lineStatusTXRdy == 0 {
		return
	}
	ch, ok := c.tx.dequeue()
	if !ok {
		return
	}
	c.io.Out8(c.base+regData, ch)
}

// Getc blocks until a byte is available on the receive line and returns it.
// Polling rather than interrupt-driven: spec §6 only requires an
// interrupt-driven transmit path.
func (c *COMPort) Getc() byte {
	for c.io.In8(c.base+regLineStatus)&lineStatusRXRdy == 0 {
	}
	return c.io.In8(c.base + regData)
}

// TXPending reports how many queued bytes are waiting to drain, for
// diagnostics and tests.
func (c *COMPort) TXPending() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ringSize - 1 - c.tx.spaceAvailable()
}
