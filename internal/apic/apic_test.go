package apic

import (
	"testing"

	"kstratum/internal/devtree"
)

// fakeMMIO backs ioport.MMIO with a plain map, mirroring how
// internal/vmm's tests substitute a fake TableAccessor for real memory.
type fakeMMIO struct {
	regs map[uintptr]uint64
}

func newFakeMMIO() *fakeMMIO { return &fakeMMIO{regs: make(map[uintptr]uint64)} }

func (m *fakeMMIO) Read32(off uintptr) uint32    { return uint32(m.regs[off]) }
func (m *fakeMMIO) Write32(off uintptr, v uint32) { m.regs[off] = uint64(v) }
func (m *fakeMMIO) Read64(off uintptr) uint64    { return m.regs[off] }
func (m *fakeMMIO) Write64(off uintptr, v uint64) { m.regs[off] = v }

// fakeIOAPICWindow models the IOAPIC's indirect register access: a write
// to IOREGSEL selects a register, and IOWIN reads or writes that register.
type fakeIOAPICWindow struct {
	sel  uint32
	regs map[uint32]uint32
}

func newFakeIOAPICWindow() *fakeIOAPICWindow {
	return &fakeIOAPICWindow{regs: make(map[uint32]uint32)}
}

func (w *fakeIOAPICWindow) Read32(off uintptr) uint32 {
	if off == iowin {
		return w.regs[w.sel]
	}
	return w.sel
}

func (w *fakeIOAPICWindow) Write32(off uintptr, v uint32) {
	if off == iowin {
		w.regs[w.sel] = v
		return
	}
	w.sel = v
}

func (w *fakeIOAPICWindow) Read64(off uintptr) uint64    { return 0 }
func (w *fakeIOAPICWindow) Write64(off uintptr, v uint64) {}

type fakePort struct {
	regs map[uint16]uint8
}

func newFakePort() *fakePort { return &fakePort{regs: make(map[uint16]uint8)} }

func (p *fakePort) In8(port uint16) uint8     { return p.regs[port] }
func (p *fakePort) Out8(port uint16, v uint8)  { p.regs[port] = v }
func (p *fakePort) In32(port uint16) uint32   { return 0 }
func (p *fakePort) Out32(port uint16, v uint32) {}

func TestIOAPICSetIRQRoundTrip(t *testing.T) {
	dt := devtree.NewDeviceTree()
	owner, path := dt.RegisterDevice("/", "uart0", "uart-16550", nil)
	it := devtree.NewInterruptTree(dt)

	mmio := newFakeIOAPICWindow()
	ioapic := NewIOAPIC(mmio, 0, it, owner, path)

	entry := RedirectionEntry{Vector: 0x24, DeliveryMode: 0, Polarity: 0, TriggerMode: 1, Dest: 1}
	if !ioapic.SetIRQ(4, entry, owner) {
		t.Fatal("expected SetIRQ to register its route")
	}

	got := ioapic.GetIRQ(4)
	if got.Vector != entry.Vector || got.TriggerMode != entry.TriggerMode || got.Dest != entry.Dest {
		t.Fatalf("GetIRQ roundtrip mismatch: got %+v, want %+v", got, entry)
	}
	routed, ok := it.RouteOwner(path, 4)
	if !ok || routed != owner {
		t.Fatalf("expected interrupt tree to record owner at index 4, got %v,%v", routed, ok)
	}
}

func TestIOAPICApplyOverride(t *testing.T) {
	dt := devtree.NewDeviceTree()
	owner, path := dt.RegisterDevice("/", "pit", "legacy-timer", nil)
	it := devtree.NewInterruptTree(dt)
	mmio := newFakeIOAPICWindow()
	ioapic := NewIOAPIC(mmio, 0, it, owner, path)

	src := SourceOverride{SourceIRQ: 0, GSI: 2, Polarity: 1, TriggerMode: 0}
	if !ioapic.ApplyOverride(src, 0x30, owner) {
		t.Fatal("expected ApplyOverride to succeed")
	}
	got := ioapic.GetIRQ(2)
	if got.Vector != 0x30 || got.Polarity != 1 {
		t.Fatalf("override entry mismatch: %+v", got)
	}
}

func TestControllerSendEOILegacySplitsMasterSlave(t *testing.T) {
	port := newFakePort()
	pic := NewPIC(port)
	ctrl := &Controller{Mode: ModeLegacyPIC, PIC: pic}

	ctrl.SendEOI(10) // slave IRQ
	if port.regs[picMasterCommand] != picEOICmd || port.regs[picSlaveCommand] != picEOICmd {
		t.Fatal("expected EOI written to both master and slave for IRQ >= 8")
	}

	delete(port.regs, picMasterCommand)
	delete(port.regs, picSlaveCommand)
	ctrl.SendEOI(3) // master-only IRQ
	if port.regs[picMasterCommand] != picEOICmd {
		t.Fatal("expected EOI written to master")
	}
	if _, wrote := port.regs[picSlaveCommand]; wrote {
		t.Fatal("did not expect slave EOI for IRQ < 8")
	}
}

func TestControllerSendEOIAPICWritesLocalRegister(t *testing.T) {
	mmio := newFakeMMIO()
	local := NewLocalAPIC(mmio)
	ctrl := &Controller{Mode: ModeAPIC, Local: local}

	ctrl.SendEOI(5)
	if _, wrote := mmio.regs[lapicEOI]; !wrote {
		t.Fatal("expected local APIC EOI register to be written")
	}
}

func TestPICMaskUnmask(t *testing.T) {
	port := newFakePort()
	pic := NewPIC(port)

	pic.Mask(3)
	if port.regs[picMasterData]&(1<<3) == 0 {
		t.Fatal("expected IRQ3 bit set on master data port after Mask")
	}
	pic.Unmask(3)
	if port.regs[picMasterData]&(1<<3) != 0 {
		t.Fatal("expected IRQ3 bit clear after Unmask")
	}

	pic.Mask(10) // slave-side line
	if port.regs[picSlaveData]&(1<<2) == 0 {
		t.Fatal("expected IRQ10 (slave bit 2) set after Mask")
	}
}

func TestLocalAPICDetermineTickRate(t *testing.T) {
	mmio := newFakeMMIO()
	local := NewLocalAPIC(mmio)

	slept := false
	rate := local.DetermineTickRate(func() {
		slept = true
		// simulate 1,000,000 ticks elapsed during the 0.1s reference sleep
		mmio.regs[lapicTimerCur] = uint64(0xFFFFFFFF - 1_000_000)
	})
	if !slept {
		t.Fatal("expected the supplied sleep callback to be invoked")
	}
	if rate != 10_000_000 {
		t.Fatalf("expected rate 10_000_000 (1e6 ticks * 10), got %d", rate)
	}
}

func TestModeDetection(t *testing.T) {
	if DetectMode(true) != ModeAPIC {
		t.Fatal("expected APIC mode when local APIC present")
	}
	if DetectMode(false) != ModeLegacyPIC {
		t.Fatal("expected legacy-PIC mode when local APIC absent")
	}
}
