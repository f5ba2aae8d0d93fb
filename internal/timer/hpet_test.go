package timer

import "testing"

type fakeHPETMMIO struct {
	regs map[uintptr]uint64
}

func newFakeHPETMMIO(femtosPerTick uint64, numTimersMinus1 uint64) *fakeHPETMMIO {
	m := &fakeHPETMMIO{regs: make(map[uintptr]uint64)}
	m.regs[hpetGeneralCaps] = femtosPerTick<<32 | numTimersMinus1<<8
	return m
}

func (m *fakeHPETMMIO) Read32(off uintptr) uint32     { return uint32(m.regs[off]) }
func (m *fakeHPETMMIO) Write32(off uintptr, v uint32) { m.regs[off] = uint64(v) }
func (m *fakeHPETMMIO) Read64(off uintptr) uint64     { return m.regs[off] }
func (m *fakeHPETMMIO) Write64(off uintptr, v uint64) { m.regs[off] = v }

type fakePITPort struct {
	writes []uint8
}

func (p *fakePITPort) In8(port uint16) uint8      { return 0 }
func (p *fakePITPort) Out8(port uint16, v uint8)   { p.writes = append(p.writes, v) }
func (p *fakePITPort) In32(port uint16) uint32    { return 0 }
func (p *fakePITPort) Out32(port uint16, v uint32) {}

func TestNewHPETDisablesPITAndEnablesLegacyReplacement(t *testing.T) {
	mmio := newFakeHPETMMIO(10_000_000, 0) // 10ns/tick, 1 timer
	port := &fakePITPort{}

	h := NewHPET(mmio, port, nil, nil, 0, 0x20, nil)

	if len(port.writes) == 0 {
		t.Fatal("expected the PIT to be silenced via port writes")
	}
	cfg := mmio.regs[hpetGeneralConfig]
	if cfg&hpetEnableCnf == 0 || cfg&hpetLegacyReplaceCnf == 0 {
		t.Fatalf("expected general config to enable the counter and legacy replacement, got %#x", cfg)
	}
	if h.FemtosPerTick != 10_000_000 {
		t.Fatalf("expected FemtosPerTick 10_000_000, got %d", h.FemtosPerTick)
	}
}

func TestHPETConvertSecondsAndRate(t *testing.T) {
	mmio := newFakeHPETMMIO(10_000_000, 0) // 10,000,000 femtoseconds/tick = 10ns/tick = 100,000,000 ticks/sec
	h := NewHPET(mmio, nil, nil, nil, 0, 0x20, nil)

	ticks := h.ConvertSeconds(1.0)
	if ticks != 100_000_000 {
		t.Fatalf("expected 100_000_000 ticks for 1 second at 10ns/tick, got %d", ticks)
	}

	interval := h.ConvertRate(1000) // 1kHz
	if interval != 100_000 {
		t.Fatalf("expected 100_000 ticks per period at 1kHz, got %d", interval)
	}
}

func TestHPETSetInterruptAbsoluteWritesComparator(t *testing.T) {
	mmio := newFakeHPETMMIO(10_000_000, 0)
	h := NewHPET(mmio, nil, nil, nil, 0, 0x20, nil)

	h.SetInterruptAbsolute(12345)
	if mmio.regs[hpetTimerComp0] != 12345 {
		t.Fatalf("expected comparator 0 set to 12345, got %d", mmio.regs[hpetTimerComp0])
	}
}
