package timer

import (
	"kstratum/internal/apic"
	"kstratum/internal/devtree"
	"kstratum/internal/ioport"
)

// HPET register offsets (spec §6 "HPET table: base MMIO address, minimum
// tick, ... legacy-replacement capability").
const (
	hpetGeneralCaps   = 0x000
	hpetGeneralConfig = 0x010
	hpetMainCounter   = 0x0F0
	hpetTimerConfig0  = 0x100
	hpetTimerComp0    = 0x108
	hpetTimerStride   = 0x20

	hpetEnableCnf       = 1 << 0
	hpetLegacyReplaceCnf = 1 << 1

	hpetTimerIntTypeLevel = 1 << 1
	hpetTimerIntEnable    = 1 << 2
	hpetTimerPeriodic     = 1 << 3
	hpetTimerSetCompValue = 1 << 6

	pitChannel0Data  = 0x40
	pitCommand       = 0x43
	pitDisableChan0  = 0x30 // channel 0, lobyte/hibyte access, mode 0, binary; two count bytes follow
)

// Comparator records which GSI/vector one HPET comparator was assigned.
type Comparator struct {
	Index  int
	GSI    int
	Vector int
}

// HPET is the legacy-PIT replacement timer (spec §4.6). It implements
// TimableDevice in ticks of its counter period (FemtosPerTick).
type HPET struct {
	mmio         ioport.MMIO
	FemtosPerTick uint64
	comparators  []Comparator
}

// NewHPET disables the PIT, zeros the main counter, and assigns comparator
// i the caller-supplied GSI freeGSIs[i]; comparator 0 also takes over the
// PIT vector via vector_override. It does not read the HPET's
// per-comparator routing capability bits, and comparators beyond
// len(freeGSIs) stay unconfigured.
//
// port is used only to silence the legacy PIT (ports 0x40/0x43); the HPET
// itself is driven entirely through mmio.
func NewHPET(mmio ioport.MMIO, port ioport.Port, ioapicDev *apic.IOAPIC, it *devtree.InterruptTree, node devtree.NodeId, pitVector int, freeGSIs []int) *HPET {
	disablePIT(port)

	caps := mmio.Read64(hpetGeneralCaps)
	femtosPerTick := caps >> 32
	numTimers := int((caps>>8)&0x1F) + 1

	mmio.Write64(hpetGeneralConfig, 0) // halt before reconfiguring
	mmio.Write64(hpetMainCounter, 0)

	h := &HPET{mmio: mmio, FemtosPerTick: femtosPerTick}

	for i := 0; i < numTimers && i < len(freeGSIs); i++ {
		gsi := freeGSIs[i]
		vector := pitVector
		if i > 0 {
			vector = pitVector + i
		}
		h.configureComparator(i, gsi, vector, ioapicDev, it, node)
		h.comparators = append(h.comparators, Comparator{Index: i, GSI: gsi, Vector: vector})
	}

	mmio.Write64(hpetGeneralConfig, hpetEnableCnf|hpetLegacyReplaceCnf)
	return h
}

func (h *HPET) configureComparator(i, gsi, vector int, ioapicDev *apic.IOAPIC, it *devtree.InterruptTree, node devtree.NodeId) {
	conf := hpetTimerIntTypeLevel | hpetTimerIntEnable | uint64(gsi)<<9
	h.mmio.Write64(hpetTimerConfig0+uintptr(i)*hpetTimerStride, conf)

	if ioapicDev != nil {
		ioapicDev.SetIRQ(gsi, apic.RedirectionEntry{Vector: uint8(vector), TriggerMode: 1}, node)
	}
	if i == 0 {
		// Comparator 0 steals the legacy PIT vector unconditionally, per
		// spec's "vector_override" (bypassing the CAS-guarded vector_alloc
		// since this is static boot-time setup).
		it.VectorOverride(vector, node)
	}
}

func disablePIT(port ioport.Port) {
	if port == nil {
		return
	}
	port.Out8(pitCommand, pitDisableChan0)
	port.Out8(pitChannel0Data, 0)
	port.Out8(pitChannel0Data, 0)
}

// Now returns the raw counter value (not wall-clock seconds — callers use
// ConvertSeconds/ConvertRate to translate).
func (h *HPET) Now() uint64 {
	return h.mmio.Read64(hpetMainCounter)
}

// TimeToNext returns comparator 0's armed value minus the current counter,
// or 0 if it has already passed.
func (h *HPET) TimeToNext() uint64 {
	comp := h.mmio.Read64(hpetTimerComp0)
	now := h.Now()
	if comp <= now {
		return 0
	}
	return comp - now
}

// ConvertSeconds converts a duration in seconds to HPET ticks.
func (h *HPET) ConvertSeconds(s float64) uint64 {
	femtosPerSecond := 1e15
	return uint64(s * femtosPerSecond / float64(h.FemtosPerTick))
}

// ConvertRate converts a frequency in Hz to the tick interval producing it.
func (h *HPET) ConvertRate(hz uint64) uint64 {
	if hz == 0 {
		return 0
	}
	return h.ConvertSeconds(1) / hz
}

func (h *HPET) SetInterruptRelative(ticks uint64) {
	h.SetInterruptAbsolute(h.Now() + ticks)
}

func (h *HPET) SetInterruptAbsolute(ticks uint64) {
	h.mmio.Write64(hpetTimerConfig0, h.mmio.Read64(hpetTimerConfig0)&^uint64(hpetTimerPeriodic))
	h.mmio.Write64(hpetTimerComp0, ticks)
}

func (h *HPET) SetInterruptPeriodic(ticks uint64) {
	conf := h.mmio.Read64(hpetTimerConfig0) | hpetTimerPeriodic | hpetTimerSetCompValue
	h.mmio.Write64(hpetTimerConfig0, conf)
	h.mmio.Write64(hpetTimerComp0, h.Now()+ticks)
	h.mmio.Write64(hpetTimerComp0, ticks) // second write sets the periodic accumulator per HPET spec
}

// Sleep100ms busy-waits on the HPET for 100ms, the reference sleep
// internal/apic.LocalAPIC.DetermineTickRate needs (spec §4.5
// determine_tick_rate: "sleeps 0.1s on the global HPET").
func (h *HPET) Sleep100ms() {
	h.BusySleepSeconds(0.1)
}

// BusySleepSeconds busy-waits for s seconds of HPET counter time.
func (h *HPET) BusySleepSeconds(s float64) {
	ticks := h.ConvertSeconds(s)
	deadline := h.Now() + ticks
	for h.Now() < deadline {
	}
}
