package timer

import "kstratum/internal/apic"

// LocalAPICTimer adapts *apic.LocalAPIC's oneshot counter to the
// TimableDevice contract, calibrated against the rate the local APIC's
// own DetermineTickRate measured at boot (spec §4.6: "its rate is
// measured against the HPET once at boot").
type LocalAPICTimer struct {
	lapic       *apic.LocalAPIC
	vector      uint8
	ticksPerSec uint64
	armed       uint64 // ticks-from-now last programmed, for TimeToNext
}

// NewLocalAPICTimer builds a LocalAPICTimer firing vector at ticksPerSec
// (from apic.LocalAPIC.DetermineTickRate).
func NewLocalAPICTimer(lapic *apic.LocalAPIC, vector uint8, ticksPerSec uint64) *LocalAPICTimer {
	return &LocalAPICTimer{lapic: lapic, vector: vector, ticksPerSec: ticksPerSec}
}

func (l *LocalAPICTimer) Now() uint64 { return 0 } // oneshot counter counts down, not up; absolute times are not meaningful here.

func (l *LocalAPICTimer) TimeToNext() uint64 { return l.armed }

func (l *LocalAPICTimer) ConvertSeconds(s float64) uint64 {
	return uint64(s * float64(l.ticksPerSec))
}

func (l *LocalAPICTimer) ConvertRate(hz uint64) uint64 {
	if hz == 0 {
		return 0
	}
	return l.ticksPerSec / hz
}

// SetInterruptRelative arms the oneshot counter for ticks ticks from now —
// the only mode the local-APIC timer's countdown register actually
// supports; Absolute and Periodic are expressed in terms of it.
func (l *LocalAPICTimer) SetInterruptRelative(ticks uint64) {
	l.armed = ticks
	l.lapic.ArmOneshot(l.vector, uint32(ticks))
}

// SetInterruptAbsolute treats ticks as already relative, since the
// local-APIC timer has no absolute counter to compare against (spec's
// Timer layer composes the min-heap's absolute times on top of whichever
// device is active).
func (l *LocalAPICTimer) SetInterruptAbsolute(ticks uint64) {
	l.SetInterruptRelative(ticks)
}

func (l *LocalAPICTimer) SetInterruptPeriodic(ticks uint64) {
	// The local-APIC timer's periodic mode is programmed through the same
	// LVT register as oneshot, with bit 17 set; ArmOneshot always clears
	// it, so this arms a single oneshot; a periodic Task is re-armed by
	// Timer.Run, which reprograms the device after each fire.
	l.SetInterruptRelative(ticks)
}
