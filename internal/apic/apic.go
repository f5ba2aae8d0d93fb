package apic

// Mode selects the interrupt-controller policy in force (spec §4.5).
type Mode int

const (
	ModeLegacyPIC Mode = iota
	ModeAPIC
)

// DetectMode implements spec §4.5's "the system runs in legacy-PIC mode iff
// the CPU has no local APIC".
func DetectMode(hasLocalAPIC bool) Mode {
	if hasLocalAPIC {
		return ModeAPIC
	}
	return ModeLegacyPIC
}

// Controller bundles whichever interrupt-controller drivers are live for
// the current Mode and implements the send-EOI policy split spec §4.5
// specifies: legacy mode EOIs the PIC(s), APIC mode EOIs the local APIC.
type Controller struct {
	Mode  Mode
	PIC   *PIC        // non-nil only in ModeLegacyPIC
	Local *LocalAPIC  // non-nil only in ModeAPIC
}

// SendEOI issues end-of-interrupt for irq under whichever policy Mode
// selects.
func (c *Controller) SendEOI(irq int) {
	switch c.Mode {
	case ModeLegacyPIC:
		c.PIC.SendEOI(irq)
	case ModeAPIC:
		c.Local.EOI()
	}
}
