package apic

import "kstratum/internal/ioport"

// Legacy 8259 PIC port addresses and ICW4 constants.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	icw1Init  = 0x10
	icw1ICW4  = 0x01
	icw4Mode8086 = 0x01
	picEOICmd = 0x20
)

// PIC drives the legacy dual-8259 controller, used only when the running
// CPU has no local APIC (spec §4.5: "the system runs in legacy-PIC mode iff
// the CPU has no local APIC; otherwise PICs are masked").
type PIC struct {
	port ioport.Port
}

// NewPIC wraps port.
func NewPIC(port ioport.Port) *PIC {
	return &PIC{port: port}
}

// Remap reassigns the master/slave PICs' vector bases away from the
// CPU-exception range 0-31 they default to on power-up, cascades the slave
// onto master IRQ2, and sets 8086/88 mode. masterOffset/slaveOffset are
// typically 0x20 and 0x28.
func (p *PIC) Remap(masterOffset, slaveOffset uint8) {
	p.port.Out8(picMasterCommand, icw1Init|icw1ICW4)
	p.port.Out8(picSlaveCommand, icw1Init|icw1ICW4)
	p.port.Out8(picMasterData, masterOffset)
	p.port.Out8(picSlaveData, slaveOffset)
	p.port.Out8(picMasterData, 4) // tell master: slave is on IRQ2
	p.port.Out8(picSlaveData, 2)  // tell slave its cascade identity
	p.port.Out8(picMasterData, icw4Mode8086)
	p.port.Out8(picSlaveData, icw4Mode8086)
}

// MaskAll masks every IRQ on both PICs, the state this kernel leaves them
// in once the APIC takes over routing (spec §4.5: "otherwise PICs are
// masked").
func (p *PIC) MaskAll() {
	p.port.Out8(picMasterData, 0xFF)
	p.port.Out8(picSlaveData, 0xFF)
}

// Mask disables one legacy IRQ line (0-15).
func (p *PIC) Mask(irq int) {
	port, bit := p.lineFor(irq)
	cur := p.port.In8(port)
	p.port.Out8(port, cur|(1<<bit))
}

// Unmask enables one legacy IRQ line (0-15).
func (p *PIC) Unmask(irq int) {
	port, bit := p.lineFor(irq)
	cur := p.port.In8(port)
	p.port.Out8(port, cur&^(1<<bit))
}

func (p *PIC) lineFor(irq int) (port uint16, bit uint) {
	if irq >= 8 {
		return picSlaveData, uint(irq - 8)
	}
	return picMasterData, uint(irq)
}

// SendEOI issues end-of-interrupt for irq under the legacy send-EOI policy
// (spec §4.5: "Legacy mode: EOI goes to the slave PIC if IRQ >= 8, always to
// the master").
func (p *PIC) SendEOI(irq int) {
	if irq >= 8 {
		p.port.Out8(picSlaveCommand, picEOICmd)
	}
	p.port.Out8(picMasterCommand, picEOICmd)
}
