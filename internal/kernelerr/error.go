// Package kernelerr provides the typed error value kernel code returns
// where a bare sentinel (nil/0/-1) would lose diagnostic context — ACPI
// checksum failures, boot-info tag absence, and the like (spec §7).
//
// Grounded on gopher-os's kernel.Error pattern (other_examples'
// bitmap_allocator.go.go, tables.go.go): a small struct instead of the
// stdlib errors package, because code this close to boot cannot assume the
// heap is available for fmt.Errorf's allocations.
package kernelerr

// Module identifies the subsystem raising an Error, for log correlation.
type Module uint8

const (
	ModuleBoot Module = iota
	ModuleACPI
	ModuleChunk
	ModuleVMM
	ModuleAPIC
	ModuleTimer
	ModuleSched
	ModuleDevTree
	ModuleInterrupt
)

func (m Module) String() string {
	switch m {
	case ModuleBoot:
		return "boot"
	case ModuleACPI:
		return "acpi"
	case ModuleChunk:
		return "chunk"
	case ModuleVMM:
		return "vmm"
	case ModuleAPIC:
		return "apic"
	case ModuleTimer:
		return "timer"
	case ModuleSched:
		return "sched"
	case ModuleDevTree:
		return "devtree"
	case ModuleInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Error is a fixed-size, non-allocating error value.
type Error struct {
	Module  Module
	Message string
}

func (e *Error) Error() string {
	return e.Module.String() + ": " + e.Message
}

// New builds an Error for module m.
func New(m Module, message string) *Error {
	return &Error{Module: m, Message: message}
}
