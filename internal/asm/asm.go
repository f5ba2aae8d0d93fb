// Package asm isolates the inline-assembly surface the rest of the kernel
// needs: port I/O, MSR access, control-register and descriptor-table loads,
// and the TLB/interrupt primitives that have no portable Go spelling.
//
// Every exported function here is a thin, documented-precondition wrapper
// the way mazboot's internal/runtime/atomic package wraps LDAXR/STLXR: a Go
// signature with //go:noescape, backed by a hand-written amd64 assembly
// body in asm_amd64.s. Nothing in this package allocates or can be called
// before the GDT/IDT are installed unless its doc comment says so.
package asm

import "unsafe"

// In8 reads a single byte from I/O port. Caller must ensure the port is
// owned by the calling driver; there is no access control in ring 0.
//
//go:noescape
func In8(port uint16) uint8

// In16 reads a 16-bit word from I/O port.
//
//go:noescape
func In16(port uint16) uint16

// In32 reads a 32-bit dword from I/O port.
//
//go:noescape
func In32(port uint16) uint32

// Out8 writes a single byte to I/O port.
//
//go:noescape
func Out8(port uint16, val uint8)

// Out16 writes a 16-bit word to I/O port.
//
//go:noescape
func Out16(port uint16, val uint16)

// Out32 writes a 32-bit dword to I/O port.
//
//go:noescape
func Out32(port uint16, val uint32)

// IOWait performs a zero-effect write to port 0x80, the conventional
// "burn a few cycles" delay used between consecutive port writes on real
// hardware (POST diagnostic port, unused by BIOS after boot).
//
//go:noescape
func IOWait()

// RDMSR reads model-specific register msr. Caller must ensure the MSR
// exists on the running CPU; an unsupported MSR raises #GP.
//
//go:noescape
func RDMSR(msr uint32) uint64

// WRMSR writes model-specific register msr.
//
//go:noescape
func WRMSR(msr uint32, val uint64)

// CPUID executes the CPUID instruction for (leaf, subleaf) and returns
// eax, ebx, ecx, edx.
//
//go:noescape
func CPUID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// ReadCR0 returns the current CR0 control register.
//
//go:noescape
func ReadCR0() uint64

// ReadCR2 returns the faulting address recorded by the last page fault.
// Caller must ensure this is called from within the #PF handler before any
// other fault can clobber CR2.
//
//go:noescape
func ReadCR2() uint64

// ReadCR3 returns the physical address of the current PML4.
//
//go:noescape
func ReadCR3() uint64

// WriteCR3 loads a new PML4 physical address, flushing the entire TLB
// (excluding global pages). Caller must ensure the new PML4 has the kernel
// half installed identically to the outgoing one.
//
//go:noescape
func WriteCR3(pml4Phys uint64)

// Invlpg flushes the TLB entry covering virtual address v. Caller must
// ensure v is page-aligned or accepts that the low bits are ignored.
//
//go:noescape
func Invlpg(v uintptr)

// LGDT loads the GDTR from a 10-byte pseudo-descriptor (2-byte limit,
// 8-byte base) at ptr. Caller must ensure the GDT it points to outlives
// every subsequent far jump/return.
//
//go:noescape
func LGDT(ptr unsafe.Pointer)

// LIDT loads the IDTR the same way LGDT loads the GDTR.
//
//go:noescape
func LIDT(ptr unsafe.Pointer)

// CLI disables maskable interrupts on the calling core.
//
//go:noescape
func CLI()

// STI enables maskable interrupts on the calling core.
//
//go:noescape
func STI()

// HLT halts the calling core until the next interrupt.
//
//go:noescape
func HLT()

// Pause emits the PAUSE instruction, the documented spin-loop hint used by
// every spin mutex in this kernel (internal/spinlock) between CAS retries.
//
//go:noescape
func Pause()

// RDTSC returns the timestamp counter. Used only for coarse diagnostics;
// the timer layer (internal/timer) uses HPET/local-APIC for real time.
//
//go:noescape
func RDTSC() uint64

// SwapGS exchanges GS.base with the value in the KERNEL_GS_BASE MSR. Called
// once on SYSCALL entry and once on SYSRET exit; callers must pair every
// SwapGS with exactly one matching SwapGS before returning to ring 3.
//
//go:noescape
func SwapGS()
