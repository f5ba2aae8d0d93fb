// Package mm composes internal/chunk, internal/vmm, and internal/registry
// into the two malloc/free entry points spec §4.1 describes: a super-page
// path for large/aligned requests and a sub-page path for everything else.
// Neither internal/chunk nor internal/vmm depends on the other; this
// package is where their outputs meet, matching registry.Entry's own
// documented expectation ("the composing allocator (internal/mm) stores a
// []chunk.Chunk here").
package mm

import (
	"kstratum/internal/chunk"
	"kstratum/internal/registry"
	"kstratum/internal/vmm"
)

const pageSize = 4096

// perRequestOverhead approximates "num_chunks·sizeof(chunk) +
// sizeof(registry_node)" (spec §4.1) as a fixed allowance rather than a
// size that depends on the tier decomposition it is computed before —
// large enough to cover the bookkeeping for any request this kernel's
// address space sizes will ever see.
const perRequestOverhead = 256

// subPageThreshold is the largest request size (before overhead) the
// sub-page manager accepts: one page minus the bookkeeping overhead a
// super-page allocation would carry (spec §4.1: "size 1...(page-info
// overhead) go to the sub-page manager; size above that to the
// super-page path").
const subPageThreshold = pageSize - perRequestOverhead

// Manager wires one CPU's super-page allocator, one address space's
// sub-page manager, and the shared allocation registry together.
type Manager struct {
	alloc *chunk.Allocator
	space *vmm.AddressSpace
	reg   *registry.Registry
}

// New builds a Manager over alloc (physical chunk pool), space (the
// address space super-page allocations are mapped into), and reg (the
// registry super-page allocations are recorded in).
func New(alloc *chunk.Allocator, space *vmm.AddressSpace, reg *registry.Registry) *Manager {
	return &Manager{alloc: alloc, space: space, reg: reg}
}

// Malloc implements spec §4.1's boundary conditions: a 0-byte request
// returns null (0); requests at or under subPageThreshold and with
// alignment at or under half a page go to the sub-page manager; everything
// else goes to the super-page path.
func (m *Manager) Malloc(cpu int, size uint64, align uint64) uintptr {
	if size == 0 {
		return 0
	}
	if align <= pageSize/2 && size <= subPageThreshold {
		if align <= 1 {
			return m.space.SubAlloc(size)
		}
		return m.space.SubAlignedAlloc(size, align)
	}
	return m.superAlloc(cpu, size)
}

// Free returns addr to whichever path owns it: the sub-page manager is
// tried first and reports "not ours" (spec §4.2 try_sub_free) if addr
// falls outside every sub-page region, at which point the super-page path
// runs via the registry.
func (m *Manager) Free(cpu int, addr uintptr) {
	if addr == 0 {
		return
	}
	if m.space.TrySubFree(addr) {
		return
	}
	m.superFree(cpu, addr)
}

// superAlloc decomposes the requested size (plus overhead) into page
// counts per tier using base-16 digits of the total page count (spec
// §4.1: "compute the tier decomposition using base-16 digits of the page
// count, walk from largest to smallest tier drawing batches"), identity-
// maps each drawn chunk into the next virtual bump address, and records a
// registry node keyed by the returned address.
func (m *Manager) superAlloc(cpu int, size uint64) uintptr {
	totalBytes := size + perRequestOverhead
	pages := (totalBytes + pageSize - 1) / pageSize

	chunks := make([]chunk.Chunk, 0, 8)
	for tier := chunk.NumClasses - 1; tier >= 0; tier-- {
		digit := (pages >> uint(4*tier)) & 0xF
		for i := uint64(0); i < digit; i++ {
			c, ok := m.alloc.Alloc(cpu, chunk.Class(tier))
			if !ok {
				m.rollback(cpu, chunks)
				return 0
			}
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return 0
	}

	totalSize := uint64(0)
	for _, c := range chunks {
		totalSize += c.Class.Size()
	}
	base := m.space.GetNewAddress(totalSize)

	virt := base
	for _, c := range chunks {
		if err := m.space.MapRegion(c.PhysStart, virt, c.Class.Size(), vmm.FlagWritable); err != nil {
			m.rollback(cpu, chunks)
			return 0
		}
		virt += uintptr(c.Class.Size())
	}

	m.reg.AddEntry(registry.Entry{Addr: base, ChunkCount: len(chunks), ChunkList: chunks})
	return base
}

func (m *Manager) rollback(cpu int, chunks []chunk.Chunk) {
	for _, c := range chunks {
		m.alloc.Free(cpu, c)
	}
}

// superFree looks addr up in the registry and returns every backing chunk
// to the allocator. TLB invalidation is deliberately not performed here
// (spec §9 open question, decided in DESIGN.md: ring-3 is out of scope, so
// a stale identity-mapped entry cannot be exploited from user code).
func (m *Manager) superFree(cpu int, addr uintptr) {
	entry, ok := m.reg.TakeEntry(addr)
	if !ok {
		return
	}
	chunks, ok := entry.ChunkList.([]chunk.Chunk)
	if !ok {
		return
	}
	for _, c := range chunks {
		m.alloc.Free(cpu, c)
	}
}

// MemInfo adapts chunk.Allocator's Stats into internal/terminal's
// MemInfoProvider contract without terminal importing chunk directly.
func (m *Manager) MemInfo() (totalBytes, freeBytes uint64) {
	return m.alloc.Stats()
}
