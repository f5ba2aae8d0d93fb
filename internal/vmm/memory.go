package vmm

import "kstratum/internal/chunk"

// TableAccessor resolves a physical table address to an addressable Table.
// In production this is backed by the recursive self-map or an identity
// mapping of low memory (every page table this kernel allocates lives in
// identity-mapped physical RAM); tests substitute a fake backed by a Go
// map, so the page-table walk logic is exercised without real hardware.
type TableAccessor interface {
	Table(phys uint64) *Table
}

// FrameSource allocates and frees the physical pages backing intermediate
// page tables. It is satisfied by *chunk.Allocator restricted to Class4K,
// kept as a narrow interface here so vmm does not need the whole chunk
// API surface.
type FrameSource interface {
	AllocPage(cpu int) (phys uint64, ok bool)
	FreePage(cpu int, phys uint64)
}

// chunkFrameSource adapts a *chunk.Allocator to FrameSource.
type chunkFrameSource struct {
	alloc *chunk.Allocator
}

// NewChunkFrameSource builds a FrameSource that draws page-table frames
// from alloc's tier-0 (4 KiB) chunks.
func NewChunkFrameSource(alloc *chunk.Allocator) FrameSource {
	return &chunkFrameSource{alloc: alloc}
}

func (s *chunkFrameSource) AllocPage(cpu int) (uint64, bool) {
	c, ok := s.alloc.Alloc(cpu, chunk.Class4K)
	if !ok {
		return 0, false
	}
	return c.PhysStart, true
}

func (s *chunkFrameSource) FreePage(cpu int, phys uint64) {
	s.alloc.Free(cpu, chunk.Chunk{PhysStart: phys, Class: chunk.Class4K})
}
