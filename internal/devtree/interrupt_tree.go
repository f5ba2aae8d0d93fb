package devtree

import (
	"sync/atomic"

	"kstratum/internal/spinlock"
)

// VectorFirstUsable is the lowest vector vector_alloc will hand out; 0-31
// are the x86 exception slots and are never allocated dynamically (spec
// §6 "Interrupt vectors").
const VectorFirstUsable = 32

// InterruptTree is the second hierarchy of spec §3/§4.4: unsorted,
// children indexed by IRQ/vector number. The root has exactly 256
// children, one per CPU interrupt vector; each is either unowned
// (InvalidNode) or the node of the device that has claimed it.
//
// Root-slot claims use CAS directly on a fixed array (spec §4.4
// vector_alloc/vector_free/vector_override, §5 "Interrupt-tree root slots
// use CAS for vector allocation"); deeper nodes (e.g. a PCI bridge fanning
// out to its own child devices) use an ordinary mutex-guarded indexed
// slice, since only the root's 256-wide vector table needs lock-free
// allocation on the hot IRQ-routing path.
type InterruptTree struct {
	root [256]atomic.Int32 // stores int32(NodeId)+1; 0 means unowned.

	dt *DeviceTree

	mu       spinlock.Mutex
	children map[NodeId][]NodeId // per-node, numeric-indexed route children; parallel to dt's name-sorted children, not shared with them.
}

// NewInterruptTree builds an empty interrupt tree sharing node storage
// with dt, so an owner recorded here is a real device-tree node.
func NewInterruptTree(dt *DeviceTree) *InterruptTree {
	return &InterruptTree{dt: dt, children: make(map[NodeId][]NodeId)}
}

func encode(id NodeId) int32 { return int32(id) + 1 }
func decode(v int32) (NodeId, bool) {
	if v == 0 {
		return InvalidNode, false
	}
	return NodeId(v - 1), true
}

// VectorAlloc CAS-scans vectors [VectorFirstUsable, 256) for the first
// unowned slot, claims it for owner, and returns its index. It returns
// (0, false) if every vector is claimed, matching spec §4.4/§7's "returns
// 0 to indicate no free vector" (0 is otherwise never a valid result
// since the scan starts at 32).
func (it *InterruptTree) VectorAlloc(owner NodeId) (int, bool) {
	want := encode(owner)
	for v := VectorFirstUsable; v < len(it.root); v++ {
		if it.root[v].CompareAndSwap(0, want) {
			return v, true
		}
	}
	return 0, false
}

// VectorFree clears vector v's ownership.
func (it *InterruptTree) VectorFree(v int) {
	it.root[v].Store(0)
}

// VectorOverride unconditionally assigns vector v to owner, bypassing CAS.
// Used only during static setup (spec §4.4), e.g. HPET's comparator-0
// stealing the legacy PIT vector.
func (it *InterruptTree) VectorOverride(v int, owner NodeId) {
	it.root[v].Store(encode(owner))
}

// VectorOwner returns the device node owning vector v, if any.
func (it *InterruptTree) VectorOwner(v int) (NodeId, bool) {
	return decode(it.root[v].Load())
}

// RegisterIntRoute finds parent by resolving parentPath against the
// device tree (the two hierarchies share a namespace, per spec §3 "two
// parallel hierarchies rooted at /"), then records that owner claims IRQ
// index within that parent's own numeric-indexed interrupt-tree children
// (spec §4.4 register_int_route) — a separate, unsorted array from the
// device tree's name-sorted children, e.g. a PCI bridge's own IRQ line
// numbering below the root's fixed 256-wide vector table.
func (it *InterruptTree) RegisterIntRoute(owner NodeId, parentPath string, childIndex int) bool {
	parent, ok := it.dt.Lookup(parentPath)
	if !ok {
		return false
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	children := it.children[parent]
	for len(children) <= childIndex {
		children = append(children, InvalidNode)
	}
	children[childIndex] = owner
	it.children[parent] = children
	return true
}

// RouteOwner returns the owner registered at parentPath's childIndex, if
// any.
func (it *InterruptTree) RouteOwner(parentPath string, childIndex int) (NodeId, bool) {
	parent, ok := it.dt.Lookup(parentPath)
	if !ok {
		return InvalidNode, false
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	children := it.children[parent]
	if childIndex >= len(children) || children[childIndex] == InvalidNode {
		return InvalidNode, false
	}
	return children[childIndex], true
}
