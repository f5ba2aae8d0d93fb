// Package registry implements the allocation registry of spec §3/§4.3: a
// balanced AVL tree keyed by virtual start address, mapping a super-page
// allocation's address back to the chunk list backing it. A single spin
// mutex serializes every mutation (spec §5).
//
// Grounded on the teacher's general data-structure style (small, pointer-
// based nodes, no generics, explicit balance bookkeeping); AVL rotation
// logic follows the standard single/double LR/RL shapes spec §4.3 and §8
// call for (balance invariant |height(left)-height(right)| <= 1, checked
// in the accompanying tests after a run of inserts or deletes).
package registry

import "kstratum/internal/spinlock"

// Entry is the payload attached to one allocation: the chunk list that
// backs the virtual range starting at Addr, and how many chunks it holds.
type Entry struct {
	Addr       uintptr
	ChunkCount int
	// ChunkList is left as an opaque value (any) so this package does not
	// need to import internal/chunk; the composing allocator (internal/mm)
	// stores a []chunk.Chunk here.
	ChunkList any
}

type node struct {
	entry       Entry
	left, right *node
	height      int8
}

func height(n *node) int8 {
	if n == nil {
		return 0
	}
	return n.height
}

func max8(a, b int8) int8 {
	if a > b {
		return a
	}
	return b
}

func update(n *node) {
	n.height = 1 + max8(height(n.left), height(n.right))
}

func balanceFactor(n *node) int8 {
	if n == nil {
		return 0
	}
	return height(n.left) - height(n.right)
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	update(y)
	update(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	update(x)
	update(y)
	return y
}

func rebalance(n *node) *node {
	update(n)
	bf := balanceFactor(n)
	if bf > 1 {
		if balanceFactor(n.left) < 0 {
			n.left = rotateLeft(n.left) // LR case
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.right) > 0 {
			n.right = rotateRight(n.right) // RL case
		}
		return rotateLeft(n)
	}
	return n
}

func insert(n *node, e Entry) *node {
	if n == nil {
		return &node{entry: e, height: 1}
	}
	switch {
	case e.Addr < n.entry.Addr:
		n.left = insert(n.left, e)
	case e.Addr > n.entry.Addr:
		n.right = insert(n.right, e)
	default:
		n.entry = e // address reused after a prior free; overwrite.
		return n
	}
	return rebalance(n)
}

func find(n *node, addr uintptr) *node {
	for n != nil {
		switch {
		case addr < n.entry.Addr:
			n = n.left
		case addr > n.entry.Addr:
			n = n.right
		default:
			return n
		}
	}
	return nil
}

// deleteNode removes the node keyed by addr, using in-order-successor swap
// for the two-children case (spec §4.3/§8 scenario 4), and returns the new
// subtree root plus the removed entry (zero value if not found).
func deleteNode(n *node, addr uintptr) (*node, Entry, bool) {
	if n == nil {
		return nil, Entry{}, false
	}
	var removed Entry
	var found bool
	switch {
	case addr < n.entry.Addr:
		n.left, removed, found = deleteNode(n.left, addr)
	case addr > n.entry.Addr:
		n.right, removed, found = deleteNode(n.right, addr)
	default:
		removed, found = n.entry, true
		if n.left == nil {
			return n.right, removed, found
		}
		if n.right == nil {
			return n.left, removed, found
		}
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.entry = succ.entry
		n.right, _, _ = deleteNode(n.right, succ.entry.Addr)
	}
	if n == nil {
		return nil, removed, found
	}
	return rebalance(n), removed, found
}

// Registry is the AVL tree plus its guarding spin mutex (spec §4.3, §5).
type Registry struct {
	mu   spinlock.Mutex
	root *node
}

// AddEntry inserts e, keyed by e.Addr (spec AddEntry).
func (r *Registry) AddEntry(e Entry) {
	r.mu.Lock()
	r.root = insert(r.root, e)
	r.mu.Unlock()
}

// TakeEntry finds the entry at addr, detaches it, and returns it (spec
// TakeEntry). ok is false if no entry is registered at addr.
func (r *Registry) TakeEntry(addr uintptr) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	root, e, ok := deleteNode(r.root, addr)
	r.root = root
	return e, ok
}

// Lookup finds the entry at addr without removing it.
func (r *Registry) Lookup(addr uintptr) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := find(r.root, addr)
	if n == nil {
		return Entry{}, false
	}
	return n.entry, true
}

// CheckBalance walks the whole tree verifying the AVL invariant holds
// everywhere, for use by tests (spec §8).
func (r *Registry) CheckBalance() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return checkBalance(r.root)
}

func checkBalance(n *node) bool {
	if n == nil {
		return true
	}
	bf := balanceFactor(n)
	if bf > 1 || bf < -1 {
		return false
	}
	return checkBalance(n.left) && checkBalance(n.right)
}
