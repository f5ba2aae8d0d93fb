// Package chunk implements the tiered physical-page pool described in
// spec §3 "Physical memory: chunks, reservoirs, piles" and §4.1: six size
// classes stepping by a factor of 16, a global spin-locked reservoir per
// class, and a per-logical-CPU pile cache with asynchronous refill.
//
// Grounded on gopher-os's BitmapAllocator (other_examples'
// bitmap_allocator.go.go) for the general shape of a pool-based physical
// frame allocator, adapted from a single flat bitmap to the spec's
// multi-tier free-list design; locking follows mazboot's convention of a
// small spin primitive guarding a shared array (internal/spinlock).
package chunk

// Class is one of the six chunk size classes, 4 KiB * 16^k.
type Class uint8

const (
	Class4K Class = iota
	Class64K
	Class1M
	Class16M
	Class256M
	Class4G
	numClasses
)

// NumClasses is the number of size classes the allocator manages.
const NumClasses = int(numClasses)

// Size returns the byte size of a chunk in class c.
func (c Class) Size() uint64 {
	return uint64(4096) << (4 * uint(c))
}

// Chunk is a contiguous, naturally-aligned physical region.
type Chunk struct {
	PhysStart uint64
	Class     Class
}

// PileCapacity is the maximum number of chunks a pile caches (spec §3).
const PileCapacity = 32

// refillThreshold is the "quarter full" watermark below which a pile
// enqueues a background refill task (spec §4.1).
const refillThreshold = PileCapacity / 4

// LockToken threads the "I already hold this tier's mutex" fact explicitly
// through allocator entry points, per spec §4.2's "Lock override parameter"
// and design note in spec §9 (reentrant context, not thread-local state).
// A zero LockToken means "no tier held"; HeldFrom(k) means tier k's mutex
// is already held and is not locked again by the callee, while every other
// tier is locked as usual.
type LockToken struct {
	held    bool
	heldTop Class
}

// NoLock is the token for a call site that holds no reservoir/pile mutex.
var NoLock = LockToken{}

// HeldFrom returns a token recording that the caller already holds tier k's
// mutex (and, transitively, never needs to lock it again within this call
// chain).
func HeldFrom(k Class) LockToken {
	return LockToken{held: true, heldTop: k}
}

func (t LockToken) holds(k Class) bool {
	return t.held && k == t.heldTop
}
