// Package devtree implements the two parallel hierarchies of spec §3/§4.4:
// a polymorphic device tree (children sorted by name, properties
// binary-searchable) and an interrupt tree whose root has 256 children,
// one per CPU vector, each owned by at most one device node.
//
// Spec §9's design note calls for replacing the original's cyclic
// parent/child raw pointers with an arena indexed by NodeId; both trees
// here store nodes in a single growable slice and refer to each other by
// index, with Option<NodeId> modeled as the sentinel InvalidNode.
package devtree

import (
	"sort"
	"strconv"
	"strings"

	"kstratum/internal/spinlock"
)

// NodeId indexes into a DeviceTree's node arena. InvalidNode is the
// Option<NodeId>::None sentinel spec §9 calls for.
type NodeId int32

const InvalidNode NodeId = -1

// Property is one name/value pair attached to a device node.
//
// spec §9's Open Question flags that the original's property comparator
// returns a sign reversed from strcmp's, while the device-name binary
// search treats ordering as standard less-than — and leaves it unresolved
// whether that is a bug. This module carries the discrepancy forward
// exactly as observed rather than silently "fixing" it: properties are
// kept sorted in descending key order (so the reversed-sign comparator
// that performs the binary search is internally consistent with the
// stored order), while device-name children use the normal ascending,
// standard-less-than order the spec says the tree itself relies on. See
// DESIGN.md and TestPropertyQuirkStillResolves.
type Property struct {
	Key   string
	Value string
}

// propertyQuirkCompare mirrors the original's reversed-sign strcmp: it
// returns the *negative* of the natural lexicographic comparison.
func propertyQuirkCompare(a, b string) int {
	return -strings.Compare(a, b)
}

// QuirkEqual mirrors the original's equal_to, defined as left != right
// (spec §9: "every call site should be audited before reuse"). It is kept
// only as a named, documented artifact — nothing in this package calls it
// for an actual equality test; callers that need real equality compare
// strings directly.
func QuirkEqual(left, right string) bool {
	return left != right
}

type deviceNode struct {
	name     string
	model    string
	props    []Property // sorted by propertyQuirkCompare (descending key order)
	children []NodeId   // sorted ascending by name
	parent   NodeId
}

// DeviceTree is the device hierarchy rooted at "/".
type DeviceTree struct {
	mu    spinlock.Mutex
	nodes []deviceNode
	root  NodeId
}

// NewDeviceTree builds a tree with just the root node.
func NewDeviceTree() *DeviceTree {
	t := &DeviceTree{}
	t.nodes = append(t.nodes, deviceNode{name: "", parent: InvalidNode})
	t.root = 0
	return t
}

func (t *DeviceTree) node(id NodeId) *deviceNode { return &t.nodes[id] }

// childIndex returns the position in parent.children where a child named
// name would sit, and whether a child with that exact name already
// exists, using standard ascending lexicographic order (spec: "the device
// lookup binary search treats it as standard less-than").
func (t *DeviceTree) childIndex(parent NodeId, name string) (int, bool) {
	children := t.node(parent).children
	i := sort.Search(len(children), func(i int) bool {
		return t.node(children[i]).name >= name
	})
	if i < len(children) && t.node(children[i]).name == name {
		return i, true
	}
	return i, false
}

// uniqueName always appends a numeric suffix starting at 0, matching
// register_device in the original (device_tree.cpp): the first "timer"
// registered under a parent becomes "timer0", the second "timer1" (spec
// §8 scenario 6), never a bare "timer".
func (t *DeviceTree) uniqueName(parent NodeId, base string) string {
	for i := 0; ; i++ {
		candidate := base + strconv.Itoa(i)
		if _, exists := t.childIndex(parent, candidate); !exists {
			return candidate
		}
	}
}

// RegisterDevice resolves parentPath by descending from root, binary-
// searching each level's children by name, then inserts a node named name
// plus its always-appended numeric suffix (name0, name1, ...) holding
// model and props. It returns the new node's id and its final path.
func (t *DeviceTree) RegisterDevice(parentPath, name, model string, props []Property) (NodeId, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.resolve(parentPath)
	if !ok {
		parent = t.root
	}

	finalName := t.uniqueName(parent, name)

	sortedProps := append([]Property(nil), props...)
	sort.Slice(sortedProps, func(i, j int) bool {
		return propertyQuirkCompare(sortedProps[i].Key, sortedProps[j].Key) < 0
	})

	id := NodeId(len(t.nodes))
	t.nodes = append(t.nodes, deviceNode{name: finalName, model: model, props: sortedProps, parent: parent})

	idx, _ := t.childIndex(parent, finalName)
	pc := &t.node(parent).children
	*pc = append(*pc, InvalidNode)
	copy((*pc)[idx+1:], (*pc)[idx:])
	(*pc)[idx] = id

	return id, t.pathOf(id)
}

// resolve walks a "/"-separated path from root, binary-searching each
// level's children by name.
func (t *DeviceTree) resolve(path string) (NodeId, bool) {
	path = strings.Trim(path, "/")
	cur := t.root
	if path == "" {
		return cur, true
	}
	for _, part := range strings.Split(path, "/") {
		idx, exists := t.childIndex(cur, part)
		if !exists {
			return InvalidNode, false
		}
		cur = t.node(cur).children[idx]
	}
	return cur, true
}

// FindDevice composes path+strconv.Itoa(index) and looks it up (spec §4.4
// find_device).
func (t *DeviceTree) FindDevice(path string, index int) (NodeId, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolve(path + strconv.Itoa(index))
}

// Lookup resolves an exact path without an appended index.
func (t *DeviceTree) Lookup(path string) (NodeId, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolve(path)
}

// pathOf reconstructs the full path to id by walking parent pointers.
// Round-trip law (spec §8): PathOf(node at p) == p for any reachable p.
func (t *DeviceTree) pathOf(id NodeId) string {
	if id == t.root {
		return "/"
	}
	var parts []string
	for n := id; n != t.root; n = t.node(n).parent {
		parts = append([]string{t.node(n).name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

// PathOf is the exported, locked form of pathOf.
func (t *DeviceTree) PathOf(id NodeId) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pathOf(id)
}

// Property looks up a property by key on node id using the carried-
// forward reversed-sign comparator (see Property's doc comment).
func (t *DeviceTree) Property(id NodeId, key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	props := t.node(id).props
	i := sort.Search(len(props), func(i int) bool {
		return propertyQuirkCompare(props[i].Key, key) >= 0
	})
	if i < len(props) && props[i].Key == key {
		return props[i].Value, true
	}
	return "", false
}

// Walk invokes fn for every node reachable from root in a depth-first,
// children-in-sorted-order traversal, passing each node's full path. Used
// by the terminal's device-listing command (SPEC_FULL.md §2.4).
func (t *DeviceTree) Walk(fn func(path, model string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.walk(t.root, fn)
}

func (t *DeviceTree) walk(id NodeId, fn func(path, model string)) {
	n := t.node(id)
	fn(t.pathOf(id), n.model)
	for _, c := range n.children {
		t.walk(c, fn)
	}
}
