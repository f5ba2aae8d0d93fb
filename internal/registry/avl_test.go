package registry

import "testing"

func TestAddAndLookupRoundTrip(t *testing.T) {
	var r Registry
	r.AddEntry(Entry{Addr: 0x1000, ChunkCount: 1})
	r.AddEntry(Entry{Addr: 0x2000, ChunkCount: 2})

	e, ok := r.Lookup(0x2000)
	if !ok || e.ChunkCount != 2 {
		t.Fatalf("expected to find entry at 0x2000, got %+v ok=%v", e, ok)
	}
	if !r.CheckBalance() {
		t.Fatal("AVL invariant violated after inserts")
	}
}

func TestTakeEntryRemoves(t *testing.T) {
	var r Registry
	r.AddEntry(Entry{Addr: 0x1000})

	e, ok := r.TakeEntry(0x1000)
	if !ok || e.Addr != 0x1000 {
		t.Fatalf("expected to take entry at 0x1000, got %+v ok=%v", e, ok)
	}
	if _, ok := r.Lookup(0x1000); ok {
		t.Fatal("expected entry to be gone after TakeEntry")
	}
}

func TestTakeEntryMissingIsFalse(t *testing.T) {
	var r Registry
	if _, ok := r.TakeEntry(0x9999); ok {
		t.Fatal("expected TakeEntry on an empty tree to report not-found")
	}
}

// TestDeleteWithTwoChildren mirrors spec §8 boundary scenario 4 exactly:
// insert [50, 30, 70, 20, 40, 60, 80]; delete 50; the root becomes 60
// (in-order successor) with balance 0 and all invariants hold.
func TestDeleteWithTwoChildren(t *testing.T) {
	var r Registry
	for _, k := range []uintptr{50, 30, 70, 20, 40, 60, 80} {
		r.AddEntry(Entry{Addr: k})
	}
	if !r.CheckBalance() {
		t.Fatal("AVL invariant violated after inserts")
	}

	if _, ok := r.TakeEntry(50); !ok {
		t.Fatal("expected to find and remove key 50")
	}
	if !r.CheckBalance() {
		t.Fatal("AVL invariant violated after delete")
	}
	if r.root.entry.Addr != 60 {
		t.Fatalf("expected root to become 60 (in-order successor), got %d", r.root.entry.Addr)
	}
	if balanceFactor(r.root) != 0 {
		t.Fatalf("expected root balance factor 0, got %d", balanceFactor(r.root))
	}
}

func TestNoTwoNodesShareAnAddress(t *testing.T) {
	var r Registry
	r.AddEntry(Entry{Addr: 0x1000, ChunkCount: 1})
	r.AddEntry(Entry{Addr: 0x1000, ChunkCount: 99})

	e, ok := r.Lookup(0x1000)
	if !ok || e.ChunkCount != 99 {
		t.Fatalf("expected re-insert at the same address to overwrite, got %+v", e)
	}
}

func TestManyInsertsStayBalanced(t *testing.T) {
	var r Registry
	for i := uintptr(0); i < 500; i++ {
		r.AddEntry(Entry{Addr: i * 0x1000})
	}
	if !r.CheckBalance() {
		t.Fatal("AVL invariant violated after 500 sequential inserts")
	}
	for i := uintptr(0); i < 500; i += 7 {
		if _, ok := r.TakeEntry(i * 0x1000); !ok {
			t.Fatalf("expected entry %d to exist", i)
		}
	}
	if !r.CheckBalance() {
		t.Fatal("AVL invariant violated after interleaved deletes")
	}
}
