package merkle

import (
	"errors"
	"testing"

	"github.com/abhirupinspace/veilocity/internal/corerr"
	"github.com/abhirupinspace/veilocity/internal/field"
)

func newTestTree() *Tree {
	return New(NewMemoryStore(), field.NewHasher())
}

func TestInsertAndProofRoundTrip(t *testing.T) {
	tree := newTestTree()
	leaves := []field.F{
		field.FromUint64(1),
		field.FromUint64(2),
		field.FromUint64(3),
	}

	for i, leaf := range leaves {
		idx, err := tree.Insert(leaf)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if idx != uint64(i) {
			t.Fatalf("expected index %d, got %d", i, idx)
		}
	}

	root := tree.Root()
	for i, leaf := range leaves {
		path, err := tree.Proof(uint64(i))
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		if !Verify(field.NewHasher(), leaf, uint64(i), path, root) {
			t.Fatalf("verification failed for leaf %d", i)
		}
	}
}

func TestUpdateChangesRootForDistinctValues(t *testing.T) {
	tree := newTestTree()
	idx, err := tree.Insert(field.FromUint64(1))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := tree.Update(idx, field.FromUint64(100)); err != nil {
		t.Fatalf("update a: %v", err)
	}
	rootA := tree.Root()

	if err := tree.Update(idx, field.FromUint64(200)); err != nil {
		t.Fatalf("update b: %v", err)
	}
	rootB := tree.Root()

	if field.Equal(rootA, rootB) {
		t.Fatalf("distinct leaf values must produce distinct roots")
	}
}

func TestEmptyTreeRootIndependentOfHistory(t *testing.T) {
	empty := newTestTree()
	emptyRoot := empty.Root()

	tree := newTestTree()
	var indices []uint64
	for i := 0; i < 5; i++ {
		idx, err := tree.Insert(field.FromUint64(uint64(i + 1)))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		indices = append(indices, idx)
	}
	for _, idx := range indices {
		if err := tree.Update(idx, tree.EmptyHash(0)); err != nil {
			t.Fatalf("update to empty: %v", err)
		}
	}

	if !field.Equal(empty.Root(), tree.Root()) {
		t.Fatalf("root after overwriting all leaves to E[0] must equal the empty root")
	}
	if !field.Equal(emptyRoot, tree.Root()) {
		t.Fatalf("sanity: recomputed empty root mismatch")
	}
}

func TestGapFillViaUpdateBeforeInsert(t *testing.T) {
	tree := newTestTree()

	// Sync gap-fill: a deposit lands at index 3 with positions 0..2
	// never observed. Update is legal ahead of LeafCount per spec.md
	// §4.2 edge cases.
	commitment := field.FromUint64(777)
	if err := tree.Update(3, commitment); err != nil {
		t.Fatalf("update: %v", err)
	}
	if tree.LeafCount() != 4 {
		t.Fatalf("expected leaf_count 4 after filling through index 3, got %d", tree.LeafCount())
	}
	for i := uint64(0); i < 3; i++ {
		if !field.Equal(tree.Leaf(i), tree.EmptyHash(0)) {
			t.Fatalf("position %d should hold E[0] until observed", i)
		}
	}
	if !field.Equal(tree.Leaf(3), commitment) {
		t.Fatalf("position 3 should hold the deposit commitment")
	}

	path, err := tree.Proof(3)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if !Verify(field.NewHasher(), commitment, 3, path, tree.Root()) {
		t.Fatalf("gap-filled leaf must verify against the resulting root")
	}
}

func TestInsertRejectsBeyondCapacity(t *testing.T) {
	store := NewMemoryStore()
	store.SetLeafCount(MaxLeaves)
	tree := New(store, field.NewHasher())

	_, err := tree.Insert(field.FromUint64(1))
	if !errors.Is(err, corerr.ErrTreeFull) {
		t.Fatalf("expected ErrTreeFull, got %v", err)
	}
}

func TestProofBeyondLeafCountIsLegal(t *testing.T) {
	tree := newTestTree()
	if _, err := tree.Insert(field.FromUint64(1)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Index far beyond leaf_count but within capacity.
	path, err := tree.Proof(500)
	if err != nil {
		t.Fatalf("proof for unseeded index should succeed: %v", err)
	}
	if !Verify(field.NewHasher(), tree.EmptyHash(0), 500, path, tree.Root()) {
		t.Fatalf("unseeded leaf should verify as the empty leaf")
	}
}
