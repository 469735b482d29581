// Package merkle implements the fixed-depth incremental sparse Merkle
// tree that accumulates Veilocity leaves (deposit commitments and
// account leaves) into a single anchorable root.
package merkle

import (
	"fmt"
	"sync"

	"github.com/abhirupinspace/veilocity/internal/corerr"
	"github.com/abhirupinspace/veilocity/internal/field"
)

// Depth is the fixed tree depth, giving room for 2^20 ≈ 1,048,576 leaves.
const Depth = 20

// MaxLeaves is the tree's capacity, 2^Depth.
const MaxLeaves = uint64(1) << Depth

// Path is a membership proof: the sibling hash at each level from the
// leaf up to (but not including) the root, in leaf-to-root order.
type Path struct {
	Siblings [Depth]field.F
	Index    uint64
}

// Store is the persistence seam for tree nodes, mirroring the
// teacher's zkp.TreeStore interface generalized to a sparse,
// level-indexed map rather than a single flat node cache. An
// in-memory implementation is provided for tests and for the state
// manager's in-process tree; a durable-backed implementation can
// satisfy the same interface without the Tree itself changing.
type Store interface {
	GetNode(level int, index uint64) (field.F, bool)
	SetNode(level int, index uint64, h field.F)
	LeafCount() uint64
	SetLeafCount(n uint64)
}

// MemoryStore is a process-local, mutex-free Store. The Tree wrapping
// it is itself the synchronization boundary (spec.md §5: the engine
// holds an exclusive logical handle on the state manager for the
// duration of one operation), so MemoryStore does not lock internally.
type MemoryStore struct {
	nodes     []map[uint64]field.F
	leafCount uint64
}

// NewMemoryStore returns an empty Store ready for a fresh tree.
func NewMemoryStore() *MemoryStore {
	nodes := make([]map[uint64]field.F, Depth+1)
	for i := range nodes {
		nodes[i] = make(map[uint64]field.F)
	}
	return &MemoryStore{nodes: nodes}
}

func (s *MemoryStore) GetNode(level int, index uint64) (field.F, bool) {
	v, ok := s.nodes[level][index]
	return v, ok
}

func (s *MemoryStore) SetNode(level int, index uint64, h field.F) {
	s.nodes[level][index] = h
}

func (s *MemoryStore) LeafCount() uint64 { return s.leafCount }

func (s *MemoryStore) SetLeafCount(n uint64) { s.leafCount = n }

// Tree is the incremental sparse Merkle tree described in spec.md §4.2.
// Every method takes the tree's own mutex, so concurrent calls are
// serialized; the underlying Store is only ever touched under it.
type Tree struct {
	mu         sync.Mutex
	store      Store
	hasher     *field.Hasher
	emptyHash  [Depth + 1]field.F
}

// New builds a Tree over store, precomputing the empty-subtree hashes
// E[0..Depth] as spec.md §3 defines: E[0] = H2(0,0), E[k] = H2(E[k-1], E[k-1]).
func New(store Store, hasher *field.Hasher) *Tree {
	t := &Tree{store: store, hasher: hasher}
	t.emptyHash[0] = hasher.H2(field.Zero(), field.Zero())
	for k := 1; k <= Depth; k++ {
		t.emptyHash[k] = hasher.H2(t.emptyHash[k-1], t.emptyHash[k-1])
	}
	return t
}

// EmptyHash returns E[level], the hash of an entirely-empty subtree
// rooted at that level (level 0 is an empty leaf).
func (t *Tree) EmptyHash(level int) field.F {
	return t.emptyHash[level]
}

// LeafCount returns the next available leaf index.
func (t *Tree) LeafCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.LeafCount()
}

// Root returns the current root hash.
func (t *Tree) Root() field.F {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeAt(Depth, 0)
}

// nodeAt reads a node, falling back to the precomputed empty hash for
// that level when the sparse map has nothing stored there. Must be
// called with t.mu held.
func (t *Tree) nodeAt(level int, index uint64) field.F {
	if v, ok := t.store.GetNode(level, index); ok {
		return v
	}
	return t.emptyHash[level]
}

// Insert appends leaf at the current leaf_count and returns the index
// it was assigned. Returns corerr.ErrTreeFull once the tree is at
// capacity.
func (t *Tree) Insert(leaf field.F) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.store.LeafCount()
	if count >= MaxLeaves {
		return 0, corerr.ErrTreeFull
	}
	t.setLeaf(count, leaf)
	t.store.SetLeafCount(count + 1)
	return count, nil
}

// Update rewrites the leaf at index and recomputes every ancestor
// hash on its path to the root. Updating an index at or beyond the
// current leaf_count is permitted and raises leaf_count to index+1 —
// the state manager's reconstruction gap-fill and account
// materialization rely on it (spec.md §4.2 edge cases).
func (t *Tree) Update(index uint64, leaf field.F) error {
	if index >= MaxLeaves {
		return fmt.Errorf("merkle: index %d exceeds capacity %d: %w", index, MaxLeaves, corerr.ErrInvalidInput)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLeaf(index, leaf)
	if index >= t.store.LeafCount() {
		t.store.SetLeafCount(index + 1)
	}
	return nil
}

// setLeaf writes the leaf and recomputes the path to the root. Must
// be called with t.mu held. Ordering follows spec.md §4.2: even index
// is the left child, odd is the right child, at every level.
func (t *Tree) setLeaf(index uint64, leaf field.F) {
	t.store.SetNode(0, index, leaf)

	current := index
	currentHash := leaf
	for level := 0; level < Depth; level++ {
		siblingIndex := current ^ 1
		sibling := t.nodeAt(level, siblingIndex)

		var left, right field.F
		if current%2 == 0 {
			left, right = currentHash, sibling
		} else {
			left, right = sibling, currentHash
		}
		parent := t.hasher.H2(left, right)

		current /= 2
		currentHash = parent
		t.store.SetNode(level+1, current, currentHash)
	}
}

// Proof returns the sibling path from leaf to root for index. This is
// legal even for an index at or beyond the current leaf_count (useful
// for precomputing paths before insertion, per spec.md §4.2).
func (t *Tree) Proof(index uint64) (Path, error) {
	if index >= MaxLeaves {
		return Path{}, fmt.Errorf("merkle: index %d exceeds capacity %d: %w", index, MaxLeaves, corerr.ErrInvalidInput)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var path Path
	path.Index = index
	current := index
	for level := 0; level < Depth; level++ {
		siblingIndex := current ^ 1
		path.Siblings[level] = t.nodeAt(level, siblingIndex)
		current /= 2
	}
	return path, nil
}

// Verify recomputes the path for leaf at index using the supplied
// proof and reports whether the resulting root matches root. It does
// not mutate the tree.
func Verify(hasher *field.Hasher, leaf field.F, index uint64, path Path, root field.F) bool {
	current := index
	currentHash := leaf
	for level := 0; level < Depth; level++ {
		sibling := path.Siblings[level]
		var left, right field.F
		if current%2 == 0 {
			left, right = currentHash, sibling
		} else {
			left, right = sibling, currentHash
		}
		currentHash = hasher.H2(left, right)
		current /= 2
	}
	return field.Equal(currentHash, root)
}

// Leaf returns the node stored at level 0, index — the empty leaf
// hash if nothing has been written there.
func (t *Tree) Leaf(index uint64) field.F {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeAt(0, index)
}
