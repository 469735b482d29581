package state

import (
	"context"
	"sync"
	"time"

	"github.com/abhirupinspace/veilocity/internal/corerr"
)

// MemoryStore is a process-local Store, the same role the teacher's
// InMemoryTreeStore/InMemoryNullifierStore play in internal/zkp: a
// reference implementation useful for tests and for a single-node
// deployment without Postgres available.
type MemoryStore struct {
	mu             sync.Mutex
	accounts       map[[32]byte]AccountRecord
	byIndex        map[uint64][32]byte
	nullifiers     map[[32]byte]struct{}
	checkpoint     uint64
	haveCheckpoint bool
	transactions   map[[16]byte]JournalEntry
}

// NewMemoryStore returns an empty Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[[32]byte]AccountRecord),
		byIndex:      make(map[uint64][32]byte),
		nullifiers:   make(map[[32]byte]struct{}),
		transactions: make(map[[16]byte]JournalEntry),
	}
}

func (m *MemoryStore) CreateAccount(_ context.Context, rec AccountRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[rec.Pubkey]; exists {
		return nil
	}
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	m.accounts[rec.Pubkey] = rec
	m.byIndex[rec.LeafIndex] = rec.Pubkey
	return nil
}

func (m *MemoryStore) GetAccountByPubkey(_ context.Context, pubkey [32]byte) (*AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.accounts[pubkey]
	if !ok {
		return nil, corerr.ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) UpdateAccount(_ context.Context, pubkey [32]byte, balanceLE [16]byte, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.accounts[pubkey]
	if !ok {
		return corerr.ErrNotFound
	}
	rec.BalanceLE = balanceLE
	rec.Nonce = nonce
	rec.UpdatedAt = time.Now()
	m.accounts[pubkey] = rec
	return nil
}

func (m *MemoryStore) ListAccountsByIndexAsc(_ context.Context) ([]AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	indices := make([]uint64, 0, len(m.byIndex))
	for idx := range m.byIndex {
		indices = append(indices, idx)
	}
	sortUint64s(indices)

	out := make([]AccountRecord, 0, len(indices))
	for _, idx := range indices {
		out = append(out, m.accounts[m.byIndex[idx]])
	}
	return out, nil
}

func (m *MemoryStore) IsNullifierUsed(_ context.Context, nullifier [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.nullifiers[nullifier]
	return ok, nil
}

func (m *MemoryStore) MarkNullifierUsed(_ context.Context, nullifier [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nullifiers[nullifier]; ok {
		return corerr.ErrNullifierUsed
	}
	m.nullifiers[nullifier] = struct{}{}
	return nil
}

func (m *MemoryStore) UnmarkNullifierUsed(_ context.Context, nullifier [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nullifiers, nullifier)
	return nil
}

func (m *MemoryStore) ListNullifiers(_ context.Context) ([][32]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][32]byte, 0, len(m.nullifiers))
	for n := range m.nullifiers {
		out = append(out, n)
	}
	return out, nil
}

func (m *MemoryStore) GetSyncCheckpoint(_ context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoint, m.haveCheckpoint, nil
}

func (m *MemoryStore) SetSyncCheckpoint(_ context.Context, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = block
	m.haveCheckpoint = true
	return nil
}

func (m *MemoryStore) AppendTransaction(_ context.Context, entry JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	m.transactions[entry.ID] = entry
	return nil
}

func (m *MemoryStore) UpdateTransactionStatusByNullifier(_ context.Context, nullifier [32]byte, status TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.transactions {
		if entry.Nullifier != nil && *entry.Nullifier == nullifier {
			entry.Status = status
			entry.UpdatedAt = time.Now()
			m.transactions[key] = entry
			return nil
		}
	}
	return corerr.ErrNotFound
}

// sortUint64s is a tiny insertion sort; account counts are small
// enough in tests and single-node deployments that pulling in
// sort.Slice for this is unnecessary ceremony.
func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
