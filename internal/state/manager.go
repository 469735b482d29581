// Package state implements the persistent state manager (spec.md
// §4.4): the durable coordinator of accounts, nullifiers, the sync
// checkpoint, and the transaction journal, wrapping the Merkle tree
// and account model underneath.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/abhirupinspace/veilocity/internal/account"
	"github.com/abhirupinspace/veilocity/internal/corerr"
	"github.com/abhirupinspace/veilocity/internal/field"
	"github.com/abhirupinspace/veilocity/internal/merkle"
)

// Manager is the sole owner of the durable store and the in-memory
// tree for one logical holder of the engine. Every exported method
// that reads or changes the tree, the account maps or the nullifier
// set takes the manager's mutex for its duration; the sync-checkpoint
// and journal methods go straight to the Store, and EmptyHash reads
// precomputed values, without taking it — the "single owner,
// exclusive handle per operation" model spec.md §5 and §9 call for.
// Long-running I/O (chain/indexer/prover) happens in other packages
// that call back into Manager only for short, lock-held operations.
type Manager struct {
	mu     sync.Mutex
	store  Store
	tree   *merkle.Tree
	hasher *field.Hasher
	log    *slog.Logger

	nullifiers map[[32]byte]struct{}
	byPubkey   map[field.F]*account.Account
	byIndex    map[uint64]*account.Account
}

// Open reconstructs a Manager from store: accounts are scanned in
// ascending leaf_index order and replayed into a fresh in-memory tree,
// with gaps filled by the empty leaf E[0] so every real leaf keeps its
// on-chain position (spec.md §4.4). The nullifier set is loaded
// wholesale into memory.
func Open(ctx context.Context, store Store, hasher *field.Hasher, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		store:      store,
		tree:       merkle.New(merkle.NewMemoryStore(), hasher),
		hasher:     hasher,
		log:        log,
		nullifiers: make(map[[32]byte]struct{}),
		byPubkey:   make(map[field.F]*account.Account),
		byIndex:    make(map[uint64]*account.Account),
	}

	records, err := store.ListAccountsByIndexAsc(ctx)
	if err != nil {
		return nil, fmt.Errorf("state: loading accounts: %w", err)
	}

	expected := uint64(0)
	for _, rec := range records {
		if rec.LeafIndex > expected {
			m.log.Warn("gap in leaf index on reconstruction", "expected", expected, "found", rec.LeafIndex)
			for gap := expected; gap < rec.LeafIndex; gap++ {
				if err := m.tree.Update(gap, m.tree.EmptyHash(0)); err != nil {
					return nil, fmt.Errorf("state: gap-filling index %d: %w", gap, err)
				}
			}
		} else if rec.LeafIndex < expected {
			return nil, fmt.Errorf("state: account index %d out of order (expected >= %d): %w", rec.LeafIndex, expected, corerr.ErrStorage)
		}

		acc := accountFromRecord(rec)
		leaf := acc.Leaf(hasher)
		if err := m.tree.Update(rec.LeafIndex, leaf); err != nil {
			return nil, fmt.Errorf("state: replaying account at index %d: %w", rec.LeafIndex, err)
		}
		m.byPubkey[acc.Pubkey] = acc
		m.byIndex[acc.Index] = acc
		expected = rec.LeafIndex + 1
	}

	nullifiers, err := store.ListNullifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("state: loading nullifiers: %w", err)
	}
	for _, n := range nullifiers {
		m.nullifiers[n] = struct{}{}
	}

	return m, nil
}

func accountFromRecord(rec AccountRecord) *account.Account {
	balance := new(big.Int).SetBytes(reverseBytes(rec.BalanceLE[:]))
	acc := account.NewWithBalance(field.FromBytes(rec.Pubkey[:]), balance, rec.LeafIndex)
	acc.Nonce = rec.Nonce
	return acc
}

// CreateAccount assigns the next leaf index, writes the account
// durably, and inserts its leaf into the tree (spec.md §4.4's
// create_account). Fails with ErrTreeFull once the tree is full.
func (m *Manager) CreateAccount(ctx context.Context, secret account.Secret, initialBalance *big.Int) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pubkey := secret.Pubkey()
	if _, exists := m.byPubkey[pubkey]; exists {
		return nil, fmt.Errorf("state: account for pubkey already exists: %w", corerr.ErrInvalidInput)
	}

	leaf := m.hasher.ComputeLeaf(pubkey, field.FromUint128(initialBalance), field.FromUint64(0))
	idx, err := m.tree.Insert(leaf)
	if err != nil {
		return nil, err
	}

	acc := account.NewWithBalance(pubkey, initialBalance, idx)

	if err := m.store.CreateAccount(ctx, toAccountRecord(acc)); err != nil {
		return nil, fmt.Errorf("state: persisting account: %w", err)
	}

	m.byPubkey[pubkey] = acc
	m.byIndex[idx] = acc
	return acc, nil
}

// GetAccount returns the in-memory account for pubkey, if any.
func (m *Manager) GetAccount(pubkey field.F) (*account.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byPubkey[pubkey]
	return acc, ok
}

// GetAccountByIndex returns the in-memory account at a tree index, if any.
func (m *Manager) GetAccountByIndex(index uint64) (*account.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byIndex[index]
	return acc, ok
}

// UpdateAccount persists acc's current balance/nonce and rewrites its
// tree leaf. acc must already exist (created via CreateAccount);
// otherwise ErrNotFound.
func (m *Manager) UpdateAccount(ctx context.Context, acc *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAccountLocked(ctx, acc)
}

func (m *Manager) updateAccountLocked(ctx context.Context, acc *account.Account) error {
	if _, exists := m.byPubkey[acc.Pubkey]; !exists {
		return corerr.ErrNotFound
	}

	rec := toAccountRecord(acc)
	if err := m.store.UpdateAccount(ctx, rec.Pubkey, rec.BalanceLE, rec.Nonce); err != nil {
		return fmt.Errorf("state: updating account: %w", err)
	}
	if err := m.tree.Update(acc.Index, acc.Leaf(m.hasher)); err != nil {
		return fmt.Errorf("state: updating tree leaf: %w", err)
	}

	m.byPubkey[acc.Pubkey] = acc
	m.byIndex[acc.Index] = acc
	return nil
}

// MaterializeAccount creates the local account record for a
// recognized deposit and writes the account-style leaf
// H3(pubkey, amount, 0) at index, whether or not that position already
// holds a leaf (sync calls it without first writing the raw
// commitment there). This realizes DESIGN.md Open Question 1's
// resolution. If an account for pubkey already exists it is returned
// unchanged.
func (m *Manager) MaterializeAccount(ctx context.Context, pubkey field.F, index uint64, amount *big.Int) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byPubkey[pubkey]; ok {
		return existing, nil
	}

	acc := account.NewWithBalance(pubkey, amount, index)
	if err := m.store.CreateAccount(ctx, toAccountRecord(acc)); err != nil {
		return nil, fmt.Errorf("state: persisting materialized account: %w", err)
	}
	if err := m.tree.Update(index, acc.Leaf(m.hasher)); err != nil {
		return nil, fmt.Errorf("state: updating materialized leaf: %w", err)
	}
	m.byPubkey[pubkey] = acc
	m.byIndex[index] = acc
	return acc, nil
}

// InsertLeaf appends a raw leaf (an opaque deposit commitment not yet
// tied to a local account) at the current leaf_count.
func (m *Manager) InsertLeaf(leaf field.F) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Insert(leaf)
}

// UpdateLeaf overwrites the leaf at index directly — used by sync to
// write raw leaves (snapshot leaves, and deposit commitments at an
// index the tree already covers).
func (m *Manager) UpdateLeaf(index uint64, leaf field.F) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Update(index, leaf)
}

// LeafCount returns the tree's current leaf count.
func (m *Manager) LeafCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.LeafCount()
}

// Root returns the tree's current root.
func (m *Manager) Root() field.F {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Root()
}

// EmptyHash exposes E[level] for callers assembling gap-fill leaves.
func (m *Manager) EmptyHash(level int) field.F {
	return m.tree.EmptyHash(level)
}

// GetMerkleProof returns the sibling path for index.
func (m *Manager) GetMerkleProof(index uint64) (merkle.Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Proof(index)
}

// IsNullifierUsed reports whether nullifier has already been spent.
func (m *Manager) IsNullifierUsed(nullifier field.F) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, used := m.nullifiers[field.ToBytes(nullifier)]
	return used
}

// MarkNullifierUsed records a spend. Re-insertion of an already-used
// nullifier returns ErrNullifierUsed.
func (m *Manager) MarkNullifierUsed(ctx context.Context, nullifier field.F) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markNullifierUsedLocked(ctx, nullifier)
}

func (m *Manager) markNullifierUsedLocked(ctx context.Context, nullifier field.F) error {
	key := field.ToBytes(nullifier)
	if _, used := m.nullifiers[key]; used {
		return corerr.ErrNullifierUsed
	}
	if err := m.store.MarkNullifierUsed(ctx, key); err != nil {
		return err
	}
	m.nullifiers[key] = struct{}{}
	return nil
}

// Spend performs the ordered pair of effects a debit must produce
// (spec.md §5 ordering guarantee): (i) debit the account and update
// its tree leaf, (ii) mark the nullifier used. A crash between the
// two steps is safe to resync: balance already reflects the spend,
// and re-marking the nullifier on resync is idempotent by
// ErrNullifierUsed being treated as already-applied by callers.
func (m *Manager) Spend(ctx context.Context, acc *account.Account, amount *big.Int, nullifier field.F) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !acc.HasBalance(amount) {
		return fmt.Errorf("state: insufficient balance: %w", corerr.ErrInvalidInput)
	}
	if !acc.Debit(amount) {
		return fmt.Errorf("state: debit failed unexpectedly: %w", corerr.ErrInvalidInput)
	}
	if err := m.updateAccountLocked(ctx, acc); err != nil {
		return err
	}
	return m.markNullifierUsedLocked(ctx, nullifier)
}

// Credit applies a recognized deposit to acc and persists it.
func (m *Manager) Credit(ctx context.Context, acc *account.Account, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc.Credit(amount)
	return m.updateAccountLocked(ctx, acc)
}

// GetSyncCheckpoint reads the last fully-processed block height.
func (m *Manager) GetSyncCheckpoint(ctx context.Context) (uint64, bool, error) {
	return m.store.GetSyncCheckpoint(ctx)
}

// SetSyncCheckpoint advances the sync checkpoint.
func (m *Manager) SetSyncCheckpoint(ctx context.Context, block uint64) error {
	return m.store.SetSyncCheckpoint(ctx, block)
}

// RecordTransaction appends a journal entry for display purposes; the
// journal is never consulted by protocol rules (spec.md §3).
func (m *Manager) RecordTransaction(ctx context.Context, entry JournalEntry) error {
	if entry.ID == ([16]byte{}) {
		id := uuid.New()
		entry.ID = [16]byte(id)
	}
	return m.store.AppendTransaction(ctx, entry)
}

// MarkTransferConfirmed resolves an optimistic local transfer once an
// out-of-scope relayer reports on-chain settlement (spec.md §9 Open
// Question 2).
func (m *Manager) MarkTransferConfirmed(ctx context.Context, nullifier field.F) error {
	return m.store.UpdateTransactionStatusByNullifier(ctx, field.ToBytes(nullifier), StatusConfirmed)
}

// RollbackTransfer reverts an optimistic local transfer that the
// relayer reports as failed. The nullifier is freed for reuse since no
// on-chain spend occurred; the tree leaf itself is left as the debited
// state and must be corrected by a subsequent, explicit credit from
// the caller — this engine does not infer the reversal amount itself
// because it has no record of the rolled-back amount once the journal
// entry's status changes underfoot of a live sync.
func (m *Manager) RollbackTransfer(ctx context.Context, nullifier field.F) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := field.ToBytes(nullifier)
	if err := m.store.UnmarkNullifierUsed(ctx, key); err != nil {
		return fmt.Errorf("state: rolling back nullifier: %w", err)
	}
	delete(m.nullifiers, key)
	return m.store.UpdateTransactionStatusByNullifier(ctx, key, StatusFailed)
}

func toAccountRecord(acc *account.Account) AccountRecord {
	rec := AccountRecord{
		Pubkey:    field.ToBytes(acc.Pubkey),
		Nonce:     acc.Nonce,
		LeafIndex: acc.Index,
	}
	copy(rec.BalanceLE[:], reverseBytes(padTo16(acc.Balance.Bytes())))
	return rec
}

// padTo16 left-pads (big-endian) a byte slice to 16 bytes.
func padTo16(b []byte) []byte {
	if len(b) >= 16 {
		return b[len(b)-16:]
	}
	out := make([]byte, 16)
	copy(out[16-len(b):], b)
	return out
}

// reverseBytes returns a reversed copy, used to convert between the
// schema's little-endian balance encoding and big.Int's big-endian
// byte representation.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
