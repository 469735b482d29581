package sync

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/abhirupinspace/veilocity/internal/account"
	"github.com/abhirupinspace/veilocity/internal/chain"
	"github.com/abhirupinspace/veilocity/internal/corerr"
	"github.com/abhirupinspace/veilocity/internal/field"
	"github.com/abhirupinspace/veilocity/internal/keyderiv"
	"github.com/abhirupinspace/veilocity/internal/merkle"
	"github.com/abhirupinspace/veilocity/internal/state"
)

// fakeSnapshotSource is an in-memory SnapshotSource for tests, playing
// the role fakeReader plays for the log-scan path.
type fakeSnapshotSource struct {
	snap     *Snapshot
	deposits []IndexedDeposit
}

func (f *fakeSnapshotSource) FetchHealth(context.Context) (*Health, error) { return &Health{}, nil }
func (f *fakeSnapshotSource) FetchSnapshot(context.Context) (*Snapshot, error) {
	return f.snap, nil
}
func (f *fakeSnapshotSource) FetchDeposits(context.Context) ([]IndexedDeposit, error) {
	return f.deposits, nil
}
func (f *fakeSnapshotSource) FetchWithdrawals(context.Context) ([]IndexedWithdrawal, error) {
	return nil, nil
}

// fakeReader is an in-memory chain.Reader for tests, playing the role
// the teacher's in-memory stores play for storage interfaces.
type fakeReader struct {
	head   uint64
	root   [32]byte
	events []chain.Event
}

func (f *fakeReader) HeadBlock(context.Context) (uint64, error) { return f.head, nil }
func (f *fakeReader) CurrentRoot(context.Context) ([32]byte, error) {
	return f.root, nil
}
func (f *fakeReader) DepositCount(context.Context) (uint64, error) { return uint64(len(f.events)), nil }
func (f *fakeReader) TotalValueLocked(context.Context) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeReader) Events(_ context.Context, from, to uint64) ([]chain.Event, error) {
	out := make([]chain.Event, 0)
	for _, ev := range f.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func newManager(t *testing.T) *state.Manager {
	t.Helper()
	m, err := state.Open(context.Background(), state.NewMemoryStore(), field.NewHasher(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func newSecret(t *testing.T) account.Secret {
	t.Helper()
	raw, err := keyderiv.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return account.NewSecret(raw, field.NewHasher())
}

func depositEvent(block uint64, leafIndex uint64, commitment field.F, amount *big.Int) chain.Event {
	ev := chain.Event{
		Kind:        chain.EventKindDeposit,
		BlockNumber: block,
		Deposit: chain.DepositEvent{
			Amount:      amount,
			LeafIndex:   leafIndex,
			BlockNumber: block,
		},
	}
	ev.Deposit.Commitment = field.ToBytes(commitment)
	return ev
}

func TestSyncRecognizesOwnDeposit(t *testing.T) {
	m := newManager(t)
	secret := newSecret(t)
	amount := big.NewInt(5_000_000)
	commitment := secret.DepositCommitment(amount)

	reader := &fakeReader{
		head:   10,
		root:   field.ToBytes(field.Zero()),
		events: []chain.Event{depositEvent(1, 0, commitment, amount)},
	}
	s := New(m, reader, secret, field.NewHasher(), nil, WithBatchSize(100))

	err := s.SyncViaLogs(context.Background())
	if err != nil && !errors.Is(err, corerr.ErrStateMismatch) {
		t.Fatalf("SyncViaLogs: %v", err)
	}

	acc, ok := m.GetAccount(secret.Pubkey())
	if !ok {
		t.Fatal("expected account to be materialized")
	}
	if acc.Balance.Cmp(amount) != 0 {
		t.Fatalf("balance = %s, want %s", acc.Balance, amount)
	}
	if m.LeafCount() != 1 {
		t.Fatalf("leaf count = %d, want 1", m.LeafCount())
	}
}

func TestSyncIgnoresForeignDeposit(t *testing.T) {
	m := newManager(t)
	secret := newSecret(t)
	other := newSecret(t)
	amount := big.NewInt(1_000)
	foreignCommitment := other.DepositCommitment(amount)

	reader := &fakeReader{
		head:   5,
		root:   field.ToBytes(field.Zero()),
		events: []chain.Event{depositEvent(1, 0, foreignCommitment, amount)},
	}
	s := New(m, reader, secret, field.NewHasher(), nil, WithBatchSize(100))

	_ = s.SyncViaLogs(context.Background())

	if _, ok := m.GetAccount(secret.Pubkey()); ok {
		t.Fatal("local secret should not recognize a foreign deposit")
	}
	if m.LeafCount() != 1 {
		t.Fatalf("leaf count = %d, want 1 (raw commitment stored)", m.LeafCount())
	}
}

func TestSyncGapFillsSkippedIndices(t *testing.T) {
	m := newManager(t)
	secret := newSecret(t)
	amount := big.NewInt(42)
	commitment := secret.DepositCommitment(amount)

	reader := &fakeReader{
		head:   5,
		root:   field.ToBytes(field.Zero()),
		events: []chain.Event{depositEvent(1, 3, commitment, amount)},
	}
	s := New(m, reader, secret, field.NewHasher(), nil, WithBatchSize(100))

	_ = s.SyncViaLogs(context.Background())

	if m.LeafCount() != 4 {
		t.Fatalf("leaf count = %d, want 4 (3 gap-filled + 1 real)", m.LeafCount())
	}
	acc, ok := m.GetAccountByIndex(3)
	if !ok || acc.Balance.Cmp(amount) != 0 {
		t.Fatal("expected recognized deposit materialized at gap-filled index 3")
	}
}

func TestSyncIsIdempotentAcrossReruns(t *testing.T) {
	m := newManager(t)
	secret := newSecret(t)
	amount := big.NewInt(7)
	commitment := secret.DepositCommitment(amount)

	reader := &fakeReader{
		head:   5,
		root:   field.ToBytes(field.Zero()),
		events: []chain.Event{depositEvent(1, 0, commitment, amount)},
	}
	s := New(m, reader, secret, field.NewHasher(), nil, WithBatchSize(100))

	_ = s.SyncViaLogs(context.Background())
	firstCount := m.LeafCount()
	firstBalance := new(big.Int)
	if acc, ok := m.GetAccount(secret.Pubkey()); ok {
		firstBalance.Set(acc.Balance)
	}

	// Reset the checkpoint so the second call re-scans block 1 and
	// re-presents the same deposit event to processDeposit, actually
	// exercising its ev.LeafIndex < current skip guard rather than
	// simply never revisiting the range.
	if err := m.SetSyncCheckpoint(context.Background(), 0); err != nil {
		t.Fatalf("SetSyncCheckpoint: %v", err)
	}
	reader.head = 10
	_ = s.SyncViaLogs(context.Background())

	if m.LeafCount() != firstCount {
		t.Fatalf("leaf count changed across idempotent resync: %d -> %d", firstCount, m.LeafCount())
	}
	acc, _ := m.GetAccount(secret.Pubkey())
	if acc.Balance.Cmp(firstBalance) != 0 {
		t.Fatalf("balance changed across idempotent resync: %s -> %s", firstBalance, acc.Balance)
	}
}

func TestSyncViaSnapshotAppliesLeavesNullifiersAndCheckpoint(t *testing.T) {
	m := newManager(t)
	secret := newSecret(t)
	amount := big.NewInt(9_000)
	commitment := secret.DepositCommitment(amount)

	foreignLeaf := field.FromUint64(123)
	nullifier := field.FromUint64(456)

	// Independently compute the expected root via a scratch tree fed
	// the same leaves SyncViaSnapshot will end up writing, rather than
	// hand-computing a Poseidon value. Index 0 is owned, so it
	// materializes into the account-style leaf H3(pubkey, balance,
	// nonce) rather than staying the raw commitment (DESIGN.md Open
	// Question 1); index 1 is unowned and keeps the raw leaf.
	accountLeaf := account.NewWithBalance(secret.Pubkey(), amount, 0).Leaf(field.NewHasher())
	scratch := merkle.New(merkle.NewMemoryStore(), field.NewHasher())
	if _, err := scratch.Insert(accountLeaf); err != nil {
		t.Fatalf("scratch Insert: %v", err)
	}
	if _, err := scratch.Insert(foreignLeaf); err != nil {
		t.Fatalf("scratch Insert: %v", err)
	}
	wantRoot := scratch.Root()

	snap := &Snapshot{
		StateRoot:  field.ToBytes(wantRoot),
		Leaves:     [][32]byte{field.ToBytes(commitment), field.ToBytes(foreignLeaf)},
		Nullifiers: [][32]byte{field.ToBytes(nullifier)},
		LastBlock:  100,
	}
	deposits := []IndexedDeposit{
		{Commitment: field.ToBytes(commitment), AmountWei: amount, LeafIndex: 0, BlockNumber: 1},
	}
	src := &fakeSnapshotSource{snap: snap, deposits: deposits}

	reader := &fakeReader{head: 0, root: field.ToBytes(field.Zero())}
	s := New(m, reader, secret, field.NewHasher(), nil, WithSnapshotSource(src))

	if err := s.SyncViaSnapshot(context.Background()); err != nil {
		t.Fatalf("SyncViaSnapshot: %v", err)
	}

	if m.LeafCount() != 2 {
		t.Fatalf("leaf count = %d, want 2", m.LeafCount())
	}
	acc, ok := m.GetAccount(secret.Pubkey())
	if !ok || acc.Balance.Cmp(amount) != 0 {
		t.Fatal("expected owned snapshot leaf to materialize an account")
	}
	if !m.IsNullifierUsed(nullifier) {
		t.Fatal("expected snapshot nullifier to be marked used")
	}
	checkpoint, ok, err := m.GetSyncCheckpoint(context.Background())
	if err != nil {
		t.Fatalf("GetSyncCheckpoint: %v", err)
	}
	if !ok || checkpoint != 100 {
		t.Fatalf("checkpoint = %d, %v, want 100, true", checkpoint, ok)
	}
	if !field.Equal(m.Root(), wantRoot) {
		t.Fatal("local root does not match the root reconstructed from the snapshot leaves")
	}
}

func TestSyncViaSnapshotReportsRootMismatch(t *testing.T) {
	m := newManager(t)
	secret := newSecret(t)

	leaf := field.FromUint64(7)
	var wrongRoot [32]byte
	for i := range wrongRoot {
		wrongRoot[i] = 0xff
	}

	snap := &Snapshot{
		StateRoot: wrongRoot,
		Leaves:    [][32]byte{field.ToBytes(leaf)},
		LastBlock: 50,
	}
	src := &fakeSnapshotSource{snap: snap}

	reader := &fakeReader{head: 0, root: field.ToBytes(field.Zero())}
	s := New(m, reader, secret, field.NewHasher(), nil, WithSnapshotSource(src))

	err := s.SyncViaSnapshot(context.Background())
	if !errors.Is(err, corerr.ErrStateMismatch) {
		t.Fatalf("SyncViaSnapshot error = %v, want ErrStateMismatch", err)
	}

	// Leaves and the checkpoint are still applied; the root check runs
	// last and does not roll anything back.
	if m.LeafCount() != 1 {
		t.Fatalf("leaf count = %d, want 1 despite root mismatch", m.LeafCount())
	}
	checkpoint, ok, err := m.GetSyncCheckpoint(context.Background())
	if err != nil {
		t.Fatalf("GetSyncCheckpoint: %v", err)
	}
	if !ok || checkpoint != 50 {
		t.Fatalf("checkpoint = %d, %v, want 50, true despite root mismatch", checkpoint, ok)
	}
}
