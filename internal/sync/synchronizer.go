package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/abhirupinspace/veilocity/internal/account"
	"github.com/abhirupinspace/veilocity/internal/chain"
	"github.com/abhirupinspace/veilocity/internal/corerr"
	"github.com/abhirupinspace/veilocity/internal/field"
	"github.com/abhirupinspace/veilocity/internal/state"
)

// DefaultBatchSize is the number of blocks fetched per Events call on
// the log-scan path, matching original_source's indexer.rs batch size
// (its sync.rs uses 10000).
const DefaultBatchSize = 9000

// DefaultWatchInterval is how often Watch polls for new blocks.
const DefaultWatchInterval = 2 * time.Second

// Synchronizer drives local reconstruction of the Manager's state from
// the chain (spec.md §4.5). It owns no state of its own beyond its
// collaborators; every call it makes into Manager is a short, already
// lock-guarded operation, keeping chain/indexer I/O outside Manager's
// lock (spec.md §5).
type Synchronizer struct {
	manager         *state.Manager
	reader          chain.Reader
	snapshotSource  SnapshotSource
	secret          account.Secret
	hasher          *field.Hasher
	log             *slog.Logger
	deploymentBlock uint64
	batchSize       uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithSnapshotSource enables the snapshot sync path.
func WithSnapshotSource(src SnapshotSource) Option {
	return func(s *Synchronizer) { s.snapshotSource = src }
}

// WithDeploymentBlock sets the floor below which log-scan never
// searches, since no vault events can exist before the contract was
// deployed.
func WithDeploymentBlock(block uint64) Option {
	return func(s *Synchronizer) { s.deploymentBlock = block }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n uint64) Option {
	return func(s *Synchronizer) { s.batchSize = n }
}

// New builds a Synchronizer over manager, using reader for the
// log-scan path and secret to recognize ownership of deposits.
func New(manager *state.Manager, reader chain.Reader, secret account.Secret, hasher *field.Hasher, log *slog.Logger, opts ...Option) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	s := &Synchronizer{
		manager:   manager,
		reader:    reader,
		secret:    secret,
		hasher:    hasher,
		log:       log,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncViaSnapshot reconstructs local state from the indexer's single
// consolidated snapshot (spec.md §4.5's snapshot path), then verifies
// the resulting root against the snapshot's reported root. A mismatch
// is reported as ErrStateMismatch but is not fatal — callers may fall
// back to SyncViaLogs.
func (s *Synchronizer) SyncViaSnapshot(ctx context.Context) error {
	if s.snapshotSource == nil {
		return fmt.Errorf("sync: no snapshot source configured: %w", corerr.ErrInvalidInput)
	}

	snap, err := s.snapshotSource.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("sync: fetching snapshot: %w", err)
	}
	deposits, err := s.snapshotSource.FetchDeposits(ctx)
	if err != nil {
		return fmt.Errorf("sync: fetching deposits: %w", err)
	}
	byIndex := make(map[uint64]IndexedDeposit, len(deposits))
	for _, d := range deposits {
		byIndex[d.LeafIndex] = d
	}

	for idx, leaf := range snap.Leaves {
		index := uint64(idx)
		if acc, ok := s.manager.GetAccountByIndex(index); ok {
			_ = acc
			continue
		}

		deposit, known := byIndex[index]
		if !known {
			if err := s.manager.UpdateLeaf(index, field.FromBytes(leaf[:])); err != nil {
				return fmt.Errorf("sync: writing raw leaf %d: %w", index, err)
			}
			continue
		}

		if err := s.recognizeOrStore(ctx, index, deposit.Commitment, deposit.AmountWei); err != nil {
			return err
		}
	}

	for _, n := range snap.Nullifiers {
		if !s.manager.IsNullifierUsed(field.FromBytes(n[:])) {
			if err := s.manager.MarkNullifierUsed(ctx, field.FromBytes(n[:])); err != nil && !errors.Is(err, corerr.ErrNullifierUsed) {
				return fmt.Errorf("sync: marking nullifier from snapshot: %w", err)
			}
		}
	}

	if err := s.manager.SetSyncCheckpoint(ctx, snap.LastBlock); err != nil {
		return fmt.Errorf("sync: setting checkpoint: %w", err)
	}

	if field.ToBytes(s.manager.Root()) != snap.StateRoot {
		s.log.Warn("local root diverges from snapshot root after sync", "block", snap.LastBlock)
		return corerr.ErrStateMismatch
	}
	return nil
}

// SyncViaLogs reconstructs local state by scanning on-chain events in
// batches from the last checkpoint (or the deployment block, whichever
// is later) to the current head (spec.md §4.5's log-scan path).
func (s *Synchronizer) SyncViaLogs(ctx context.Context) error {
	checkpoint, ok, err := s.manager.GetSyncCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("sync: reading checkpoint: %w", err)
	}
	from := s.deploymentBlock
	if ok && checkpoint+1 > from {
		from = checkpoint + 1
	}

	head, err := s.reader.HeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("sync: reading head block: %w", err)
	}

	batch := s.batchSize
	if batch == 0 {
		batch = DefaultBatchSize
	}

	for from <= head {
		to := from + batch - 1
		if to > head {
			to = head
		}

		events, err := s.reader.Events(ctx, from, to)
		if err != nil {
			return fmt.Errorf("sync: fetching events [%d,%d]: %w", from, to, err)
		}
		for _, ev := range events {
			if err := s.applyEvent(ctx, ev); err != nil {
				return err
			}
		}

		if err := s.manager.SetSyncCheckpoint(ctx, to); err != nil {
			return fmt.Errorf("sync: advancing checkpoint to %d: %w", to, err)
		}
		from = to + 1
	}

	remoteRoot, err := s.reader.CurrentRoot(ctx)
	if err != nil {
		return fmt.Errorf("sync: reading remote root: %w", err)
	}
	if field.ToBytes(s.manager.Root()) != remoteRoot {
		s.log.Warn("local root diverges from chain root after log sync", "head", head)
		return corerr.ErrStateMismatch
	}
	return nil
}

func (s *Synchronizer) applyEvent(ctx context.Context, ev chain.Event) error {
	switch ev.Kind {
	case chain.EventKindDeposit:
		return s.processDeposit(ctx, ev.Deposit)
	case chain.EventKindWithdrawal:
		// Record the withdrawal's nullifier unless a local spend or an
		// earlier sync already did, so replays stay idempotent.
		nullifier := field.FromBytes(ev.Withdrawal.Nullifier[:])
		if s.manager.IsNullifierUsed(nullifier) {
			return nil
		}
		if err := s.manager.MarkNullifierUsed(ctx, nullifier); err != nil && !errors.Is(err, corerr.ErrNullifierUsed) {
			return fmt.Errorf("sync: marking withdrawal nullifier: %w", err)
		}
		return nil
	case chain.EventKindRootUpdated:
		// Informational only (spec.md §4.5).
		return nil
	default:
		return fmt.Errorf("sync: unrecognized event kind %d", ev.Kind)
	}
}

// processDeposit implements the per-deposit algorithm spec.md §4.5 and
// original_source's sync.rs::process_deposit_event describe: gap-fill
// any skipped indices with the empty leaf, skip indices already
// materialized locally (idempotent re-sync), and otherwise recognize
// ownership by recomputing the deposit commitment against the local
// secret.
func (s *Synchronizer) processDeposit(ctx context.Context, ev chain.DepositEvent) error {
	current := s.manager.LeafCount()
	if ev.LeafIndex < current {
		// Already processed in a prior sync.
		return nil
	}
	if ev.LeafIndex > current {
		s.log.Warn("deposit skips leaf indices, gap-filling with empty leaves", "leaf_count", current, "leaf_index", ev.LeafIndex)
	}
	for gap := current; gap < ev.LeafIndex; gap++ {
		if err := s.gapFillOrInsert(ctx, gap); err != nil {
			return err
		}
	}
	return s.recognizeOrStore(ctx, ev.LeafIndex, ev.Commitment, ev.Amount)
}

func (s *Synchronizer) gapFillOrInsert(ctx context.Context, index uint64) error {
	if index < s.manager.LeafCount() {
		return nil
	}
	if _, err := s.manager.InsertLeaf(s.manager.EmptyHash(0)); err != nil {
		return fmt.Errorf("sync: gap-filling index %d: %w", index, err)
	}
	return nil
}

// recognizeOrStore inserts (or overwrites, on the snapshot path) the
// leaf at index. If the commitment matches what the local secret would
// have produced for amount and the holder has no account yet, the leaf
// is the account-style leaf of a newly materialized account
// (DESIGN.md Open Question 1). If the holder already has an account,
// amount is credited to it (rewriting the leaf at the account's own
// index) and index keeps the raw commitment, as every foreign deposit
// does.
func (s *Synchronizer) recognizeOrStore(ctx context.Context, index uint64, commitment [32]byte, amount *big.Int) error {
	expected := field.ToBytes(s.secret.DepositCommitment(amount))
	if expected == commitment {
		pubkey := s.secret.Pubkey()
		existing, ok := s.manager.GetAccount(pubkey)
		if !ok {
			_, err := s.manager.MaterializeAccount(ctx, pubkey, index, amount)
			return err
		}
		existing.Credit(amount)
		if err := s.manager.UpdateAccount(ctx, existing); err != nil {
			return err
		}
	}

	if index < s.manager.LeafCount() {
		return s.manager.UpdateLeaf(index, field.FromBytes(commitment[:]))
	}
	_, err := s.manager.InsertLeaf(field.FromBytes(commitment[:]))
	return err
}

// Watch polls the log-scan path every interval until ctx is canceled.
// A zero interval uses DefaultWatchInterval. Errors are logged and do
// not stop the loop, since a single bad poll (e.g. a transient RPC
// failure) should not take down a long-running daemon.
func (s *Synchronizer) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SyncViaLogs(ctx); err != nil && !errors.Is(err, corerr.ErrStateMismatch) {
				s.log.Error("watch poll failed", "error", err)
			}
		}
	}
}
