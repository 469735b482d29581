// Package corerr defines the sentinel errors shared across the
// engine, matching the error taxonomy in spec.md §7. Call sites wrap
// one of these with context via fmt.Errorf("...: %w", err) and callers
// discriminate with errors.Is, the same pattern the teacher uses in
// pkg/common/utils.go and internal/storage/postgres.go.
package corerr

import "errors"

var (
	// ErrInvalidInput covers malformed hex, wrong Merkle path length,
	// unparseable addresses, and amounts exceeding a holder's balance.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound covers an account lookup miss where one is required.
	ErrNotFound = errors.New("not found")

	// ErrNullifierUsed covers re-insertion into the nullifier set.
	ErrNullifierUsed = errors.New("nullifier already used")

	// ErrInvalidMerkleProof covers a verification failure.
	ErrInvalidMerkleProof = errors.New("invalid merkle proof")

	// ErrTreeFull covers a tree at capacity.
	ErrTreeFull = errors.New("merkle tree is full")

	// ErrStorage covers an underlying durable store failure.
	ErrStorage = errors.New("storage error")

	// ErrNetwork covers a chain or indexer transport error.
	ErrNetwork = errors.New("network error")

	// ErrProverFailure covers an opaque failure from the external prover.
	ErrProverFailure = errors.New("prover failure")

	// ErrStateMismatch covers a local root disagreeing with the
	// authoritative on-chain or snapshot root at the end of a sync.
	ErrStateMismatch = errors.New("state mismatch")
)
