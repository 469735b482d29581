package state

import "context"

// Store is the durable persistence seam the Manager drives. It is
// satisfied by PostgresStore (the production backend, grounded on the
// teacher's internal/storage/postgres.go) and by the in-memory fake
// used in tests, mirroring the teacher's pattern of a small storage
// interface with a real and an in-memory implementation
// (internal/zkp/merkle.go's TreeStore / internal/zkp/nullifier.go's
// NullifierStore).
type Store interface {
	CreateAccount(ctx context.Context, rec AccountRecord) error
	GetAccountByPubkey(ctx context.Context, pubkey [32]byte) (*AccountRecord, error)
	UpdateAccount(ctx context.Context, pubkey [32]byte, balanceLE [16]byte, nonce uint64) error
	ListAccountsByIndexAsc(ctx context.Context) ([]AccountRecord, error)

	IsNullifierUsed(ctx context.Context, nullifier [32]byte) (bool, error)
	MarkNullifierUsed(ctx context.Context, nullifier [32]byte) error
	UnmarkNullifierUsed(ctx context.Context, nullifier [32]byte) error
	ListNullifiers(ctx context.Context) ([][32]byte, error)

	GetSyncCheckpoint(ctx context.Context) (uint64, bool, error)
	SetSyncCheckpoint(ctx context.Context, block uint64) error

	AppendTransaction(ctx context.Context, entry JournalEntry) error
	UpdateTransactionStatusByNullifier(ctx context.Context, nullifier [32]byte, status TransactionStatus) error
}
