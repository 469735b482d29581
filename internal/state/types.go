package state

import "time"

// TransactionType tags the kind of local activity recorded in the
// journal (spec.md §3's "kind"), expressed as a small Go enum per
// original_source's transaction.rs rather than a free string.
type TransactionType uint8

const (
	TransactionDeposit TransactionType = iota
	TransactionTransfer
	TransactionWithdraw
)

func (t TransactionType) String() string {
	switch t {
	case TransactionDeposit:
		return "deposit"
	case TransactionTransfer:
		return "transfer"
	case TransactionWithdraw:
		return "withdraw"
	default:
		return "unknown"
	}
}

// TransactionStatus tags the lifecycle state of a journal entry
// (spec.md §9's "small enumeration").
type TransactionStatus uint8

const (
	StatusPending TransactionStatus = iota
	StatusProven
	StatusSubmitted
	StatusConfirmed
	StatusFailed
)

func (s TransactionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProven:
		return "proven"
	case StatusSubmitted:
		return "submitted"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JournalEntry is one row of the append-only transactions table.
// Amount, TxHash and Recipient carry the fields the schema's `data`
// JSON column holds (spec.md §6): amount as a decimal string, an
// optional tx hash, and an optional counterparty descriptor.
type JournalEntry struct {
	ID         [16]byte // UUID bytes
	Type       TransactionType
	Nullifier  *[32]byte
	Amount     string // decimal string, arbitrary precision
	TxHash     string // hex, may be empty
	Recipient  string // opaque counterparty descriptor, may be empty
	Status     TransactionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AccountRecord is the durable row shape for the accounts table.
type AccountRecord struct {
	Pubkey    [32]byte
	BalanceLE [16]byte
	Nonce     uint64
	LeafIndex uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}
