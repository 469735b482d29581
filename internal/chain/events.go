// Package chain defines the wire shapes and reader contract the sync
// protocol (internal/sync) consumes, and a concrete go-ethereum-backed
// implementation of that contract. The on-chain VeilocityVault
// contract itself is an out-of-scope external collaborator
// (spec.md §1); this package only describes and decodes its events.
package chain

import "math/big"

// DepositEvent mirrors VeilocityVault's Deposit event:
// event Deposit(bytes32 indexed commitment, uint256 amount, uint256 leafIndex, uint256 timestamp).
type DepositEvent struct {
	Commitment  [32]byte
	Amount      *big.Int
	LeafIndex   uint64
	Timestamp   uint64
	BlockNumber uint64
	TxHash      [32]byte
}

// WithdrawalEvent mirrors VeilocityVault's Withdrawal event:
// event Withdrawal(bytes32 indexed nullifier, address indexed recipient, uint256 amount).
type WithdrawalEvent struct {
	Nullifier   [32]byte
	Recipient   [20]byte
	Amount      *big.Int
	BlockNumber uint64
	TxHash      [32]byte
}

// RootUpdatedEvent mirrors VeilocityVault's StateRootUpdated event:
// event StateRootUpdated(bytes32 indexed oldRoot, bytes32 indexed newRoot, uint256 batchIndex, uint256 timestamp).
// It is informational only (spec.md §4.5).
type RootUpdatedEvent struct {
	OldRoot     [32]byte
	NewRoot     [32]byte
	BatchIndex  uint64
	Timestamp   uint64
	BlockNumber uint64
	TxHash      [32]byte
}

// EventKind tags which payload an Event carries. A tagged-union-via-
// struct, in the teacher's idiom (pkg/types/transaction.go's
// DisclosureType-tagged Disclosure) rather than an interface type
// switch, since the three shapes are fixed and small in number.
type EventKind uint8

const (
	EventKindDeposit EventKind = iota
	EventKindWithdrawal
	EventKindRootUpdated
)

// Event is one decoded on-chain log, carrying exactly one populated
// payload selected by Kind. LogIndex orders events within a block so
// batches can be sorted into strict on-chain order (spec.md §4.5).
type Event struct {
	Kind        EventKind
	Deposit     DepositEvent
	Withdrawal  WithdrawalEvent
	RootUpdated RootUpdatedEvent
	BlockNumber uint64
	LogIndex    uint
}

// ByOnChainOrder sorts events by block number, then log index within
// the block — the strict on-chain order spec.md §4.5 requires batches
// to be applied in.
type ByOnChainOrder []Event

func (e ByOnChainOrder) Len() int { return len(e) }
func (e ByOnChainOrder) Less(i, j int) bool {
	if e[i].BlockNumber != e[j].BlockNumber {
		return e[i].BlockNumber < e[j].BlockNumber
	}
	return e[i].LogIndex < e[j].LogIndex
}
func (e ByOnChainOrder) Swap(i, j int) { e[i], e[j] = e[j], e[i] }
