package chain

import (
	"context"
	"math/big"
)

// Reader is the chain-reading contract sync's log-scan path depends
// on (spec.md §4.5 "Inputs"): current head, current on-chain state, and
// batched event queries in on-chain order. EthReader is the concrete
// go-ethereum-backed implementation; tests use an in-memory fake.
type Reader interface {
	HeadBlock(ctx context.Context) (uint64, error)
	CurrentRoot(ctx context.Context) ([32]byte, error)
	DepositCount(ctx context.Context) (uint64, error)
	TotalValueLocked(ctx context.Context) (*big.Int, error)

	// Events returns every Deposit, Withdrawal, and StateRootUpdated
	// event in [from, to], sorted by ByOnChainOrder.
	Events(ctx context.Context, from, to uint64) ([]Event, error)
}
