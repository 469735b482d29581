// Package account implements the note/account model: the deterministic
// derivations a holder's secret produces, and the credit/debit
// lifecycle of a materialized account record (spec.md §4.3).
package account

import (
	"math/big"

	"github.com/abhirupinspace/veilocity/internal/field"
)

// Secret wraps a holder's BN254 scalar secret and the hasher needed to
// derive values from it. It is the Go analogue of AccountSecret in
// the original implementation.
type Secret struct {
	Value  field.F
	hasher *field.Hasher
}

// NewSecret wraps an existing scalar. Use keyderiv.Generate or
// keyderiv.FromSeed to produce s.
func NewSecret(s field.F, hasher *field.Hasher) Secret {
	return Secret{Value: s, hasher: hasher}
}

// Pubkey derives pubkey = H1(secret).
func (s Secret) Pubkey() field.F {
	return s.hasher.DerivePubkey(s.Value)
}

// Nullifier derives nullifier = H3(secret, index, nonce).
func (s Secret) Nullifier(index, nonce uint64) field.F {
	return s.hasher.ComputeNullifier(s.Value, field.FromUint64(index), field.FromUint64(nonce))
}

// DepositCommitment derives commitment = H2(secret, amount).
func (s Secret) DepositCommitment(amount *big.Int) field.F {
	return s.hasher.ComputeDepositCommitment(s.Value, field.FromUint128(amount))
}

// Account is a materialized note: a holder's current balance, spend
// counter, and position in the global tree (spec.md §3). Balance is
// held as *big.Int since Go has no native 128-bit integer and the
// protocol's balances are u128-bounded.
type Account struct {
	Pubkey  field.F
	Balance *big.Int
	Nonce   uint64
	Index   uint64
}

// New creates a fresh, zero-balance account for pubkey at index.
func New(pubkey field.F, index uint64) *Account {
	return &Account{Pubkey: pubkey, Balance: new(big.Int), Nonce: 0, Index: index}
}

// NewWithBalance creates an account pre-seeded with a balance, the
// shape a recognized deposit produces (nonce 0).
func NewWithBalance(pubkey field.F, balance *big.Int, index uint64) *Account {
	return &Account{Pubkey: pubkey, Balance: new(big.Int).Set(balance), Nonce: 0, Index: index}
}

// Leaf computes leaf = H3(pubkey, balance, nonce) for the account's
// current state.
func (a *Account) Leaf(hasher *field.Hasher) field.F {
	return hasher.ComputeLeaf(a.Pubkey, field.FromUint128(a.Balance), field.FromUint64(a.Nonce))
}

// u128Max is the inclusive upper bound a balance may ever reach.
var u128Max = func() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	return max.Sub(max, big.NewInt(1))
}()

// Credit performs a saturating addition into balance; nonce is
// unchanged (spec.md §4.3). Saturation caps at 2^128-1 rather than
// wrapping, since wei balances can never legitimately exceed it.
func (a *Account) Credit(amount *big.Int) {
	sum := new(big.Int).Add(a.Balance, amount)
	if sum.Cmp(u128Max) > 0 {
		sum = new(big.Int).Set(u128Max)
	}
	a.Balance = sum
}

// Debit subtracts amount and increments nonce iff balance >= amount;
// otherwise it is a no-op returning false. Debit is the only
// operation that advances nonce, which is why repeated debits yield
// distinct nullifiers.
func (a *Account) Debit(amount *big.Int) bool {
	if a.Balance.Cmp(amount) < 0 {
		return false
	}
	a.Balance = new(big.Int).Sub(a.Balance, amount)
	a.Nonce++
	return true
}

// HasBalance reports whether the account can cover amount.
func (a *Account) HasBalance(amount *big.Int) bool {
	return a.Balance.Cmp(amount) >= 0
}
