package field

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Hasher is a reusable handle onto the Poseidon permutation family.
// go-iden3-crypto's poseidon.Hash selects round constants and the MDS
// matrix from the number of inputs, so arities 1..4 are genuinely
// distinct instantiations rather than one padded construction — the
// property spec.md §4.1 requires. Each hash call allocates its own
// big.Int inputs; the scratch buffers NewHasher sets up are not used by
// the hashing path. A Hasher holds no mutable state and is safe for
// concurrent use by multiple goroutines, each with its own instance per
// the "do not treat it as free-floating global state" guidance.
type Hasher struct {
	scratch [4]*big.Int
}

// NewHasher returns a ready-to-use Hasher.
func NewHasher() *Hasher {
	h := &Hasher{}
	for i := range h.scratch {
		h.scratch[i] = new(big.Int)
	}
	return h
}

func (h *Hasher) hashN(xs ...F) (F, error) {
	inputs := make([]*big.Int, len(xs))
	for i, x := range xs {
		b := x.BigInt(new(big.Int))
		inputs[i] = b
	}
	out, err := poseidon.Hash(inputs)
	if err != nil {
		return F{}, fmt.Errorf("field: poseidon hash arity %d: %w", len(xs), err)
	}
	var result F
	result.SetBigInt(out)
	return result, nil
}

// H1 hashes a single field element. Used for pubkey derivation.
func (h *Hasher) H1(x1 F) F {
	out, err := h.hashN(x1)
	if err != nil {
		panic(err)
	}
	return out
}

// H2 hashes two field elements. Used for Merkle node composition and
// deposit commitments.
func (h *Hasher) H2(x1, x2 F) F {
	out, err := h.hashN(x1, x2)
	if err != nil {
		panic(err)
	}
	return out
}

// H3 hashes three field elements. Used for leaf and nullifier
// derivation — the two constructions share an arity but differ in
// tuple shape, which is how domain separation is achieved (spec.md
// §4.1: shape, not a prefix tag).
func (h *Hasher) H3(x1, x2, x3 F) F {
	out, err := h.hashN(x1, x2, x3)
	if err != nil {
		panic(err)
	}
	return out
}

// H4 hashes four field elements, reserved for circuit constructions
// that need it; the core engine does not call it directly today but
// the contract requires it to exist as a distinct instantiation.
func (h *Hasher) H4(x1, x2, x3, x4 F) F {
	out, err := h.hashN(x1, x2, x3, x4)
	if err != nil {
		panic(err)
	}
	return out
}

// DerivePubkey computes pubkey = H1(secret).
func (h *Hasher) DerivePubkey(secret F) F {
	return h.H1(secret)
}

// ComputeLeaf computes leaf = H3(pubkey, balance, nonce).
func (h *Hasher) ComputeLeaf(pubkey, balance, nonce F) F {
	return h.H3(pubkey, balance, nonce)
}

// ComputeNullifier computes nullifier = H3(secret, index, nonce).
func (h *Hasher) ComputeNullifier(secret, index, nonce F) F {
	return h.H3(secret, index, nonce)
}

// ComputeDepositCommitment computes commitment = H2(secret, amount).
func (h *Hasher) ComputeDepositCommitment(secret, amount F) F {
	return h.H2(secret, amount)
}
