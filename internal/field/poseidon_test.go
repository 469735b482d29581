package field

import "testing"

func TestHashDeterminism(t *testing.T) {
	h := NewHasher()
	s := FromUint64(42)
	a := h.H1(s)
	b := h.H1(s)
	if !Equal(a, b) {
		t.Fatalf("H1 is not deterministic: %v != %v", a, b)
	}

	c := h.H3(s, FromUint64(1), FromUint64(2))
	d := h.H3(s, FromUint64(1), FromUint64(2))
	if !Equal(c, d) {
		t.Fatalf("H3 is not deterministic: %v != %v", c, d)
	}
}

func TestDomainSeparationByArity(t *testing.T) {
	h := NewHasher()
	s := FromUint64(42)

	h1 := h.H1(s)
	h2 := h.H2(s, Zero())
	h3 := h.H3(s, Zero(), Zero())

	if Equal(h1, h2) {
		t.Fatalf("H1(s) must differ from H2(s, 0)")
	}
	if Equal(h2, h3) {
		t.Fatalf("H2(s, 0) must differ from H3(s, 0, 0)")
	}
	if Equal(h1, h3) {
		t.Fatalf("H1(s) must differ from H3(s, 0, 0)")
	}
}

func TestLeafAndNullifierShapesDiverge(t *testing.T) {
	h := NewHasher()
	pubkey := h.DerivePubkey(FromUint64(7))
	leaf := h.ComputeLeaf(pubkey, FromUint64(100), FromUint64(0))
	nullifier := h.ComputeNullifier(FromUint64(7), FromUint64(100), FromUint64(0))

	if Equal(leaf, nullifier) {
		t.Fatalf("leaf and nullifier must diverge despite sharing arity 3")
	}
}

func TestNullifierUniquenessAcrossIndexAndNonce(t *testing.T) {
	h := NewHasher()
	secret := FromUint64(7)

	seen := map[F]struct{}{}
	for i := uint64(0); i < 5; i++ {
		for n := uint64(0); n < 5; n++ {
			nf := h.ComputeNullifier(secret, FromUint64(i), FromUint64(n))
			if _, dup := seen[nf]; dup {
				t.Fatalf("nullifier collision at index=%d nonce=%d", i, n)
			}
			seen[nf] = struct{}{}
		}
	}
}

func TestComputeDepositCommitment(t *testing.T) {
	h := NewHasher()
	secret := FromUint64(42)
	amount := FromUint64(1_000_000_000_000_000_000)

	c1 := h.ComputeDepositCommitment(secret, amount)
	c2 := h.ComputeDepositCommitment(secret, amount)
	if !Equal(c1, c2) {
		t.Fatalf("deposit commitment must be deterministic")
	}

	other := h.ComputeDepositCommitment(FromUint64(99), amount)
	if Equal(c1, other) {
		t.Fatalf("deposit commitment must depend on the secret")
	}
}
