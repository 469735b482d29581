package field

import (
	"math/big"
	"testing"
)

func TestFromUint64RoundTrip(t *testing.T) {
	f := FromUint64(42)
	if f.Uint64() != 42 {
		t.Fatalf("expected 42, got %d", f.Uint64())
	}
}

func TestHexRoundTrip(t *testing.T) {
	f := FromUint64(123456789)
	h := ToHex(f)
	if len(h) != 2+2*ByteSize {
		t.Fatalf("unexpected hex length %d for %q", len(h), h)
	}
	back, err := FromHex(h)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if !Equal(f, back) {
		t.Fatalf("round trip mismatch: %v != %v", f, back)
	}
}

func TestFromHexAcceptsBarePrefix(t *testing.T) {
	f1, err := FromHex("0x2a")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	f2, err := FromHex("2a")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if !Equal(f1, f2) {
		t.Fatalf("0x-prefixed and bare hex should parse identically")
	}
	if !Equal(f1, FromUint64(42)) {
		t.Fatalf("0x2a should equal 42")
	}
}

func TestFromUint128(t *testing.T) {
	v := new(big.Int)
	v.SetString("340282366920938463463374607431768211455", 10) // 2^128 - 1
	f := FromUint128(v)
	if IsZero(f) {
		t.Fatalf("expected non-zero field element")
	}
}

func TestZeroIsZero(t *testing.T) {
	if !IsZero(Zero()) {
		t.Fatalf("Zero() must be the additive identity")
	}
	if IsZero(FromUint64(1)) {
		t.Fatalf("1 must not be zero")
	}
}
