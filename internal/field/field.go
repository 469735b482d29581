// Package field implements BN254 scalar field arithmetic and the
// Poseidon-based hash constructions shared by the rest of the engine.
package field

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// F is an element of the BN254 scalar field. It is a thin alias over
// fr.Element so every package in the module shares one canonical
// field type instead of re-deriving modular arithmetic.
type F = fr.Element

// ByteSize is the canonical big-endian encoding width of F.
const ByteSize = fr.Bytes

// Zero returns the additive identity.
func Zero() F {
	var z F
	return z
}

// FromUint64 reduces a uint64 into the field.
func FromUint64(v uint64) F {
	var out F
	out.SetUint64(v)
	return out
}

// FromUint128 reduces a 128-bit unsigned integer, represented as a
// *big.Int, into the field. Veilocity balances are u128-bounded, so
// this is the sole entry point for balances becoming field elements.
func FromUint128(v *big.Int) F {
	var out F
	out.SetBigInt(v)
	return out
}

// FromBytes reduces a big-endian byte slice of any length into the
// field via fr.Element's SetBytes, the big-endian interpretation the
// protocol's wire format expects.
func FromBytes(b []byte) F {
	var out F
	out.SetBytes(b)
	return out
}

// ToBytes returns the canonical 32-byte big-endian encoding of f.
func ToBytes(f F) [ByteSize]byte {
	return f.Bytes()
}

// ToHex returns the 0x-prefixed 32-byte big-endian hex encoding of f.
func ToHex(f F) string {
	b := f.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// FromHex parses a 0x-prefixed (or bare) hex string into a field
// element, reducing mod the field order as FromBytes does.
func FromHex(s string) (F, error) {
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return F{}, fmt.Errorf("field: invalid hex %q: %w", s, err)
	}
	return FromBytes(b), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Equal reports whether a and b represent the same field element.
func Equal(a, b F) bool {
	return a.Equal(&b)
}

// IsZero reports whether f is the additive identity.
func IsZero(f F) bool {
	return f.IsZero()
}
