// Package keyderiv derives BN254 scalar secrets from raw entropy. It
// exists so account secret generation never reaches for the
// demonstration-grade XOR/non-cryptographic construction spec.md §9.1
// flags in the original key-at-rest code — only a real KDF is used.
package keyderiv

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/abhirupinspace/veilocity/internal/field"
)

const info = "veilocity/account-secret/v1"

// FromSeed derives a field element deterministically from seed bytes
// via HKDF-SHA256, reducing the derived 32 bytes into the field. The
// same seed always yields the same secret, matching
// AccountSecret::from_bytes in the original implementation.
func FromSeed(seed []byte) (field.F, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, field.ByteSize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return field.F{}, fmt.Errorf("keyderiv: hkdf expand: %w", err)
	}
	return field.FromBytes(out), nil
}

// Generate draws fresh entropy from crypto/rand and derives a secret
// from it, matching AccountSecret::generate in the original.
func Generate() (field.F, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return field.F{}, fmt.Errorf("keyderiv: reading entropy: %w", err)
	}
	return FromSeed(seed)
}
