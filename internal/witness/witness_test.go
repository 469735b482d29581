package witness

import (
	"strings"
	"testing"

	"github.com/abhirupinspace/veilocity/internal/field"
)

func fullPath(v uint64) []field.F {
	path := make([]field.F, Depth)
	for i := range path {
		path[i] = field.FromUint64(v)
	}
	return path
}

func TestDepositWitnessEncoding(t *testing.T) {
	w := NewDepositWitness(field.FromUint64(1), field.FromUint64(2), field.FromUint64(3))

	toml := w.ToTOML()
	for _, want := range []string{`commitment = "0x`, `amount = "0x`, `secret = "0x`} {
		if !strings.Contains(toml, want) {
			t.Fatalf("toml missing %q:\n%s", want, toml)
		}
	}

	j, err := w.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	if !strings.Contains(string(j), `"commitment"`) {
		t.Fatalf("json missing commitment field: %s", j)
	}
}

func TestWithdrawWitnessRejectsWrongPathLength(t *testing.T) {
	_, err := NewWithdrawWitness(
		field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), field.FromUint64(4),
		field.FromUint64(5), field.FromUint64(6), field.FromUint64(7), field.FromUint64(8),
		fullPath(0)[:Depth-1],
	)
	if err == nil {
		t.Fatal("expected error for short path")
	}
}

func TestWithdrawWitnessAcceptsCorrectPathLength(t *testing.T) {
	w, err := NewWithdrawWitness(
		field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), field.FromUint64(4),
		field.FromUint64(5), field.FromUint64(6), field.FromUint64(7), field.FromUint64(8),
		fullPath(0),
	)
	if err != nil {
		t.Fatalf("NewWithdrawWitness: %v", err)
	}
	if len(w.Path) != Depth {
		t.Fatalf("path length = %d, want %d", len(w.Path), Depth)
	}
	toml := w.ToTOML()
	if !strings.Contains(toml, "path = [") {
		t.Fatalf("toml missing path array:\n%s", toml)
	}
}

func TestTransferWitnessRejectsWrongPathLength(t *testing.T) {
	_, err := NewTransferWitness(
		field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), field.FromUint64(4),
		field.FromUint64(5), field.FromUint64(6), fullPath(0)[:5],
		field.FromUint64(7), field.FromUint64(8),
	)
	if err == nil {
		t.Fatal("expected error for short sender path")
	}
}

func TestFullTransferWitnessRequiresAllFourPaths(t *testing.T) {
	good := fullPath(0)
	_, err := NewFullTransferWitness(
		field.FromUint64(1), field.FromUint64(2), field.FromUint64(3),
		field.FromUint64(4), field.FromUint64(5), field.FromUint64(6), field.FromUint64(7),
		field.FromUint64(8), field.FromUint64(9), field.FromUint64(10), field.FromUint64(11),
		FullTransferInput{
			SenderPathOld:    good,
			SenderPathNew:    good,
			RecipientPathOld: good[:Depth-1],
			RecipientPathNew: good,
		},
		field.FromUint64(12),
	)
	if err == nil {
		t.Fatal("expected error when recipient_path_old is short")
	}
}

func TestFullTransferWitnessAcceptsValidPaths(t *testing.T) {
	good := fullPath(0)
	w, err := NewFullTransferWitness(
		field.FromUint64(1), field.FromUint64(2), field.FromUint64(3),
		field.FromUint64(4), field.FromUint64(5), field.FromUint64(6), field.FromUint64(7),
		field.FromUint64(8), field.FromUint64(9), field.FromUint64(10), field.FromUint64(11),
		FullTransferInput{
			SenderPathOld:    good,
			SenderPathNew:    good,
			RecipientPathOld: good,
			RecipientPathNew: good,
		},
		field.FromUint64(12),
	)
	if err != nil {
		t.Fatalf("NewFullTransferWitness: %v", err)
	}
	toml := w.ToTOML()
	for _, want := range []string{"sender_path_old", "sender_path_new", "recipient_path_old", "recipient_path_new"} {
		if !strings.Contains(toml, want) {
			t.Fatalf("toml missing %s:\n%s", want, toml)
		}
	}
}

// TestDeterministicRecipientPacking exercises S7: the given address
// packs to a field whose 32-byte big-endian encoding has the exact
// 20-zero / 12-address-byte split and is stable across calls.
func TestDeterministicRecipientPacking(t *testing.T) {
	var address [20]byte
	raw := []byte{0x12, 0x34, 0x56, 0x78, 0x90, 0xab, 0xcd, 0xef, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0xaa, 0xbb, 0xcc, 0xdd}
	copy(address[:], raw)

	packed := PackRecipient(address)
	again := PackRecipient(address)
	if packed != again {
		t.Fatal("packing is not deterministic")
	}

	encoded := field.ToBytes(packed)
	for i := 0; i < 20; i++ {
		if encoded[i] != 0 {
			t.Fatalf("byte %d of packed recipient = 0x%02x, want 0x00 (expected zero prefix)", i, encoded[i])
		}
	}
	if string(encoded[20:32]) != string(address[:12]) {
		t.Fatalf("trailing 12 bytes = %x, want first 12 address bytes %x", encoded[20:32], address[:12])
	}
}

func TestPackRecipientIgnoresTrailingAddressBytes(t *testing.T) {
	var a, b [20]byte
	copy(a[:12], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	copy(b[:12], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	copy(a[12:], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(b[12:], []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01})

	if PackRecipient(a) != PackRecipient(b) {
		t.Fatal("trailing 8 address bytes should not affect the packed field value")
	}
}
