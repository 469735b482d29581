// Package witness assembles the structured input bundles the three
// circuit kinds (deposit, withdraw, transfer) consume (spec.md §4.6).
// The external prover itself is out of scope; this package only
// produces its input in the text and JSON encodings the prover
// contract (spec.md §6) expects.
package witness

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/abhirupinspace/veilocity/internal/corerr"
	"github.com/abhirupinspace/veilocity/internal/field"
	"github.com/abhirupinspace/veilocity/internal/merkle"
)

// Depth must equal the circuit's compiled-in tree depth.
const Depth = merkle.Depth

// DepositWitness is the deposit circuit's input: commitment and amount
// are public, secret is private.
type DepositWitness struct {
	Commitment field.F
	Amount     field.F
	Secret     field.F
}

// NewDepositWitness builds a deposit witness.
func NewDepositWitness(commitment, amount, secret field.F) DepositWitness {
	return DepositWitness{Commitment: commitment, Amount: amount, Secret: secret}
}

func (w DepositWitness) ToTOML() string {
	return strings.Join([]string{
		tomlScalar("commitment", w.Commitment),
		tomlScalar("amount", w.Amount),
		tomlScalar("secret", w.Secret),
	}, "\n")
}

func (w DepositWitness) ToJSON() ([]byte, error) {
	return json.MarshalIndent(struct {
		Commitment string `json:"commitment"`
		Amount     string `json:"amount"`
		Secret     string `json:"secret"`
	}{
		Commitment: field.ToHex(w.Commitment),
		Amount:     field.ToHex(w.Amount),
		Secret:     field.ToHex(w.Secret),
	}, "", "  ")
}

// WithdrawWitness is the withdraw circuit's input: state_root,
// nullifier, amount, and recipient are public; the rest proves
// membership and authorizes the spend.
type WithdrawWitness struct {
	StateRoot field.F
	Nullifier field.F
	Amount    field.F
	Recipient field.F

	Secret  field.F
	Balance field.F
	Nonce   field.F
	Index   field.F
	Path    [Depth]field.F
}

// NewWithdrawWitness builds a withdraw witness. path must have exactly
// Depth elements, leaf-to-root order, or ErrInvalidInput.
func NewWithdrawWitness(stateRoot, nullifier, amount, recipient, secret, balance, nonce, index field.F, path []field.F) (WithdrawWitness, error) {
	var w WithdrawWitness
	if len(path) != Depth {
		return w, fmt.Errorf("witness: merkle path has %d elements, want %d: %w", len(path), Depth, corerr.ErrInvalidInput)
	}
	w = WithdrawWitness{
		StateRoot: stateRoot,
		Nullifier: nullifier,
		Amount:    amount,
		Recipient: recipient,
		Secret:    secret,
		Balance:   balance,
		Nonce:     nonce,
		Index:     index,
	}
	copy(w.Path[:], path)
	return w, nil
}

func (w WithdrawWitness) ToTOML() string {
	return strings.Join([]string{
		tomlScalar("state_root", w.StateRoot),
		tomlScalar("nullifier", w.Nullifier),
		tomlScalar("amount", w.Amount),
		tomlScalar("recipient", w.Recipient),
		tomlScalar("secret", w.Secret),
		tomlScalar("balance", w.Balance),
		tomlScalar("nonce", w.Nonce),
		tomlScalar("index", w.Index),
		tomlPath("path", w.Path[:]),
	}, "\n")
}

func (w WithdrawWitness) ToJSON() ([]byte, error) {
	return json.MarshalIndent(struct {
		StateRoot string   `json:"state_root"`
		Nullifier string   `json:"nullifier"`
		Amount    string   `json:"amount"`
		Recipient string   `json:"recipient"`
		Secret    string   `json:"secret"`
		Balance   string   `json:"balance"`
		Nonce     string   `json:"nonce"`
		Index     string   `json:"index"`
		Path      []string `json:"path"`
	}{
		StateRoot: field.ToHex(w.StateRoot),
		Nullifier: field.ToHex(w.Nullifier),
		Amount:    field.ToHex(w.Amount),
		Recipient: field.ToHex(w.Recipient),
		Secret:    field.ToHex(w.Secret),
		Balance:   field.ToHex(w.Balance),
		Nonce:     field.ToHex(w.Nonce),
		Index:     field.ToHex(w.Index),
		Path:      hexSlice(w.Path[:]),
	}, "", "  ")
}

// TransferWitness is the single-sided transfer circuit's input: only
// old_state_root and nullifier are public, the rest (including the
// recipient's existence) is assumed valid and checked by the
// full-transfer circuit instead when the recipient's own state must
// change too (spec.md §4.6).
type TransferWitness struct {
	OldStateRoot field.F
	Nullifier    field.F

	SenderSecret  field.F
	SenderBalance field.F
	SenderNonce   field.F
	SenderIndex   field.F
	SenderPath    [Depth]field.F

	RecipientPubkey field.F
	Amount          field.F
}

func NewTransferWitness(oldStateRoot, nullifier, senderSecret, senderBalance, senderNonce, senderIndex field.F, senderPath []field.F, recipientPubkey, amount field.F) (TransferWitness, error) {
	var w TransferWitness
	if len(senderPath) != Depth {
		return w, fmt.Errorf("witness: sender merkle path has %d elements, want %d: %w", len(senderPath), Depth, corerr.ErrInvalidInput)
	}
	w = TransferWitness{
		OldStateRoot:    oldStateRoot,
		Nullifier:       nullifier,
		SenderSecret:    senderSecret,
		SenderBalance:   senderBalance,
		SenderNonce:     senderNonce,
		SenderIndex:     senderIndex,
		RecipientPubkey: recipientPubkey,
		Amount:          amount,
	}
	copy(w.SenderPath[:], senderPath)
	return w, nil
}

func (w TransferWitness) ToTOML() string {
	return strings.Join([]string{
		tomlScalar("old_state_root", w.OldStateRoot),
		tomlScalar("nullifier", w.Nullifier),
		tomlScalar("sender_secret", w.SenderSecret),
		tomlScalar("sender_balance", w.SenderBalance),
		tomlScalar("sender_nonce", w.SenderNonce),
		tomlScalar("sender_index", w.SenderIndex),
		tomlPath("sender_path", w.SenderPath[:]),
		tomlScalar("recipient_pubkey", w.RecipientPubkey),
		tomlScalar("amount", w.Amount),
	}, "\n")
}

func (w TransferWitness) ToJSON() ([]byte, error) {
	return json.MarshalIndent(struct {
		OldStateRoot    string   `json:"old_state_root"`
		Nullifier       string   `json:"nullifier"`
		SenderSecret    string   `json:"sender_secret"`
		SenderBalance   string   `json:"sender_balance"`
		SenderNonce     string   `json:"sender_nonce"`
		SenderIndex     string   `json:"sender_index"`
		SenderPath      []string `json:"sender_path"`
		RecipientPubkey string   `json:"recipient_pubkey"`
		Amount          string   `json:"amount"`
	}{
		OldStateRoot:    field.ToHex(w.OldStateRoot),
		Nullifier:       field.ToHex(w.Nullifier),
		SenderSecret:    field.ToHex(w.SenderSecret),
		SenderBalance:   field.ToHex(w.SenderBalance),
		SenderNonce:     field.ToHex(w.SenderNonce),
		SenderIndex:     field.ToHex(w.SenderIndex),
		SenderPath:      hexSlice(w.SenderPath[:]),
		RecipientPubkey: field.ToHex(w.RecipientPubkey),
		Amount:          field.ToHex(w.Amount),
	}, "", "  ")
}

// FullTransferWitness is the full transfer circuit's input, carrying
// both parties' state and four Merkle paths so the circuit can verify
// the two-step state transition described in spec.md §4.6's "Full
// transfer verification order": sender spend first, then recipient
// credit, with the intermediate root never observed outside the
// circuit.
type FullTransferWitness struct {
	OldStateRoot field.F
	NewStateRoot field.F
	Nullifier    field.F

	SenderSecret  field.F
	SenderBalance field.F
	SenderNonce   field.F
	SenderIndex   field.F
	SenderPathOld [Depth]field.F
	SenderPathNew [Depth]field.F

	RecipientPubkey  field.F
	RecipientBalance field.F
	RecipientNonce   field.F
	RecipientIndex   field.F
	RecipientPathOld [Depth]field.F
	RecipientPathNew [Depth]field.F

	Amount field.F
}

// FullTransferInput groups the four required paths so
// NewFullTransferWitness's signature stays readable.
type FullTransferInput struct {
	SenderPathOld    []field.F
	SenderPathNew    []field.F
	RecipientPathOld []field.F
	RecipientPathNew []field.F
}

func NewFullTransferWitness(
	oldStateRoot, newStateRoot, nullifier field.F,
	senderSecret, senderBalance, senderNonce, senderIndex field.F,
	recipientPubkey, recipientBalance, recipientNonce, recipientIndex field.F,
	paths FullTransferInput,
	amount field.F,
) (FullTransferWitness, error) {
	var w FullTransferWitness
	for name, path := range map[string][]field.F{
		"sender_path_old":    paths.SenderPathOld,
		"sender_path_new":    paths.SenderPathNew,
		"recipient_path_old": paths.RecipientPathOld,
		"recipient_path_new": paths.RecipientPathNew,
	} {
		if len(path) != Depth {
			return w, fmt.Errorf("witness: %s has %d elements, want %d: %w", name, len(path), Depth, corerr.ErrInvalidInput)
		}
	}

	w = FullTransferWitness{
		OldStateRoot:     oldStateRoot,
		NewStateRoot:     newStateRoot,
		Nullifier:        nullifier,
		SenderSecret:     senderSecret,
		SenderBalance:    senderBalance,
		SenderNonce:      senderNonce,
		SenderIndex:      senderIndex,
		RecipientPubkey:  recipientPubkey,
		RecipientBalance: recipientBalance,
		RecipientNonce:   recipientNonce,
		RecipientIndex:   recipientIndex,
		Amount:           amount,
	}
	copy(w.SenderPathOld[:], paths.SenderPathOld)
	copy(w.SenderPathNew[:], paths.SenderPathNew)
	copy(w.RecipientPathOld[:], paths.RecipientPathOld)
	copy(w.RecipientPathNew[:], paths.RecipientPathNew)
	return w, nil
}

func (w FullTransferWitness) ToTOML() string {
	return strings.Join([]string{
		tomlScalar("old_state_root", w.OldStateRoot),
		tomlScalar("new_state_root", w.NewStateRoot),
		tomlScalar("nullifier", w.Nullifier),
		tomlScalar("sender_secret", w.SenderSecret),
		tomlScalar("sender_balance", w.SenderBalance),
		tomlScalar("sender_nonce", w.SenderNonce),
		tomlScalar("sender_index", w.SenderIndex),
		tomlPath("sender_path_old", w.SenderPathOld[:]),
		tomlPath("sender_path_new", w.SenderPathNew[:]),
		tomlScalar("recipient_pubkey", w.RecipientPubkey),
		tomlScalar("recipient_balance", w.RecipientBalance),
		tomlScalar("recipient_nonce", w.RecipientNonce),
		tomlScalar("recipient_index", w.RecipientIndex),
		tomlPath("recipient_path_old", w.RecipientPathOld[:]),
		tomlPath("recipient_path_new", w.RecipientPathNew[:]),
		tomlScalar("amount", w.Amount),
	}, "\n")
}

func (w FullTransferWitness) ToJSON() ([]byte, error) {
	return json.MarshalIndent(struct {
		OldStateRoot     string   `json:"old_state_root"`
		NewStateRoot     string   `json:"new_state_root"`
		Nullifier        string   `json:"nullifier"`
		SenderSecret     string   `json:"sender_secret"`
		SenderBalance    string   `json:"sender_balance"`
		SenderNonce      string   `json:"sender_nonce"`
		SenderIndex      string   `json:"sender_index"`
		SenderPathOld    []string `json:"sender_path_old"`
		SenderPathNew    []string `json:"sender_path_new"`
		RecipientPubkey  string   `json:"recipient_pubkey"`
		RecipientBalance string   `json:"recipient_balance"`
		RecipientNonce   string   `json:"recipient_nonce"`
		RecipientIndex   string   `json:"recipient_index"`
		RecipientPathOld []string `json:"recipient_path_old"`
		RecipientPathNew []string `json:"recipient_path_new"`
		Amount           string   `json:"amount"`
	}{
		OldStateRoot:     field.ToHex(w.OldStateRoot),
		NewStateRoot:     field.ToHex(w.NewStateRoot),
		Nullifier:        field.ToHex(w.Nullifier),
		SenderSecret:     field.ToHex(w.SenderSecret),
		SenderBalance:    field.ToHex(w.SenderBalance),
		SenderNonce:      field.ToHex(w.SenderNonce),
		SenderIndex:      field.ToHex(w.SenderIndex),
		SenderPathOld:    hexSlice(w.SenderPathOld[:]),
		SenderPathNew:    hexSlice(w.SenderPathNew[:]),
		RecipientPubkey:  field.ToHex(w.RecipientPubkey),
		RecipientBalance: field.ToHex(w.RecipientBalance),
		RecipientNonce:   field.ToHex(w.RecipientNonce),
		RecipientIndex:   field.ToHex(w.RecipientIndex),
		RecipientPathOld: hexSlice(w.RecipientPathOld[:]),
		RecipientPathNew: hexSlice(w.RecipientPathNew[:]),
		Amount:           field.ToHex(w.Amount),
	}, "", "  ")
}

// PackRecipient packs a 20-byte on-chain address into one field
// element the way original_source's withdraw command does: the
// address's first 12 bytes become the low 12 bytes of a 16-byte
// big-endian buffer (the top 4 bytes of that buffer stay zero), which
// is then read as a u128 and lifted into the field (spec.md §4.6,
// exercised by S7). The address's trailing 8 bytes are not part of
// the packing and never reach the circuit.
func PackRecipient(address [20]byte) field.F {
	var buf [16]byte
	copy(buf[4:], address[:12])
	return field.FromUint128(new(big.Int).SetBytes(buf[:]))
}

// tomlScalar renders one `name = "0x..."` assignment line.
func tomlScalar(name string, v field.F) string {
	return fmt.Sprintf("%s = %q", name, field.ToHex(v))
}

// tomlPath renders one `name = ["0x...", ...]` assignment line.
func tomlPath(name string, path []field.F) string {
	quoted := make([]string, len(path))
	for i, p := range path {
		quoted[i] = fmt.Sprintf("%q", field.ToHex(p))
	}
	return fmt.Sprintf("%s = [%s]", name, strings.Join(quoted, ", "))
}

func hexSlice(path []field.F) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = field.ToHex(p)
	}
	return out
}
