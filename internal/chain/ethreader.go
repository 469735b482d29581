package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/abhirupinspace/veilocity/internal/corerr"
)

// vaultABI describes exactly the view functions and events
// VeilocityVault exposes per original_source's bindings.rs; the
// engine never sends transactions through it (deposit/withdraw/
// admin functions are an out-of-scope external collaborator).
const vaultABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"commitment","type":"bytes32"},
		{"indexed":false,"name":"amount","type":"uint256"},
		{"indexed":false,"name":"leafIndex","type":"uint256"},
		{"indexed":false,"name":"timestamp","type":"uint256"}
	],"name":"Deposit","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"nullifier","type":"bytes32"},
		{"indexed":true,"name":"recipient","type":"address"},
		{"indexed":false,"name":"amount","type":"uint256"}
	],"name":"Withdrawal","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"oldRoot","type":"bytes32"},
		{"indexed":true,"name":"newRoot","type":"bytes32"},
		{"indexed":false,"name":"batchIndex","type":"uint256"},
		{"indexed":false,"name":"timestamp","type":"uint256"}
	],"name":"StateRootUpdated","type":"event"},
	{"inputs":[],"name":"currentRoot","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"depositCount","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalValueLocked","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// EthReader implements Reader against a live EVM JSON-RPC endpoint
// using go-ethereum's client and ABI/log-filtering machinery, the
// dependency adopted from the rest of the example pack
// (wyf-ACCEPT-eth2030, AKJUS-bsc-erigon) since the teacher has no
// chain-RPC client of its own.
type EthReader struct {
	client *ethclient.Client
	vault  common.Address
	abi    abi.ABI

	depositTopic     common.Hash
	withdrawalTopic  common.Hash
	rootUpdatedTopic common.Hash
}

// NewEthReader dials rpcURL and prepares log filters for vault.
func NewEthReader(rpcURL string, vault common.Address) (*EthReader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parsing vault ABI: %w", err)
	}
	return &EthReader{
		client:           client,
		vault:            vault,
		abi:              parsed,
		depositTopic:     parsed.Events["Deposit"].ID,
		withdrawalTopic:  parsed.Events["Withdrawal"].ID,
		rootUpdatedTopic: parsed.Events["StateRootUpdated"].ID,
	}, nil
}

func (r *EthReader) HeadBlock(ctx context.Context) (uint64, error) {
	head, err := r.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: %w: %w", corerr.ErrNetwork, err)
	}
	return head, nil
}

func (r *EthReader) CurrentRoot(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	result, err := r.call(ctx, "currentRoot")
	if err != nil {
		return out, err
	}
	copy(out[:], result[0].([32]byte)[:])
	return out, nil
}

func (r *EthReader) DepositCount(ctx context.Context) (uint64, error) {
	result, err := r.call(ctx, "depositCount")
	if err != nil {
		return 0, err
	}
	return result[0].(*big.Int).Uint64(), nil
}

func (r *EthReader) TotalValueLocked(ctx context.Context) (*big.Int, error) {
	result, err := r.call(ctx, "totalValueLocked")
	if err != nil {
		return nil, err
	}
	return result[0].(*big.Int), nil
}

func (r *EthReader) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("chain: packing %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &r.vault, Data: data}
	out, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: calling %s: %w: %w", method, corerr.ErrNetwork, err)
	}
	return r.abi.Unpack(method, out)
}

// Events fetches every Deposit/Withdrawal/StateRootUpdated log in
// [from, to] and decodes it, returned sorted into strict on-chain
// order.
func (r *EthReader) Events(ctx context.Context, from, to uint64) ([]Event, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{r.vault},
		Topics: [][]common.Hash{{
			r.depositTopic, r.withdrawalTopic, r.rootUpdatedTopic,
		}},
	}
	logs, err := r.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chain: filtering logs [%d,%d]: %w: %w", from, to, corerr.ErrNetwork, err)
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		ev, err := r.decode(lg)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	sort.Sort(ByOnChainOrder(events))
	return events, nil
}

func (r *EthReader) decode(lg gethtypes.Log) (Event, error) {
	switch lg.Topics[0] {
	case r.depositTopic:
		var unpacked struct {
			Amount    *big.Int
			LeafIndex *big.Int
			Timestamp *big.Int
		}
		if err := r.abi.UnpackIntoInterface(&unpacked, "Deposit", lg.Data); err != nil {
			return Event{}, fmt.Errorf("chain: decoding Deposit: %w", err)
		}
		ev := Event{
			Kind:        EventKindDeposit,
			BlockNumber: lg.BlockNumber,
			LogIndex:    lg.Index,
			Deposit: DepositEvent{
				Amount:      unpacked.Amount,
				LeafIndex:   unpacked.LeafIndex.Uint64(),
				Timestamp:   unpacked.Timestamp.Uint64(),
				BlockNumber: lg.BlockNumber,
				TxHash:      lg.TxHash,
			},
		}
		copy(ev.Deposit.Commitment[:], lg.Topics[1].Bytes())
		return ev, nil

	case r.withdrawalTopic:
		var unpacked struct {
			Amount *big.Int
		}
		if err := r.abi.UnpackIntoInterface(&unpacked, "Withdrawal", lg.Data); err != nil {
			return Event{}, fmt.Errorf("chain: decoding Withdrawal: %w", err)
		}
		ev := Event{
			Kind:        EventKindWithdrawal,
			BlockNumber: lg.BlockNumber,
			LogIndex:    lg.Index,
			Withdrawal: WithdrawalEvent{
				Amount:      unpacked.Amount,
				BlockNumber: lg.BlockNumber,
				TxHash:      lg.TxHash,
			},
		}
		copy(ev.Withdrawal.Nullifier[:], lg.Topics[1].Bytes())
		copy(ev.Withdrawal.Recipient[:], common.BytesToAddress(lg.Topics[2].Bytes()).Bytes())
		return ev, nil

	case r.rootUpdatedTopic:
		var unpacked struct {
			BatchIndex *big.Int
			Timestamp  *big.Int
		}
		if err := r.abi.UnpackIntoInterface(&unpacked, "StateRootUpdated", lg.Data); err != nil {
			return Event{}, fmt.Errorf("chain: decoding StateRootUpdated: %w", err)
		}
		ev := Event{
			Kind:        EventKindRootUpdated,
			BlockNumber: lg.BlockNumber,
			LogIndex:    lg.Index,
			RootUpdated: RootUpdatedEvent{
				BatchIndex:  unpacked.BatchIndex.Uint64(),
				Timestamp:   unpacked.Timestamp.Uint64(),
				BlockNumber: lg.BlockNumber,
				TxHash:      lg.TxHash,
			},
		}
		copy(ev.RootUpdated.OldRoot[:], lg.Topics[1].Bytes())
		copy(ev.RootUpdated.NewRoot[:], lg.Topics[2].Bytes())
		return ev, nil

	default:
		return Event{}, fmt.Errorf("chain: unrecognized log topic %s", lg.Topics[0])
	}
}
