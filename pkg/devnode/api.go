package devnode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

const clientVersion = "fundme-devnode/v1"

// callArgs is the transaction call object of eth_call and eth_estimateGas.
type callArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Data                 *hexutil.Bytes  `json:"data"`
	Input                *hexutil.Bytes  `json:"input"`
}

func (a callArgs) msg() ethereum.CallMsg {
	var msg ethereum.CallMsg
	if a.From != nil {
		msg.From = *a.From
	}
	msg.To = a.To
	if a.Gas != nil {
		msg.Gas = uint64(*a.Gas)
	}
	if a.Value != nil {
		msg.Value = a.Value.ToInt()
	}
	if a.Input != nil {
		msg.Data = *a.Input
	} else if a.Data != nil {
		msg.Data = *a.Data
	}
	return msg
}

// revertErr passes revert errors through unwrapped so the rpc server
// reports their code and data.
func revertErr(err error) error {
	var rev *devchain.RevertError
	if errors.As(err, &rev) {
		return rev
	}
	return err
}

type ethAPI struct {
	chain *devchain.Chain
}

// blockNumber resolves a block selector; nil means latest.
func (api *ethAPI) blockNumber(ctx context.Context, b *rpc.BlockNumberOrHash) (*big.Int, error) {
	if b == nil {
		return nil, nil
	}
	if hash, ok := b.Hash(); ok {
		h, err := api.chain.HeaderByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		return h.Number, nil
	}
	if n, ok := b.Number(); ok && n >= 0 {
		return big.NewInt(n.Int64()), nil
	}
	return nil, nil
}

func (api *ethAPI) ChainId(ctx context.Context) (*hexutil.Big, error) {
	id, err := api.chain.ChainID(ctx)
	return (*hexutil.Big)(id), err
}

func (api *ethAPI) BlockNumber(ctx context.Context) (hexutil.Uint64, error) {
	n, err := api.chain.BlockNumber(ctx)
	return hexutil.Uint64(n), err
}

func (api *ethAPI) Accounts() []common.Address {
	var out []common.Address
	for _, a := range api.chain.Accounts() {
		out = append(out, a.Address)
	}
	return out
}

func (api *ethAPI) GetBalance(ctx context.Context, addr common.Address, b *rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	n, err := api.blockNumber(ctx, b)
	if err != nil {
		return nil, err
	}
	bal, err := api.chain.BalanceAt(ctx, addr, n)
	return (*hexutil.Big)(bal), err
}

func (api *ethAPI) GetCode(ctx context.Context, addr common.Address, b *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	n, err := api.blockNumber(ctx, b)
	if err != nil {
		return nil, err
	}
	return api.chain.CodeAt(ctx, addr, n)
}

func (api *ethAPI) GetStorageAt(ctx context.Context, addr common.Address, key common.Hash, b *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	n, err := api.blockNumber(ctx, b)
	if err != nil {
		return nil, err
	}
	return api.chain.StorageAt(ctx, addr, key, n)
}

func (api *ethAPI) GetTransactionCount(ctx context.Context, addr common.Address, b *rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	n, err := api.blockNumber(ctx, b)
	if err != nil {
		return 0, err
	}
	nonce, err := api.chain.NonceAt(ctx, addr, n)
	return hexutil.Uint64(nonce), err
}

func (api *ethAPI) GasPrice(ctx context.Context) (*hexutil.Big, error) {
	p, err := api.chain.SuggestGasPrice(ctx)
	return (*hexutil.Big)(p), err
}

func (api *ethAPI) MaxPriorityFeePerGas(ctx context.Context) (*hexutil.Big, error) {
	p, err := api.chain.SuggestGasTipCap(ctx)
	return (*hexutil.Big)(p), err
}

func (api *ethAPI) Call(ctx context.Context, args callArgs, b *rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	n, err := api.blockNumber(ctx, b)
	if err != nil {
		return nil, err
	}
	out, err := api.chain.CallContract(ctx, args.msg(), n)
	if err != nil {
		return nil, revertErr(err)
	}
	return out, nil
}

func (api *ethAPI) EstimateGas(ctx context.Context, args callArgs, _ *rpc.BlockNumberOrHash) (hexutil.Uint64, error) {
	gas, err := api.chain.EstimateGas(ctx, args.msg())
	if err != nil {
		return 0, revertErr(err)
	}
	return hexutil.Uint64(gas), nil
}

func (api *ethAPI) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	if err := api.chain.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (api *ethAPI) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := api.chain.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return r, err
}

func (api *ethAPI) GetTransactionByHash(ctx context.Context, hash common.Hash) (map[string]interface{}, error) {
	tx, _, err := api.chain.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := api.chain.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	return marshalTx(tx, r.BlockHash, r.BlockNumber.Uint64())
}

func (api *ethAPI) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	var n *big.Int
	if number >= 0 {
		n = big.NewInt(number.Int64())
	}
	b, err := api.chain.BlockByNumber(ctx, n)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return marshalBlock(b, fullTx)
}

func (api *ethAPI) GetBlockByHash(ctx context.Context, hash common.Hash, fullTx bool) (map[string]interface{}, error) {
	b, err := api.chain.BlockByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return marshalBlock(b, fullTx)
}

// filterArgs is the eth_getLogs filter object.
type filterArgs struct {
	BlockHash *common.Hash      `json:"blockHash"`
	FromBlock *rpc.BlockNumber  `json:"fromBlock"`
	ToBlock   *rpc.BlockNumber  `json:"toBlock"`
	Address   json.RawMessage   `json:"address"`
	Topics    []json.RawMessage `json:"topics"`
}

// oneOrMany decodes null, a single value or an array of values.
func oneOrMany[T any](raw json.RawMessage) ([]T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		err := json.Unmarshal(raw, &out)
		return out, err
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func (f filterArgs) query() (ethereum.FilterQuery, error) {
	q := ethereum.FilterQuery{BlockHash: f.BlockHash}
	if f.FromBlock != nil && *f.FromBlock >= 0 {
		q.FromBlock = big.NewInt(f.FromBlock.Int64())
	}
	if f.ToBlock != nil && *f.ToBlock >= 0 {
		q.ToBlock = big.NewInt(f.ToBlock.Int64())
	}
	addrs, err := oneOrMany[common.Address](f.Address)
	if err != nil {
		return q, fmt.Errorf("invalid address filter: %w", err)
	}
	q.Addresses = addrs
	for i, raw := range f.Topics {
		hashes, err := oneOrMany[common.Hash](raw)
		if err != nil {
			return q, fmt.Errorf("invalid topic %d: %w", i, err)
		}
		q.Topics = append(q.Topics, hashes)
	}
	return q, nil
}

func (api *ethAPI) GetLogs(ctx context.Context, args filterArgs) ([]types.Log, error) {
	q, err := args.query()
	if err != nil {
		return nil, err
	}
	logs, err := api.chain.FilterLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []types.Log{}
	}
	return logs, nil
}

type netAPI struct {
	chain *devchain.Chain
}

func (api *netAPI) Version() string {
	return strconv.FormatUint(api.chain.Config().ChainID, 10)
}

func (api *netAPI) Listening() bool { return true }

type web3API struct{}

func (web3API) ClientVersion() string { return clientVersion }

// evmAPI implements the hardhat/ganache test methods.
type evmAPI struct {
	chain *devchain.Chain
}

func (api *evmAPI) Snapshot() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.Snapshot())
}

// Revert reports false for unknown snapshots instead of failing.
func (api *evmAPI) Revert(id hexutil.Uint64) bool {
	return api.chain.Revert(uint64(id)) == nil
}

func (api *evmAPI) Mine() string {
	api.chain.Mine()
	return "0x0"
}
