// Package fundme provides typed bindings for the FundMe and MockV3Aggregator
// contracts. They work against any bind.ContractBackend: the in-process
// dev chain, a dev node or a live network through ethclient.
package fundme

import (
	"context"
	"fmt"
	"math/big"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is what the bindings need from a chain connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type bound struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	backend  Backend
}

func newBound(address common.Address, parsed abi.ABI, backend Backend) bound {
	return bound{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
	}
}

func (b *bound) call(opts *bind.CallOpts, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(opts, &out, method, params...); err != nil {
		return nil, wrapRevert(b.abi, err)
	}
	return out, nil
}

func (b *bound) callBig(opts *bind.CallOpts, method string, params ...interface{}) (*big.Int, error) {
	out, err := b.call(opts, method, params...)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (b *bound) callAddress(opts *bind.CallOpts, method string, params ...interface{}) (common.Address, error) {
	out, err := b.call(opts, method, params...)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (b *bound) transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	input, err := b.abi.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return b.transactRaw(opts, input)
}

// transactRaw always estimates gas first so that reverts surface as
// *RevertError instead of a mined failure. A preset GasLimit caps the
// estimate and is kept for the transaction.
func (b *bound) transactRaw(opts *bind.TransactOpts, input []byte) (*types.Transaction, error) {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	gas, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  opts.From,
		To:    &b.address,
		Gas:   opts.GasLimit,
		Value: opts.Value,
		Data:  input,
	})
	if err != nil {
		return nil, wrapRevert(b.abi, err)
	}
	if opts.GasLimit == 0 {
		withGas := *opts
		withGas.GasLimit = gas
		opts = &withGas
	}
	tx, err := b.contract.RawTransact(opts, input)
	if err != nil {
		return nil, wrapRevert(b.abi, err)
	}
	return tx, nil
}

// FundMe is a binding to a deployed FundMe contract.
type FundMe struct {
	bound
}

// NewFundMe binds an existing FundMe deployment.
func NewFundMe(address common.Address, backend Backend) *FundMe {
	return &FundMe{bound: newBound(address, contracts.ParsedFundMe, backend)}
}

// DeployFundMe deploys FundMe with the given price feed.
func DeployFundMe(opts *bind.TransactOpts, backend Backend, priceFeed common.Address) (common.Address, *types.Transaction, *FundMe, error) {
	addr, tx, _, err := bind.DeployContract(opts, contracts.ParsedFundMe, contracts.FundMeArtifact.Bin(), backend, priceFeed)
	if err != nil {
		return common.Address{}, nil, nil, wrapRevert(contracts.ParsedFundMe, err)
	}
	return addr, tx, NewFundMe(addr, backend), nil
}

// Address returns the contract address.
func (c *FundMe) Address() common.Address { return c.address }

// Fund sends opts.Value to fund().
func (c *FundMe) Fund(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.transact(opts, "fund")
}

// Transfer sends plain ether, which the contract's receive routes to fund.
func (c *FundMe) Transfer(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.transactRaw(opts, nil)
}

// Fallback sends arbitrary calldata, which the contract's fallback routes to fund.
func (c *FundMe) Fallback(opts *bind.TransactOpts, calldata []byte) (*types.Transaction, error) {
	return c.transactRaw(opts, calldata)
}

// Withdraw calls withdraw().
func (c *FundMe) Withdraw(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.transact(opts, "withdraw")
}

// CheaperWithdraw calls cheaperWithdraw().
func (c *FundMe) CheaperWithdraw(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.transact(opts, "cheaperWithdraw")
}

func (c *FundMe) GetOwner(opts *bind.CallOpts) (common.Address, error) {
	return c.callAddress(opts, "getOwner")
}

func (c *FundMe) GetPriceFeed(opts *bind.CallOpts) (common.Address, error) {
	return c.callAddress(opts, "getPriceFeed")
}

func (c *FundMe) GetFunder(opts *bind.CallOpts, index *big.Int) (common.Address, error) {
	return c.callAddress(opts, "getFunders", index)
}

func (c *FundMe) GetFundersCount(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "getFundersCount")
}

func (c *FundMe) GetAddressToAmountFunded(opts *bind.CallOpts, funder common.Address) (*big.Int, error) {
	return c.callBig(opts, "getAddressToAmountFunded", funder)
}

func (c *FundMe) GetVersion(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "getVersion")
}

func (c *FundMe) MinimumUSD(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "MINIMUM_USD")
}

// Funders returns the whole funders sequence.
func (c *FundMe) Funders(opts *bind.CallOpts) ([]common.Address, error) {
	n, err := c.GetFundersCount(opts)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, n.Uint64())
	for i := uint64(0); i < n.Uint64(); i++ {
		a, err := c.GetFunder(opts, new(big.Int).SetUint64(i))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// WaitMined waits for tx and fails with ErrTxFailed on a status 0 receipt.
func WaitMined(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTxFailed, tx.Hash().Hex())
	}
	return receipt, nil
}

// GasCost is the fee paid by the sender of a mined transaction.
func GasCost(receipt *types.Receipt) *big.Int {
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
}
