package fundme

import (
	"math/big"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RoundData mirrors the latestRoundData/getRoundData tuple.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// MockV3Aggregator is a binding to a deployed price feed mock. Its read
// methods also work against real Chainlink feeds.
type MockV3Aggregator struct {
	bound
}

func NewMockV3Aggregator(address common.Address, backend Backend) *MockV3Aggregator {
	return &MockV3Aggregator{bound: newBound(address, contracts.ParsedMockV3Aggregator, backend)}
}

// DeployMockV3Aggregator deploys MockV3Aggregator(decimals, initialAnswer).
func DeployMockV3Aggregator(opts *bind.TransactOpts, backend Backend, decimals uint8, initialAnswer *big.Int) (common.Address, *types.Transaction, *MockV3Aggregator, error) {
	addr, tx, _, err := bind.DeployContract(opts, contracts.ParsedMockV3Aggregator, contracts.MockV3AggregatorArtifact.Bin(), backend, decimals, initialAnswer)
	if err != nil {
		return common.Address{}, nil, nil, wrapRevert(contracts.ParsedMockV3Aggregator, err)
	}
	return addr, tx, NewMockV3Aggregator(addr, backend), nil
}

func (c *MockV3Aggregator) Address() common.Address { return c.address }

func (c *MockV3Aggregator) Decimals(opts *bind.CallOpts) (uint8, error) {
	out, err := c.call(opts, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (c *MockV3Aggregator) Description(opts *bind.CallOpts) (string, error) {
	out, err := c.call(opts, "description")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (c *MockV3Aggregator) Version(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "version")
}

func (c *MockV3Aggregator) LatestAnswer(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "latestAnswer")
}

func (c *MockV3Aggregator) LatestRound(opts *bind.CallOpts) (*big.Int, error) {
	return c.callBig(opts, "latestRound")
}

func (c *MockV3Aggregator) LatestRoundData(opts *bind.CallOpts) (RoundData, error) {
	out, err := c.call(opts, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}
	return roundData(out), nil
}

func (c *MockV3Aggregator) GetRoundData(opts *bind.CallOpts, round *big.Int) (RoundData, error) {
	out, err := c.call(opts, "getRoundData", round)
	if err != nil {
		return RoundData{}, err
	}
	return roundData(out), nil
}

// UpdateAnswer starts a new round with answer at the current block time.
func (c *MockV3Aggregator) UpdateAnswer(opts *bind.TransactOpts, answer *big.Int) (*types.Transaction, error) {
	return c.transact(opts, "updateAnswer", answer)
}

func (c *MockV3Aggregator) UpdateRoundData(opts *bind.TransactOpts, round, answer, timestamp, startedAt *big.Int) (*types.Transaction, error) {
	return c.transact(opts, "updateRoundData", round, answer, timestamp, startedAt)
}

func roundData(out []interface{}) RoundData {
	toBig := func(v interface{}) *big.Int { return abi.ConvertType(v, new(big.Int)).(*big.Int) }
	return RoundData{
		RoundID: toBig(out[0]),
		Answer: toBig(out[1]),
		StartedAt: toBig(out[2]),
		UpdatedAt: toBig(out[3]),
		AnsweredInRound: toBig(out[4]),
	}
}
