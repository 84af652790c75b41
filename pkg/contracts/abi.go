package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// FundMeABI is the interface of the FundMe crowdfunding contract.
const FundMeABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"priceFeed","type":"address"}]},
	{"type":"error","name":"FundMe__NotOwner","inputs":[]},
	{"type":"error","name":"FundMe_NotEnoghETH","inputs":[]},
	{"type":"event","name":"Funded","anonymous":false,"inputs":[{"name":"funder","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdrawn","anonymous":false,"inputs":[{"name":"owner","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false},{"name":"funders","type":"uint256","indexed":false}]},
	{"type":"function","name":"MINIMUM_USD","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"cheaperWithdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"fund","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"getAddressToAmountFunded","stateMutability":"view","inputs":[{"name":"fundingAddress","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getFunders","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getFundersCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getOwner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getPriceFeed","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getVersion","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"receive","stateMutability":"payable"},
	{"type":"fallback","stateMutability":"payable"}
]`

// MockV3AggregatorABI is the interface of the Chainlink price feed mock.
const MockV3AggregatorABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"_decimals","type":"uint8"},{"name":"_initialAnswer","type":"int256"}]},
	{"type":"event","name":"AnswerUpdated","anonymous":false,"inputs":[{"name":"current","type":"int256","indexed":true},{"name":"roundId","type":"uint256","indexed":true},{"name":"updatedAt","type":"uint256","indexed":false}]},
	{"type":"event","name":"NewRound","anonymous":false,"inputs":[{"name":"roundId","type":"uint256","indexed":true},{"name":"startedBy","type":"address","indexed":true},{"name":"startedAt","type":"uint256","indexed":false}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"description","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"getAnswer","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"int256"}]},
	{"type":"function","name":"getRoundData","stateMutability":"view","inputs":[{"name":"_roundId","type":"uint80"}],"outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]},
	{"type":"function","name":"getTimestamp","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"latestAnswer","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int256"}]},
	{"type":"function","name":"latestRound","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]},
	{"type":"function","name":"latestTimestamp","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"updateAnswer","stateMutability":"nonpayable","inputs":[{"name":"_answer","type":"int256"}],"outputs":[]},
	{"type":"function","name":"updateRoundData","stateMutability":"nonpayable","inputs":[{"name":"_roundId","type":"uint80"},{"name":"_answer","type":"int256"},{"name":"_timestamp","type":"uint256"},{"name":"_startedAt","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"version","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// Error names declared by FundMe.
const (
	ErrNameNotOwner       = "FundMe__NotOwner"
	ErrNameNotEnoughETH   = "FundMe_NotEnoghETH"
	AggregatorDescription = "v0.6/tests/MockV3Aggregator.sol"
	AggregatorVersion     = 0
)

// Parsed ABIs.
var (
	ParsedFundMe           = mustParse(FundMeABI)
	ParsedMockV3Aggregator = mustParse(MockV3AggregatorABI)
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RevertName resolves revert data to a custom error name of a, or to the
// reason of a plain Error(string) revert.
func RevertName(a abi.ABI, data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	if e, err := a.ErrorByID([4]byte(data[:4])); err == nil {
		return e.Name, true
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason, true
	}
	return "", false
}
