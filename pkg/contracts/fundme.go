package contracts

import (
	"math/big"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// Storage layout of FundMe.
const (
	slotAmountFunded = 0 // mapping(address => uint256)
	slotFunders      = 1 // address[]
	slotPriceFeed    = 2 // AggregatorV3Interface
)

var (
	// MinimumUSD is the smallest accepted contribution, 18 decimals.
	MinimumUSD = new(big.Int).Mul(big.NewInt(50), big.NewInt(params.Ether))

	feedScale = big.NewInt(1e10)
	weiScale  = big.NewInt(params.Ether)
)

// FundMeArtifact deploys FundMe(priceFeed). The deployer becomes the owner.
var FundMeArtifact = devchain.Artifact{
	Name: "FundMe",
	Deploy: func(f *devchain.Frame, args []byte) (devchain.Contract, error) {
		vals, err := ParsedFundMe.Constructor.Inputs.Unpack(args)
		if err != nil {
			return nil, devchain.Revert(nil, "bad constructor arguments")
		}
		feed := vals[0].(common.Address)
		if err := f.Store(slot(slotPriceFeed), addressWord(feed)); err != nil {
			return nil, err
		}
		return newFundMe(f.Caller()), nil
	},
}

type fundMe struct {
	owner common.Address // immutable
	d     *dispatcher
}

func newFundMe(owner common.Address) *fundMe {
	c := &fundMe{owner: owner}
	c.d = &dispatcher{
		abi: ParsedFundMe,
		methods: map[string]handler{
			"fund":                     func(f *devchain.Frame, _ []interface{}) ([]interface{}, error) { return nil, c.fund(f) },
			"withdraw":                 func(f *devchain.Frame, _ []interface{}) ([]interface{}, error) { return nil, c.withdraw(f, false) },
			"cheaperWithdraw":          func(f *devchain.Frame, _ []interface{}) ([]interface{}, error) { return nil, c.withdraw(f, true) },
			"getOwner":                 c.getOwner,
			"getFunders":               c.getFunders,
			"getFundersCount":          c.getFundersCount,
			"getAddressToAmountFunded": c.getAddressToAmountFunded,
			"getPriceFeed":             c.getPriceFeed,
			"getVersion":               c.getVersion,
			"MINIMUM_USD": func(*devchain.Frame, []interface{}) ([]interface{}, error) {
				return []interface{}{new(big.Int).Set(MinimumUSD)}, nil
			},
		},
		receive:  c.fund,
		fallback: c.fund,
	}
	return c
}

func (c *fundMe) Run(f *devchain.Frame, input []byte) ([]byte, error) {
	return c.d.run(f, input)
}

func (c *fundMe) priceFeed(f *devchain.Frame) (common.Address, error) {
	w, err := f.Load(slot(slotPriceFeed))
	if err != nil {
		return common.Address{}, err
	}
	return wordAddress(w), nil
}

// conversionRate converts a wei amount to USD with 18 decimals using the
// feed answer (8 decimals).
func (c *fundMe) conversionRate(f *devchain.Frame, wei *big.Int) (*big.Int, error) {
	feed, err := c.priceFeed(f)
	if err != nil {
		return nil, err
	}
	input, err := ParsedMockV3Aggregator.Pack("latestRoundData")
	if err != nil {
		return nil, err
	}
	out, err := f.StaticCall(feed, input)
	if err != nil {
		return nil, err
	}
	vals, err := ParsedMockV3Aggregator.Unpack("latestRoundData", out)
	if err != nil {
		return nil, devchain.Revert(nil, "price feed returned no data")
	}
	price := new(big.Int).Mul(vals[1].(*big.Int), feedScale)
	usd := new(big.Int).Mul(price, wei)
	return usd.Div(usd, weiScale), nil
}

func (c *fundMe) fund(f *devchain.Frame) error {
	value := f.Value()
	usd, err := c.conversionRate(f, value)
	if err != nil {
		return err
	}
	if usd.Cmp(MinimumUSD) < 0 {
		return customError(ParsedFundMe, ErrNameNotEnoughETH)
	}

	sender := f.Caller()
	key, err := mappingSlot(f, addressWord(sender), slotAmountFunded)
	if err != nil {
		return err
	}
	cur, err := f.Load(key)
	if err != nil {
		return err
	}
	if err := f.Store(key, uintWord(new(big.Int).Add(wordUint(cur), value))); err != nil {
		return err
	}

	n, err := f.Load(slot(slotFunders))
	if err != nil {
		return err
	}
	length := wordUint(n).Uint64()
	elem, err := arraySlot(f, slotFunders, length)
	if err != nil {
		return err
	}
	if err := f.Store(slot(slotFunders), uintWord(new(big.Int).SetUint64(length+1))); err != nil {
		return err
	}
	if err := f.Store(elem, addressWord(sender)); err != nil {
		return err
	}

	data, err := ParsedFundMe.Events["Funded"].Inputs.NonIndexed().Pack(value)
	if err != nil {
		return err
	}
	return f.Emit([]common.Hash{ParsedFundMe.Events["Funded"].ID, addressWord(sender)}, data)
}

// withdraw resets every funder, clears the funders array and sends the
// whole balance to the owner. The cheap variant reads the array length
// once instead of on every loop iteration.
func (c *fundMe) withdraw(f *devchain.Frame, cheap bool) error {
	if f.Caller() != c.owner {
		return customError(ParsedFundMe, ErrNameNotOwner)
	}

	lengthOf := func() (uint64, error) {
		w, err := f.Load(slot(slotFunders))
		if err != nil {
			return 0, err
		}
		return wordUint(w).Uint64(), nil
	}

	length, err := lengthOf()
	if err != nil {
		return err
	}
	for i := uint64(0); i < length; i++ {
		elem, err := arraySlot(f, slotFunders, i)
		if err != nil {
			return err
		}
		w, err := f.Load(elem)
		if err != nil {
			return err
		}
		key, err := mappingSlot(f, w, slotAmountFunded)
		if err != nil {
			return err
		}
		if err := f.Store(key, common.Hash{}); err != nil {
			return err
		}
		if !cheap {
			if length, err = lengthOf(); err != nil {
				return err
			}
		}
	}

	// s_funders = new address[](0)
	for i := uint64(0); i < length; i++ {
		elem, err := arraySlot(f, slotFunders, i)
		if err != nil {
			return err
		}
		if err := f.Store(elem, common.Hash{}); err != nil {
			return err
		}
	}
	if err := f.Store(slot(slotFunders), common.Hash{}); err != nil {
		return err
	}

	balance, err := f.Balance(f.Address())
	if err != nil {
		return err
	}
	if err := f.Transfer(c.owner, balance); err != nil {
		return devchain.Revert(nil, "call failed")
	}

	ev := ParsedFundMe.Events["Withdrawn"]
	data, err := ev.Inputs.NonIndexed().Pack(balance, new(big.Int).SetUint64(length))
	if err != nil {
		return err
	}
	return f.Emit([]common.Hash{ev.ID, addressWord(c.owner)}, data)
}

func (c *fundMe) getOwner(*devchain.Frame, []interface{}) ([]interface{}, error) {
	return []interface{}{c.owner}, nil
}

func (c *fundMe) getFunders(f *devchain.Frame, args []interface{}) ([]interface{}, error) {
	index := args[0].(*big.Int)
	n, err := f.Load(slot(slotFunders))
	if err != nil {
		return nil, err
	}
	if index.Cmp(wordUint(n)) >= 0 {
		// Panic(0x32): array index out of bounds
		return nil, devchain.Revert(panicData(0x32), "array index out of bounds")
	}
	elem, err := arraySlot(f, slotFunders, index.Uint64())
	if err != nil {
		return nil, err
	}
	w, err := f.Load(elem)
	if err != nil {
		return nil, err
	}
	return []interface{}{wordAddress(w)}, nil
}

func (c *fundMe) getFundersCount(f *devchain.Frame, _ []interface{}) ([]interface{}, error) {
	n, err := f.Load(slot(slotFunders))
	if err != nil {
		return nil, err
	}
	return []interface{}{wordUint(n)}, nil
}

func (c *fundMe) getAddressToAmountFunded(f *devchain.Frame, args []interface{}) ([]interface{}, error) {
	key, err := mappingSlot(f, addressWord(args[0].(common.Address)), slotAmountFunded)
	if err != nil {
		return nil, err
	}
	w, err := f.Load(key)
	if err != nil {
		return nil, err
	}
	return []interface{}{wordUint(w)}, nil
}

func (c *fundMe) getPriceFeed(f *devchain.Frame, _ []interface{}) ([]interface{}, error) {
	feed, err := c.priceFeed(f)
	if err != nil {
		return nil, err
	}
	return []interface{}{feed}, nil
}

func (c *fundMe) getVersion(f *devchain.Frame, _ []interface{}) ([]interface{}, error) {
	feed, err := c.priceFeed(f)
	if err != nil {
		return nil, err
	}
	input, err := ParsedMockV3Aggregator.Pack("version")
	if err != nil {
		return nil, err
	}
	out, err := f.StaticCall(feed, input)
	if err != nil {
		return nil, err
	}
	vals, err := ParsedMockV3Aggregator.Unpack("version", out)
	if err != nil {
		return nil, devchain.Revert(nil, "price feed returned no data")
	}
	return vals, nil
}

// panicData encodes a Solidity Panic(uint256) revert.
func panicData(code int64) []byte {
	sel := []byte{0x4e, 0x48, 0x7b, 0x71}
	return append(sel, common.BigToHash(big.NewInt(code)).Bytes()...)
}
