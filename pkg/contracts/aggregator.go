package contracts

import (
	"math/big"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/ethereum/go-ethereum/common"
)

// Storage layout of MockV3Aggregator.
const (
	slotDecimals        = 0
	slotLatestAnswer    = 1
	slotLatestTimestamp = 2
	slotLatestRound     = 3
	slotGetAnswer       = 4 // mapping(uint256 => int256)
	slotGetTimestamp    = 5 // mapping(uint256 => uint256)
	slotGetStartedAt    = 6 // mapping(uint256 => uint256)
)

// MockV3AggregatorArtifact deploys MockV3Aggregator(decimals, initialAnswer).
var MockV3AggregatorArtifact = devchain.Artifact{
	Name: "MockV3Aggregator",
	Deploy: func(f *devchain.Frame, args []byte) (devchain.Contract, error) {
		vals, err := ParsedMockV3Aggregator.Constructor.Inputs.Unpack(args)
		if err != nil {
			return nil, devchain.Revert(nil, "bad constructor arguments")
		}
		c := newMockAggregator()
		decimals := vals[0].(uint8)
		if err := f.Store(slot(slotDecimals), uintWord(big.NewInt(int64(decimals)))); err != nil {
			return nil, err
		}
		if err := c.updateAnswer(f, vals[1].(*big.Int)); err != nil {
			return nil, err
		}
		return c, nil
	},
}

type mockAggregator struct {
	d *dispatcher
}

func newMockAggregator() *mockAggregator {
	c := &mockAggregator{}
	c.d = &dispatcher{
		abi: ParsedMockV3Aggregator,
		methods: map[string]handler{
			"decimals": func(f *devchain.Frame, _ []interface{}) ([]interface{}, error) {
				w, err := f.Load(slot(slotDecimals))
				if err != nil {
					return nil, err
				}
				return []interface{}{uint8(wordUint(w).Uint64())}, nil
			},
			"description": func(*devchain.Frame, []interface{}) ([]interface{}, error) {
				return []interface{}{AggregatorDescription}, nil
			},
			"version": func(*devchain.Frame, []interface{}) ([]interface{}, error) {
				return []interface{}{big.NewInt(AggregatorVersion)}, nil
			},
			"latestAnswer": func(f *devchain.Frame, _ []interface{}) ([]interface{}, error) {
				w, err := f.Load(slot(slotLatestAnswer))
				if err != nil {
					return nil, err
				}
				return []interface{}{wordInt(w)}, nil
			},
			"latestTimestamp": c.uintGetter(slotLatestTimestamp),
			"latestRound":     c.uintGetter(slotLatestRound),
			"getAnswer": func(f *devchain.Frame, args []interface{}) ([]interface{}, error) {
				w, err := c.roundValue(f, slotGetAnswer, args[0].(*big.Int))
				if err != nil {
					return nil, err
				}
				return []interface{}{wordInt(w)}, nil
			},
			"getTimestamp": func(f *devchain.Frame, args []interface{}) ([]interface{}, error) {
				w, err := c.roundValue(f, slotGetTimestamp, args[0].(*big.Int))
				if err != nil {
					return nil, err
				}
				return []interface{}{wordUint(w)}, nil
			},
			"getRoundData": func(f *devchain.Frame, args []interface{}) ([]interface{}, error) {
				return c.roundData(f, args[0].(*big.Int))
			},
			"latestRoundData": func(f *devchain.Frame, _ []interface{}) ([]interface{}, error) {
				w, err := f.Load(slot(slotLatestRound))
				if err != nil {
					return nil, err
				}
				return c.roundData(f, wordUint(w))
			},
			"updateAnswer": func(f *devchain.Frame, args []interface{}) ([]interface{}, error) {
				return nil, c.updateAnswer(f, args[0].(*big.Int))
			},
			"updateRoundData": func(f *devchain.Frame, args []interface{}) ([]interface{}, error) {
				return nil, c.updateRoundData(f, args[0].(*big.Int), args[1].(*big.Int), args[2].(*big.Int), args[3].(*big.Int))
			},
		},
	}
	return c
}

func (c *mockAggregator) Run(f *devchain.Frame, input []byte) ([]byte, error) {
	return c.d.run(f, input)
}

func (c *mockAggregator) uintGetter(n uint64) handler {
	return func(f *devchain.Frame, _ []interface{}) ([]interface{}, error) {
		w, err := f.Load(slot(n))
		if err != nil {
			return nil, err
		}
		return []interface{}{wordUint(w)}, nil
	}
}

func (c *mockAggregator) roundValue(f *devchain.Frame, mapping uint64, round *big.Int) (common.Hash, error) {
	key, err := mappingSlot(f, uintWord(round), mapping)
	if err != nil {
		return common.Hash{}, err
	}
	return f.Load(key)
}

func (c *mockAggregator) setRoundValue(f *devchain.Frame, mapping uint64, round *big.Int, val common.Hash) error {
	key, err := mappingSlot(f, uintWord(round), mapping)
	if err != nil {
		return err
	}
	return f.Store(key, val)
}

func (c *mockAggregator) roundData(f *devchain.Frame, round *big.Int) ([]interface{}, error) {
	answer, err := c.roundValue(f, slotGetAnswer, round)
	if err != nil {
		return nil, err
	}
	startedAt, err := c.roundValue(f, slotGetStartedAt, round)
	if err != nil {
		return nil, err
	}
	updatedAt, err := c.roundValue(f, slotGetTimestamp, round)
	if err != nil {
		return nil, err
	}
	id := new(big.Int).Set(round)
	return []interface{}{id, wordInt(answer), wordUint(startedAt), wordUint(updatedAt), new(big.Int).Set(round)}, nil
}

func (c *mockAggregator) updateAnswer(f *devchain.Frame, answer *big.Int) error {
	now := new(big.Int).SetUint64(f.BlockTime())
	w, err := f.Load(slot(slotLatestRound))
	if err != nil {
		return err
	}
	round := new(big.Int).Add(wordUint(w), common.Big1)
	return c.record(f, round, answer, now, now)
}

func (c *mockAggregator) updateRoundData(f *devchain.Frame, round, answer, timestamp, startedAt *big.Int) error {
	return c.record(f, round, answer, timestamp, startedAt)
}

func (c *mockAggregator) record(f *devchain.Frame, round, answer, timestamp, startedAt *big.Int) error {
	writes := []struct {
		key common.Hash
		val common.Hash
	}{
		{slot(slotLatestRound), uintWord(round)},
		{slot(slotLatestAnswer), intWord(answer)},
		{slot(slotLatestTimestamp), uintWord(timestamp)},
	}
	for _, w := range writes {
		if err := f.Store(w.key, w.val); err != nil {
			return err
		}
	}
	if err := c.setRoundValue(f, slotGetAnswer, round, intWord(answer)); err != nil {
		return err
	}
	if err := c.setRoundValue(f, slotGetTimestamp, round, uintWord(timestamp)); err != nil {
		return err
	}
	if err := c.setRoundValue(f, slotGetStartedAt, round, uintWord(startedAt)); err != nil {
		return err
	}

	updated := ParsedMockV3Aggregator.Events["AnswerUpdated"]
	data, err := updated.Inputs.NonIndexed().Pack(timestamp)
	if err != nil {
		return err
	}
	if err := f.Emit([]common.Hash{updated.ID, intWord(answer), uintWord(round)}, data); err != nil {
		return err
	}
	newRound := ParsedMockV3Aggregator.Events["NewRound"]
	data, err = newRound.Inputs.NonIndexed().Pack(startedAt)
	if err != nil {
		return err
	}
	return f.Emit([]common.Hash{newRound.ID, uintWord(round), addressWord(f.Caller())}, data)
}

// Artifacts returns every native contract the dev chain can deploy.
func Artifacts() []devchain.Artifact {
	return []devchain.Artifact{FundMeArtifact, MockV3AggregatorArtifact}
}
