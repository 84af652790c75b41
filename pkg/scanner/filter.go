package scanner

import (
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/samber/lo"
)

// heavyLimit is the number of addresses or topics per position above which
// a block bloom is too saturated to be a useful pre-check.
const heavyLimit = 20

// Filter selects the logs a Scanner delivers. It builds eth_getLogs
// queries and pre-checks block blooms.
type Filter struct {
	// Contracts are the emitting addresses; empty matches any contract.
	Contracts []common.Address

	// Topics follow eth_getLogs semantics: position i matches any of
	// Topics[i], an empty position matches anything.
	Topics [][]common.Hash
}

func NewFilter() *Filter {
	return &Filter{}
}

// AddContract adds contract addresses, ignoring duplicates.
func (f *Filter) AddContract(addrs ...common.Address) *Filter {
	f.Contracts = lo.Uniq(append(f.Contracts, addrs...))
	return f
}

// SetTopic adds candidate hashes at position pos (0 is the event signature).
func (f *Filter) SetTopic(pos int, hashes ...common.Hash) *Filter {
	if len(f.Topics) <= pos {
		grown := make([][]common.Hash, pos+1)
		copy(grown, f.Topics)
		f.Topics = grown
	}
	f.Topics[pos] = lo.Uniq(append(f.Topics[pos], hashes...))
	return f
}

// AddEvents restricts topic 0 to the given event signatures.
func (f *Filter) AddEvents(sigs ...common.Hash) *Filter {
	return f.SetTopic(0, sigs...)
}

// ToQuery converts the filter to an inclusive block range query.
func (f *Filter) ToQuery(fromBlock, toBlock uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: f.Contracts,
		Topics:    f.Topics,
	}
}

// IsHeavy reports whether bloom pre-checks would mostly yield false positives.
func (f *Filter) IsHeavy() bool {
	return len(f.Contracts) > heavyLimit || lo.SomeBy(f.Topics, func(sub []common.Hash) bool {
		return len(sub) > heavyLimit
	})
}

// MatchesBloom returns false only when the block certainly has no
// matching log.
func (f *Filter) MatchesBloom(bloom types.Bloom) bool {
	if len(f.Contracts) > 0 && !lo.SomeBy(f.Contracts, func(a common.Address) bool { return bloom.Test(a.Bytes()) }) {
		return false
	}
	for _, sub := range f.Topics {
		if len(sub) == 0 {
			continue
		}
		if !lo.SomeBy(sub, func(h common.Hash) bool { return bloom.Test(h.Bytes()) }) {
			return false
		}
	}
	return true
}

// Matches applies the filter to a single log.
func (f *Filter) Matches(l types.Log) bool {
	if len(f.Contracts) > 0 && !lo.Contains(f.Contracts, l.Address) {
		return false
	}
	for i, sub := range f.Topics {
		if len(sub) == 0 {
			continue
		}
		if i >= len(l.Topics) || !lo.Contains(sub, l.Topics[i]) {
			return false
		}
	}
	return true
}
