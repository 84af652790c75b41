package devchain

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// FilterLogs returns the logs matching q. A BlockHash query selects a
// single block, otherwise nil bounds default to genesis and head.
func (c *Chain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from, to := uint64(0), uint64(len(c.blocks)-1)
	if q.BlockHash != nil {
		for i, b := range c.blocks {
			if b.header.Hash() == *q.BlockHash {
				from, to = uint64(i), uint64(i)
				break
			}
			if i == len(c.blocks)-1 {
				return nil, ethereum.NotFound
			}
		}
	} else {
		if q.FromBlock != nil && q.FromBlock.Sign() >= 0 {
			from = q.FromBlock.Uint64()
		}
		if q.ToBlock != nil && q.ToBlock.Sign() >= 0 && q.ToBlock.Uint64() < to {
			to = q.ToBlock.Uint64()
		}
	}

	var out []types.Log
	for i := from; i <= to && i < uint64(len(c.blocks)); i++ {
		b := c.blocks[i]
		if b.receipt == nil {
			continue
		}
		for _, l := range b.receipt.Logs {
			if matchLog(l, q) {
				out = append(out, *l)
			}
		}
	}
	return out, nil
}

// SubscribeFilterLogs streams logs of newly mined blocks that match q.
func (c *Chain) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	sink := make(chan []*types.Log)
	sub := c.logsFeed.Subscribe(sink)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case logs := <-sink:
				for _, l := range logs {
					if !matchLog(l, q) {
						continue
					}
					select {
					case ch <- *l:
					case err := <-sub.Err():
						return err
					case <-quit:
						return nil
					}
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func matchLog(l *types.Log, q ethereum.FilterQuery) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Topics) > len(l.Topics) {
		return false
	}
	for i, sub := range q.Topics {
		if len(sub) == 0 {
			continue
		}
		if !containsHash(sub, l.Topics[i]) {
			return false
		}
	}
	return true
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}
