package devchain

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterLogs(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	addr := deployCounter(t, c, 0)
	other := deployCounter(t, c, 0)

	for i := 0; i < 2; i++ {
		_, err := sendTx(c, c.Accounts()[1], &addr, nil, []byte{1}, 200_000)
		require.NoError(t, err)
	}
	tx, err := sendTx(c, c.Accounts()[1], &other, nil, []byte{1}, 200_000)
	require.NoError(t, err)

	logs, err := c.FilterLogs(ctx, ethereum.FilterQuery{Addresses: []common.Address{addr}})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(3), logs[0].BlockNumber)
	assert.Equal(t, uint64(4), logs[1].BlockNumber)

	logs, err = c.FilterLogs(ctx, ethereum.FilterQuery{Topics: [][]common.Hash{{incrementedTopic}}})
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	logs, err = c.FilterLogs(ctx, ethereum.FilterQuery{Topics: [][]common.Hash{{common.HexToHash("0x01")}}})
	require.NoError(t, err)
	assert.Empty(t, logs)

	logs, err = c.FilterLogs(ctx, ethereum.FilterQuery{FromBlock: big.NewInt(4), ToBlock: big.NewInt(4)})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	r := receipt(t, c, tx)
	logs, err = c.FilterLogs(ctx, ethereum.FilterQuery{BlockHash: &r.BlockHash})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, other, logs[0].Address)

	missing := common.HexToHash("0xdead")
	_, err = c.FilterLogs(ctx, ethereum.FilterQuery{BlockHash: &missing})
	assert.ErrorIs(t, err, ethereum.NotFound)
}

func TestSubscribeFilterLogs(t *testing.T) {
	c := newTestChain(t)
	addr := deployCounter(t, c, 0)
	other := deployCounter(t, c, 0)

	ch := make(chan types.Log, 4)
	sub, err := c.SubscribeFilterLogs(context.Background(), ethereum.FilterQuery{Addresses: []common.Address{addr}}, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = sendTx(c, c.Accounts()[1], &other, nil, []byte{1}, 200_000)
	require.NoError(t, err)
	_, err = sendTx(c, c.Accounts()[1], &addr, nil, []byte{1}, 200_000)
	require.NoError(t, err)

	select {
	case l := <-ch:
		assert.Equal(t, addr, l.Address)
		assert.Equal(t, uint64(4), l.BlockNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("no log received")
	}
}
