package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	_, err := NewNode(context.Background(), NodeConfig{URL: "invalid", Priority: 10})
	assert.Error(t, err)
}

func TestNode_ProxyMethods(t *testing.T) {
	ctx := context.Background()
	mockEth := new(MockEthClient)
	node := NewNodeWithClient(NodeConfig{URL: "test", Priority: 10}, mockEth)
	addr := common.HexToAddress("0x1")

	mockEth.On("BlockNumber", ctx).Return(uint64(100), nil).Once()
	h, err := node.BlockNumber(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), h)
	assert.Equal(t, uint64(100), node.GetLatestBlock())

	mockEth.On("ChainID", ctx).Return(big.NewInt(1), nil).Once()
	id, err := node.ChainID(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())

	mockEth.On("HeaderByNumber", ctx, big.NewInt(120)).Return(&types.Header{Number: big.NewInt(120)}, nil).Once()
	_, err = node.HeaderByNumber(ctx, big.NewInt(120))
	assert.NoError(t, err)
	assert.Equal(t, uint64(120), node.GetLatestBlock())

	mockEth.On("BlockByNumber", ctx, big.NewInt(100)).Return(types.NewBlockWithHeader(&types.Header{Number: big.NewInt(100)}), nil).Once()
	_, err = node.BlockByNumber(ctx, big.NewInt(100))
	assert.NoError(t, err)
	assert.Equal(t, uint64(120), node.GetLatestBlock(), "height never moves backwards")

	mockEth.On("BalanceAt", ctx, addr, (*big.Int)(nil)).Return(big.NewInt(5), nil).Once()
	bal, err := node.BalanceAt(ctx, addr, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), bal.Int64())

	mockEth.On("CodeAt", ctx, addr, big.NewInt(100)).Return([]byte{0x1}, nil).Once()
	_, err = node.CodeAt(ctx, addr, big.NewInt(100))
	assert.NoError(t, err)

	mockEth.On("PendingNonceAt", ctx, addr).Return(uint64(7), nil).Once()
	nonce, err := node.PendingNonceAt(ctx, addr)
	assert.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)

	mockEth.On("FilterLogs", ctx, ethereum.FilterQuery{}).Return([]types.Log{}, nil).Once()
	_, err = node.FilterLogs(ctx, ethereum.FilterQuery{})
	assert.NoError(t, err)

	mockEth.On("Close").Once()
	node.Close()
	mockEth.AssertExpectations(t)
}

func TestNode_Score(t *testing.T) {
	n := &Node{config: NodeConfig{Priority: 10}}
	assert.Equal(t, int64(1000), n.Score(0))

	n.RecordMetric(time.Now().Add(-100*time.Millisecond), nil)
	// Score: 1000 - (100/10) = 990
	assert.Equal(t, int64(990), n.Score(0))

	n2 := &Node{config: NodeConfig{Priority: 10}}
	n2.RecordMetric(time.Now(), errors.New("fail"))
	assert.Equal(t, int64(500), n2.Score(0))
}

func TestNode_ScoreLag(t *testing.T) {
	n := &Node{config: NodeConfig{Priority: 10}}
	n.UpdateHeight(100)
	// Lag of 20 blocks: 1000 - 20*50 = 0
	assert.Equal(t, int64(0), n.Score(120))
	// Small lags are tolerated.
	assert.Equal(t, int64(1000), n.Score(104))
}

func TestNode_CallErrorsDoNotCount(t *testing.T) {
	n := &Node{config: NodeConfig{Priority: 10}}
	n.RecordMetric(time.Now(), ethereum.NotFound)
	assert.Zero(t, n.GetErrorCount())
	assert.Zero(t, n.GetTotalErrors())
}

func TestNode_TryAcquire(t *testing.T) {
	ctx := context.Background()
	n := NewNodeWithClient(NodeConfig{URL: "test", MaxConcurrent: 1}, new(MockEthClient))

	require.NoError(t, n.TryAcquire(ctx))
	assert.ErrorIs(t, n.TryAcquire(ctx), ErrNodeBusy)
	n.Release()
	require.NoError(t, n.TryAcquire(ctx))
	n.Release()
	// Extra releases are harmless.
	n.Release()

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, n.TryAcquire(canceled), context.Canceled)
}

func TestNode_RateLimit(t *testing.T) {
	ctx := context.Background()
	n := NewNodeWithClient(NodeConfig{URL: "test", RateLimit: 1}, new(MockEthClient))

	require.NoError(t, n.TryAcquire(ctx))
	assert.ErrorIs(t, n.TryAcquire(ctx), ErrRateLimitExceeded)
}

func TestNode_MeetsHeightRequirement(t *testing.T) {
	n := &Node{}
	n.UpdateHeight(50)
	assert.True(t, n.MeetsHeightRequirement(50))
	assert.False(t, n.MeetsHeightRequirement(51))
}

func TestNodeGetters(t *testing.T) {
	n := &Node{config: NodeConfig{URL: "http://test", Priority: 5}}
	assert.Equal(t, "http://test", n.URL())
	assert.Equal(t, 5, n.Priority())
	assert.Zero(t, n.GetLatency())
}
