package deploy

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/84hero/fundme/pkg/devchain"
	"github.com/84hero/fundme/pkg/fundme"
	"github.com/84hero/fundme/pkg/network"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeployer(t *testing.T, cfg devchain.Config, name string) (*devchain.Chain, *Deployer, storage.Persistence) {
	t.Helper()
	c := devchain.New(cfg, contracts.Artifacts()...)
	opts, err := c.Accounts()[0].TransactOpts(new(big.Int).SetUint64(c.Config().ChainID))
	require.NoError(t, err)
	store := storage.NewMemoryStore("")
	return c, New(c, opts, store, Options{Network: name}), store
}

func TestRun_AllOnDevelopment(t *testing.T) {
	ctx := context.Background()
	c, d, _ := newDeployer(t, devchain.Config{}, "hardhat")

	res, err := d.Run(ctx, TagAll)
	require.NoError(t, err)
	assert.Equal(t, "hardhat", res.Network)
	require.Len(t, res.Deployments, 2)

	mock, ok := res.Address(NameMockV3Aggregator)
	require.True(t, ok)
	fm, ok := res.Address(NameFundMe)
	require.True(t, ok)

	feed, err := fundme.NewFundMe(fm, c).GetPriceFeed(nil)
	require.NoError(t, err)
	assert.Equal(t, mock, feed)

	answer, err := fundme.NewMockV3Aggregator(mock, c).LatestAnswer(nil)
	require.NoError(t, err)
	assert.Equal(t, network.MockSeed().InitialAnswer, answer)
}

func TestRun_DefaultsToAll(t *testing.T) {
	_, d, _ := newDeployer(t, devchain.Config{}, "localhost")
	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Deployments, 2)
}

func TestRun_ReusesLiveDeployments(t *testing.T) {
	ctx := context.Background()
	c, d, _ := newDeployer(t, devchain.Config{}, "hardhat")

	first, err := d.Run(ctx, TagAll)
	require.NoError(t, err)
	height, _ := c.BlockNumber(ctx)

	second, err := d.Run(ctx, TagAll)
	require.NoError(t, err)
	assert.Equal(t, first.Deployments[NameFundMe].TxHash, second.Deployments[NameFundMe].TxHash)
	after, _ := c.BlockNumber(ctx)
	assert.Equal(t, height, after)
}

func TestRun_RedeploysWhenCodeIsGone(t *testing.T) {
	ctx := context.Background()
	c, d, _ := newDeployer(t, devchain.Config{}, "hardhat")
	genesis := c.Snapshot()

	first, err := d.Run(ctx, TagAll)
	require.NoError(t, err)
	require.NoError(t, c.Revert(genesis))

	// same nonces, same addresses, but new transactions
	second, err := d.Run(ctx, TagAll)
	require.NoError(t, err)
	assert.Equal(t, first.Deployments[NameFundMe].Address, second.Deployments[NameFundMe].Address)
	code, err := c.CodeAt(ctx, second.Deployments[NameFundMe].Address, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestRun_FundMeWithoutMocks(t *testing.T) {
	_, d, _ := newDeployer(t, devchain.Config{}, "hardhat")
	_, err := d.Run(context.Background(), TagFundMe)
	assert.ErrorIs(t, err, ErrNoPriceFeed)
}

func TestRun_MocksOnly(t *testing.T) {
	_, d, _ := newDeployer(t, devchain.Config{}, "hardhat")
	res, err := d.Run(context.Background(), TagMocks)
	require.NoError(t, err)
	_, ok := res.Address(NameFundMe)
	assert.False(t, ok)
	_, ok = res.Address(NameMockV3Aggregator)
	assert.True(t, ok)
}

func TestRun_UnknownTag(t *testing.T) {
	_, d, _ := newDeployer(t, devchain.Config{}, "hardhat")
	_, err := d.Run(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestRun_LiveNetworkUsesRegistry(t *testing.T) {
	ctx := context.Background()
	c, d, _ := newDeployer(t, devchain.Config{ChainID: 11155111}, "sepolia")

	res, err := d.Run(ctx, TagAll)
	require.NoError(t, err)
	_, ok := res.Address(NameMockV3Aggregator)
	assert.False(t, ok, "mocks are never deployed on live networks")

	fm, ok := res.Address(NameFundMe)
	require.True(t, ok)
	feed, err := fundme.NewFundMe(fm, c).GetPriceFeed(nil)
	require.NoError(t, err)
	want, _ := network.Get(11155111)
	assert.Equal(t, want.EthUsdPriceFeed, feed)
}

func TestRun_UnregisteredLiveNetwork(t *testing.T) {
	_, d, _ := newDeployer(t, devchain.Config{ChainID: 424242}, "mystery")
	_, err := d.Run(context.Background(), TagAll)
	assert.ErrorIs(t, err, ErrNoPriceFeed)
}

func TestRun_WaitsForConfirmations(t *testing.T) {
	c := devchain.New(devchain.Config{}, contracts.Artifacts()...)
	opts, err := c.Accounts()[0].TransactOpts(new(big.Int).SetUint64(c.Config().ChainID))
	require.NoError(t, err)
	d := New(c, opts, storage.NewMemoryStore(""), Options{Network: "hardhat", Confirmations: 3, PollInterval: 10 * time.Millisecond})

	// nothing else mines blocks, so the wait can only end with the context
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = d.Run(ctx, TagMocks)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFixture(t *testing.T) {
	ctx := context.Background()
	c, d, _ := newDeployer(t, devchain.Config{}, "hardhat")
	fx := NewFixture(ChainSnapshots(c), d, TagAll)

	res, err := fx.Load(ctx)
	require.NoError(t, err)
	height, _ := c.BlockNumber(ctx)
	addr, _ := res.Address(NameFundMe)
	fm := fundme.NewFundMe(addr, c)

	for i := 0; i < 2; i++ {
		opts, err := c.Accounts()[1].TransactOpts(new(big.Int).SetUint64(c.Config().ChainID))
		require.NoError(t, err)
		opts.Value = big.NewInt(params.Ether)
		tx, err := fm.Fund(opts)
		require.NoError(t, err)
		_, err = bind.WaitMined(ctx, c, tx)
		require.NoError(t, err)

		count, err := fm.GetFundersCount(nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count.Int64())

		again, err := fx.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, res.Deployments, again.Deployments)

		count, err = fm.GetFundersCount(nil)
		require.NoError(t, err)
		assert.Zero(t, count.Sign())
		n, _ := c.BlockNumber(ctx)
		assert.Equal(t, height, n)
	}
}
