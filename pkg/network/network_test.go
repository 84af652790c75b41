package network

import (
	"regexp"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func TestRegistry_BuiltIns(t *testing.T) {
	c, ok := Get(11155111)
	require.True(t, ok)
	assert.Equal(t, "sepolia", c.Name)
	assert.Equal(t, common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306"), c.EthUsdPriceFeed)

	c, ok = Get(5)
	require.True(t, ok)
	assert.Equal(t, "goerli", c.Name)

	// The dev chain is never registered; callers fall back to the mock feed.
	_, ok = Get(DevChainID)
	assert.False(t, ok)
}

func TestRegistry_AllWellFormed(t *testing.T) {
	all := All()
	assert.GreaterOrEqual(t, len(all), 2)
	for i, c := range all {
		assert.NotEmpty(t, c.Name)
		assert.Regexp(t, addrPattern, c.EthUsdPriceFeed.Hex())
		assert.True(t, common.IsHexAddress(c.EthUsdPriceFeed.Hex()))
		if i > 0 {
			assert.Less(t, all[i-1].ChainID, c.ChainID)
		}
	}
}

func TestRegister(t *testing.T) {
	feed := common.HexToAddress("0x0715A7794a1dc8e42615F059dD6e406A6594651A")
	err := Register(Config{ChainID: 80001, Name: "mumbai", EthUsdPriceFeed: feed})
	assert.NoError(t, err)

	// Same settings again is fine
	assert.NoError(t, Register(Config{ChainID: 80001, Name: "mumbai", EthUsdPriceFeed: feed}))

	err = Register(Config{ChainID: 80001, Name: "other", EthUsdPriceFeed: feed})
	assert.ErrorIs(t, err, ErrConflict)

	err = Register(Config{ChainID: 1234, EthUsdPriceFeed: feed})
	assert.ErrorIs(t, err, ErrInvalidName)

	err = Register(Config{ChainID: 1234, Name: "zero"})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	c, ok := ByName("mumbai")
	assert.True(t, ok)
	assert.Equal(t, uint64(80001), c.ChainID)
}

func TestRegister_DuplicateName(t *testing.T) {
	err := Register(Config{ChainID: 999, Name: "sepolia", EthUsdPriceFeed: common.HexToAddress("0x01")})
	assert.ErrorIs(t, err, ErrConflict)

	_, ok := Get(999)
	assert.False(t, ok)
	for i := 0; i < 20; i++ {
		c, ok := ByName("sepolia")
		assert.True(t, ok)
		assert.Equal(t, uint64(11155111), c.ChainID)
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306")
	assert.NoError(t, err)
	assert.Equal(t, "0x694AA1769357215DE4FAC081bf1f309aDC325306", a.Hex())

	_, err = ParseAddress("0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, IsDevelopment("hardhat"))
	assert.True(t, IsDevelopment("localhost"))
	assert.False(t, IsDevelopment("sepolia"))
	assert.False(t, IsDevelopment(""))

	// Returned slice is a copy
	chains := DevelopmentChains()
	chains[0] = "mainnet"
	assert.True(t, IsDevelopment("hardhat"))
}

func TestMockSeed(t *testing.T) {
	s := MockSeed()
	assert.Equal(t, uint8(8), s.Decimals)
	assert.Equal(t, "229700000000", s.InitialAnswer.String())

	s.InitialAnswer.SetInt64(1)
	assert.Equal(t, int64(229700000000), MockSeed().InitialAnswer.Int64())
}
