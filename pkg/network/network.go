package network

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Mock price feed seed used on development networks.
const (
	Decimals      uint8 = 8
	InitialAnswer int64 = 229700000000
)

// DevChainID is the chain id of the in-process and localhost dev chains.
const DevChainID uint64 = 31337

var (
	ErrInvalidName    = errors.New("network name is empty")
	ErrInvalidAddress = errors.New("price feed address is malformed")
	ErrConflict       = errors.New("chain id already registered with different settings")
)

// Config describes a live network the FundMe contract can be deployed to.
type Config struct {
	ChainID         uint64
	Name            string
	EthUsdPriceFeed common.Address
}

// Seed holds the constructor arguments of the mock price feed.
type Seed struct {
	Decimals      uint8
	InitialAnswer *big.Int
}

// MockSeed returns a fresh copy of the mock price feed seed.
func MockSeed() Seed {
	return Seed{Decimals: Decimals, InitialAnswer: big.NewInt(InitialAnswer)}
}

var (
	registry = make(map[uint64]Config)
	mu       sync.RWMutex
)

// DevelopmentChains lists networks where a mock price feed replaces the live one.
var developmentChains = []string{"hardhat", "localhost"}

// DevelopmentChains returns the development network names.
func DevelopmentChains() []string {
	out := make([]string, len(developmentChains))
	copy(out, developmentChains)
	return out
}

// IsDevelopment reports whether name is a development network.
func IsDevelopment(name string) bool {
	for _, n := range developmentChains {
		if n == name {
			return true
		}
	}
	return false
}

// Validate checks that a config has a name and a well-formed feed address.
func Validate(c Config) error {
	if c.Name == "" {
		return ErrInvalidName
	}
	if c.EthUsdPriceFeed == (common.Address{}) {
		return ErrInvalidAddress
	}
	return nil
}

// ParseAddress validates a hex address string.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// Register adds a network to the global registry.
// Re-registering identical settings is a no-op.
func Register(c Config) error {
	if err := Validate(c); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if old, ok := registry[c.ChainID]; ok && old != c {
		return fmt.Errorf("%w: %d", ErrConflict, c.ChainID)
	}
	// Names stay unique so ByName is deterministic.
	for id, other := range registry {
		if other.Name == c.Name && id != c.ChainID {
			return fmt.Errorf("%w: name %q already used by %d", ErrConflict, c.Name, id)
		}
	}
	registry[c.ChainID] = c
	return nil
}

// Get looks up a network by chain id. Unknown ids return false.
func Get(chainID uint64) (Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[chainID]
	return c, ok
}

// ByName finds a registered network by name.
func ByName(name string) (Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Config{}, false
}

// All returns every registered network ordered by chain id.
func All() []Config {
	mu.RLock()
	out := make([]Config, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Built-in networks
func init() {
	mustRegister(Config{
		ChainID:         11155111,
		Name:            "sepolia",
		EthUsdPriceFeed: common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306"),
	})
	mustRegister(Config{
		ChainID:         5,
		Name:            "goerli",
		EthUsdPriceFeed: common.HexToAddress("0xD4a33860578De61DBAbDc8BFdb98FD742fA7028e"),
	})
}

func mustRegister(c Config) {
	if err := Register(c); err != nil {
		panic(err)
	}
}
