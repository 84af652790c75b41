package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"strings"
	"time"

	"github.com/84hero/fundme/pkg/devchain"
	"github.com/84hero/fundme/pkg/harness"
	"github.com/84hero/fundme/pkg/network"
	"github.com/84hero/fundme/pkg/rpc"
	"github.com/84hero/fundme/pkg/sink"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/ethereum/go-ethereum/params"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. FUNDME_SCANNER_BATCH_SIZE.
const EnvPrefix = "FUNDME"

type Config struct {
	Project  string           `mapstructure:"project"`
	Log      LogConfig        `mapstructure:"log"`
	Network  string           `mapstructure:"network"` // hardhat, localhost or a registered live network
	Networks []NetworkEntry   `mapstructure:"networks"`
	RPC      []rpc.NodeConfig `mapstructure:"rpc_nodes"`
	Devchain DevchainConfig   `mapstructure:"devchain"`
	Deploy   DeployConfig     `mapstructure:"deploy"`
	Storage  storage.Options  `mapstructure:"storage"`
	Harness  HarnessConfig    `mapstructure:"harness"`
	Scanner  ScannerConfig    `mapstructure:"scanner"`
	Outputs  sink.Config      `mapstructure:"outputs"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// NetworkEntry adds a live network to the registry.
type NetworkEntry struct {
	ChainID         uint64 `mapstructure:"chain_id"`
	Name            string `mapstructure:"name"`
	EthUsdPriceFeed string `mapstructure:"eth_usd_price_feed"`
}

type DevchainConfig struct {
	ChainID    uint64        `mapstructure:"chain_id"`
	Accounts   int           `mapstructure:"accounts"`
	BalanceETH int64         `mapstructure:"balance_eth"`
	BlockTime  time.Duration `mapstructure:"block_time"`

	// Addr is where `fundme node` listens, URL is where localhost is reached.
	Addr string `mapstructure:"addr"`
	URL  string `mapstructure:"url"`
}

type DeployConfig struct {
	// PrivateKey signs on live networks. Usually set through PRIVATE_KEY in .env.
	PrivateKey    string        `mapstructure:"private_key"`
	Confirmations uint64        `mapstructure:"confirmations"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

type HarnessConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Bail    bool          `mapstructure:"bail"`
	Grep    string        `mapstructure:"grep"`
}

type ScannerConfig struct {
	BatchSize uint64        `mapstructure:"batch_size"`
	Interval  time.Duration `mapstructure:"interval"`

	// Confirmations: protection at the scanning endpoint
	Confirmations uint64 `mapstructure:"confirmations"`

	// Startup strategy
	StartBlock   uint64 `mapstructure:"start_block"`   // with ForceStart, always start here
	ForceStart   bool   `mapstructure:"force_start"`   // ignore the saved cursor
	Rewind       uint64 `mapstructure:"start_rewind"`  // no cursor: start from head - Rewind
	CursorRewind uint64 `mapstructure:"cursor_rewind"` // cursor: start from cursor - CursorRewind

	UseBloom bool `mapstructure:"use_bloom"`
}

// Load reads the YAML file at path, then applies .env, FUNDME_* overrides
// and defaults. An empty path loads defaults and the environment only.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys must be known to viper for env-only overrides to unmarshal.
	for _, key := range []string{"project", "network", "log.level", "log.format", "devchain.url", "deploy.private_key", "storage.driver", "storage.url", "storage.addr"} {
		v.SetDefault(key, "")
	}
	// Hardhat projects keep the deployer key in .env as PRIVATE_KEY.
	_ = v.BindEnv("deploy.private_key", EnvPrefix+"_DEPLOY_PRIVATE_KEY", "PRIVATE_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Project == "" {
		c.Project = "fundme"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Network == "" {
		c.Network = "hardhat"
	}
	if c.Devchain.Addr == "" {
		c.Devchain.Addr = "127.0.0.1:8545"
	}
	if c.Devchain.URL == "" {
		c.Devchain.URL = "http://" + c.Devchain.Addr
	}
	if c.Deploy.PollInterval == 0 {
		c.Deploy.PollInterval = time.Second
	}
	if c.Harness.Timeout == 0 {
		c.Harness.Timeout = 40 * time.Second
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = c.Project + "_"
	}
}

// RegisterNetworks adds the configured live networks to the registry.
func (c *Config) RegisterNetworks() error {
	for _, n := range c.Networks {
		feed, err := network.ParseAddress(n.EthUsdPriceFeed)
		if err != nil {
			return fmt.Errorf("network %q: %w", n.Name, err)
		}
		if err := network.Register(network.Config{ChainID: n.ChainID, Name: n.Name, EthUsdPriceFeed: feed}); err != nil {
			return fmt.Errorf("network %q: %w", n.Name, err)
		}
	}
	return nil
}

// DevchainConfig converts the devchain section; zero fields keep the
// dev chain defaults.
func (c *Config) DevchainConfig() devchain.Config {
	out := devchain.Config{
		ChainID:   c.Devchain.ChainID,
		Accounts:  c.Devchain.Accounts,
		BlockTime: c.Devchain.BlockTime,
	}
	if c.Devchain.BalanceETH > 0 {
		out.Balance = new(big.Int).Mul(big.NewInt(c.Devchain.BalanceETH), big.NewInt(params.Ether))
	}
	return out
}

func (c *Config) HarnessOptions() harness.Options {
	return harness.Options{Timeout: c.Harness.Timeout, Bail: c.Harness.Bail, Grep: c.Harness.Grep}
}
