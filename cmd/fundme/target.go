package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/84hero/fundme/pkg/deploy"
	"github.com/84hero/fundme/pkg/devchain"
	"github.com/84hero/fundme/pkg/harness"
	"github.com/84hero/fundme/pkg/network"
	"github.com/84hero/fundme/pkg/rpc"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

var (
	errUnknownNetwork = errors.New("unknown network")
	errNoSigner       = errors.New("no deployer key configured, set PRIVATE_KEY")
)

// target is a connected network: the chain, its signers and the
// deployment records.
type target struct {
	name     string
	chainID  *big.Int
	backend  harness.Backend
	accounts []devchain.Account
	snaps    deploy.Snapshotter // nil on live networks
	chain    *devchain.Chain    // set for hardhat only
	store    storage.Persistence
	closers  []func()
}

func (t *target) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		t.closers[i]()
	}
}

// connect resolves the configured network.
func (a *app) connect(ctx context.Context) (*target, error) {
	store, err := storage.Open(a.cfg.Storage)
	if err != nil {
		return nil, err
	}
	t := &target{name: a.cfg.Network, store: store}
	t.closers = append(t.closers, func() { _ = store.Close() })

	switch a.cfg.Network {
	case "hardhat":
		c := devchain.New(a.cfg.DevchainConfig(), contracts.Artifacts()...)
		t.chain, t.backend, t.accounts, t.snaps = c, c, c.Accounts(), deploy.ChainSnapshots(c)
	case "localhost":
		rc, err := gethrpc.DialContext(ctx, a.cfg.Devchain.URL)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("dial %s: %w", a.cfg.Devchain.URL, err)
		}
		t.closers = append(t.closers, rc.Close)
		n := a.cfg.Devchain.Accounts
		if n <= 0 {
			n = devchain.DefaultConfig().Accounts
		}
		t.backend, t.accounts, t.snaps = ethclient.NewClient(rc), devchain.DevAccounts(n), deploy.RPCSnapshots(rc)
	default:
		if err := a.connectLive(ctx, t); err != nil {
			t.Close()
			return nil, err
		}
	}

	chainID, err := t.backend.ChainID(ctx)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	t.chainID = chainID
	log.Debug("Connected", "network", t.name, "chain_id", chainID)
	return t, nil
}

func (a *app) connectLive(ctx context.Context, t *target) error {
	want, ok := network.ByName(a.cfg.Network)
	if !ok {
		return fmt.Errorf("%w %q", errUnknownNetwork, a.cfg.Network)
	}
	mc, err := rpc.NewClient(ctx, a.cfg.RPC)
	if err != nil {
		return err
	}
	t.closers = append(t.closers, mc.Close)
	t.backend = mc

	chainID, err := mc.ChainID(ctx)
	if err != nil {
		return err
	}
	if chainID.Uint64() != want.ChainID {
		return fmt.Errorf("rpc nodes serve chain %s, %s is %d", chainID, want.Name, want.ChainID)
	}

	if key := strings.TrimPrefix(a.cfg.Deploy.PrivateKey, "0x"); key != "" {
		pk, err := crypto.HexToECDSA(key)
		if err != nil {
			return fmt.Errorf("deployer key: %w", err)
		}
		t.accounts = []devchain.Account{{Address: crypto.PubkeyToAddress(pk.PublicKey), Key: pk}}
	}
	return nil
}

// deployer returns a Deployer signing with the first account.
func (a *app) deployer(t *target) (*deploy.Deployer, error) {
	if len(t.accounts) == 0 {
		return nil, errNoSigner
	}
	opts, err := t.accounts[0].TransactOpts(t.chainID)
	if err != nil {
		return nil, err
	}
	return deploy.New(t.backend, opts, t.store, deploy.Options{
		Network:       t.name,
		Confirmations: a.cfg.Deploy.Confirmations,
		PollInterval:  a.cfg.Deploy.PollInterval,
	}), nil
}
