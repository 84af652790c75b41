// Package deploy runs tagged deployment scripts against a chain and keeps
// the resulting addresses in a storage.Persistence.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/84hero/fundme/pkg/fundme"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/samber/lo"
)

var (
	// ErrNoPriceFeed is returned when FundMe has no price feed to point at.
	ErrNoPriceFeed = errors.New("no price feed for network")
	// ErrUnknownTag is returned for tags that select no script.
	ErrUnknownTag = errors.New("unknown deploy tag")
)

// Backend is a chain connection able to deploy and confirm contracts.
type Backend interface {
	fundme.Backend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Options tunes a Deployer.
type Options struct {
	// Network is the name records are stored under, e.g. "hardhat" or "sepolia".
	Network string
	// Confirmations to wait for after each deployment. Zero and one both
	// mean the inclusion block is enough.
	Confirmations uint64
	// PollInterval between block number checks while waiting.
	PollInterval time.Duration
}

// Result maps contract names to their deployment records.
type Result struct {
	Network     string
	Deployments map[string]storage.Deployment
}

// Address returns the address of the named deployment.
func (r Result) Address(name string) (common.Address, bool) {
	d, ok := r.Deployments[name]
	return d.Address, ok
}

// Deployer runs deployment scripts.
type Deployer struct {
	backend Backend
	opts    *bind.TransactOpts
	store   storage.Persistence
	cfg     Options
}

// New creates a Deployer signing with opts (the deployer account).
func New(backend Backend, opts *bind.TransactOpts, store storage.Persistence, cfg Options) *Deployer {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	return &Deployer{backend: backend, opts: opts, store: store, cfg: cfg}
}

// Network returns the network name records are stored under.
func (d *Deployer) Network() string { return d.cfg.Network }

// Run executes, in order, every script carrying one of tags.
func (d *Deployer) Run(ctx context.Context, tags ...string) (Result, error) {
	if len(tags) == 0 {
		tags = []string{TagAll}
	}
	known := lo.Uniq(lo.FlatMap(scripts, func(s script, _ int) []string { return s.tags }))
	if unknown := lo.Without(tags, known...); len(unknown) > 0 {
		return Result{}, fmt.Errorf("%w: %v", ErrUnknownTag, unknown)
	}

	for _, s := range scripts {
		if !lo.Some(s.tags, tags) {
			continue
		}
		log.Debug("Running deploy script", "script", s.name, "network", d.cfg.Network)
		if err := s.run(ctx, d); err != nil {
			return Result{}, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	deployments, err := d.store.ListDeployments(d.cfg.Network)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Network:     d.cfg.Network,
		Deployments: lo.KeyBy(deployments, func(dep storage.Deployment) string { return dep.Name }),
	}, nil
}

// existing returns the stored record for name when its code is still on chain.
func (d *Deployer) existing(ctx context.Context, name string) (storage.Deployment, bool, error) {
	rec, err := d.store.LoadDeployment(d.cfg.Network, name)
	if errors.Is(err, storage.ErrDeploymentNotFound) {
		return storage.Deployment{}, false, nil
	}
	if err != nil {
		return storage.Deployment{}, false, err
	}
	code, err := d.backend.CodeAt(ctx, rec.Address, nil)
	if err != nil {
		return storage.Deployment{}, false, err
	}
	return rec, len(code) > 0, nil
}

// record waits for tx and stores the deployment.
func (d *Deployer) record(ctx context.Context, name string, addr common.Address, tx *types.Transaction) (storage.Deployment, error) {
	receipt, err := fundme.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return storage.Deployment{}, err
	}
	if err := d.waitConfirmations(ctx, receipt.BlockNumber.Uint64()); err != nil {
		return storage.Deployment{}, err
	}
	rec := storage.Deployment{
		Network:     d.cfg.Network,
		Name:        name,
		Address:     addr,
		TxHash:      tx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		DeployedAt:  time.Now().UTC(),
	}
	if err := d.store.SaveDeployment(rec); err != nil {
		return storage.Deployment{}, err
	}
	log.Info("Deployed contract", "name", name, "address", addr.Hex(), "tx", tx.Hash().Hex(), "gas", receipt.GasUsed, "network", d.cfg.Network)
	return rec, nil
}

func (d *Deployer) waitConfirmations(ctx context.Context, included uint64) error {
	if d.cfg.Confirmations <= 1 {
		return nil
	}
	target := included + d.cfg.Confirmations - 1
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		head, err := d.backend.BlockNumber(ctx)
		if err != nil {
			return err
		}
		if head >= target {
			return nil
		}
		log.Debug("Waiting for confirmations", "head", head, "target", target)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// txOpts returns a copy of the deployer options bound to ctx.
func (d *Deployer) txOpts(ctx context.Context) *bind.TransactOpts {
	opts := *d.opts
	opts.Context = ctx
	return &opts
}
