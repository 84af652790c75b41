package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/84hero/fundme/pkg/fundme"
	"github.com/84hero/fundme/pkg/network"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Deploy tags.
const (
	TagAll    = "all"
	TagMocks  = "mocks"
	TagFundMe = "fundme"
)

// Deployment names.
const (
	NameMockV3Aggregator = "MockV3Aggregator"
	NameFundMe           = "FundMe"
)

type script struct {
	name string
	tags []string
	run  func(ctx context.Context, d *Deployer) error
}

var scripts = []script{
	{name: "00-deploy-mocks", tags: []string{TagAll, TagMocks}, run: deployMocks},
	{name: "01-deploy-fund-me", tags: []string{TagAll, TagFundMe}, run: deployFundMe},
}

func deployMocks(ctx context.Context, d *Deployer) error {
	if !network.IsDevelopment(d.cfg.Network) {
		log.Info("Live network, skipping mocks", "network", d.cfg.Network)
		return nil
	}
	if rec, ok, err := d.existing(ctx, NameMockV3Aggregator); err != nil {
		return err
	} else if ok {
		log.Info("Reusing deployment", "name", NameMockV3Aggregator, "address", rec.Address.Hex())
		return nil
	}

	seed := network.MockSeed()
	log.Info("Local network detected, deploying mocks", "network", d.cfg.Network, "decimals", seed.Decimals, "answer", seed.InitialAnswer)
	addr, tx, _, err := fundme.DeployMockV3Aggregator(d.txOpts(ctx), d.backend, seed.Decimals, seed.InitialAnswer)
	if err != nil {
		return err
	}
	_, err = d.record(ctx, NameMockV3Aggregator, addr, tx)
	return err
}

// priceFeed resolves the feed FundMe is constructed with: the local mock on
// development networks, the registry entry otherwise.
func (d *Deployer) priceFeed(ctx context.Context) (common.Address, error) {
	if network.IsDevelopment(d.cfg.Network) {
		rec, err := d.store.LoadDeployment(d.cfg.Network, NameMockV3Aggregator)
		if errors.Is(err, storage.ErrDeploymentNotFound) {
			return common.Address{}, fmt.Errorf("%w: %s has no %s deployment, run the %q tag first", ErrNoPriceFeed, d.cfg.Network, NameMockV3Aggregator, TagMocks)
		}
		if err != nil {
			return common.Address{}, err
		}
		return rec.Address, nil
	}

	chainID, err := d.backend.ChainID(ctx)
	if err != nil {
		return common.Address{}, err
	}
	cfg, ok := network.Get(chainID.Uint64())
	if !ok {
		return common.Address{}, fmt.Errorf("%w: chain id %s is not registered", ErrNoPriceFeed, chainID)
	}
	return cfg.EthUsdPriceFeed, nil
}

func deployFundMe(ctx context.Context, d *Deployer) error {
	feed, err := d.priceFeed(ctx)
	if err != nil {
		return err
	}

	if rec, ok, err := d.existing(ctx, NameFundMe); err != nil {
		return err
	} else if ok {
		current, err := fundme.NewFundMe(rec.Address, d.backend).GetPriceFeed(nil)
		if err == nil && current == feed {
			log.Info("Reusing deployment", "name", NameFundMe, "address", rec.Address.Hex())
			return nil
		}
		log.Info("Stored deployment points at another feed, redeploying", "name", NameFundMe, "feed", current.Hex(), "want", feed.Hex())
	}

	addr, tx, _, err := fundme.DeployFundMe(d.txOpts(ctx), d.backend, feed)
	if err != nil {
		return err
	}
	_, err = d.record(ctx, NameFundMe, addr, tx)
	return err
}
