// Package harness runs the FundMe behavioral suite against a development
// network. Every scenario starts from a fresh deployment fixture.
package harness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/84hero/fundme/pkg/deploy"
	"github.com/84hero/fundme/pkg/devchain"
	"github.com/84hero/fundme/pkg/fundme"
	"github.com/84hero/fundme/pkg/network"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Backend is what the suite needs from the network under test.
type Backend interface {
	deploy.Backend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Options tunes a run.
type Options struct {
	Timeout time.Duration // per scenario
	Bail    bool          // stop after the first failure
	Grep    string        // only run scenarios whose title contains Grep
}

// Suite is the FundMe behavioral suite bound to one network.
type Suite struct {
	network  string
	backend  Backend
	accounts []devchain.Account
	snaps    deploy.Snapshotter
	deployer *deploy.Deployer
	opts     Options
}

// New creates a suite. accounts[0] deploys and owns the contracts;
// accounts 1..5 act as funders and attacker.
func New(networkName string, backend Backend, accounts []devchain.Account, snaps deploy.Snapshotter, deployer *deploy.Deployer, opts Options) *Suite {
	if opts.Timeout == 0 {
		opts.Timeout = 40 * time.Second
	}
	return &Suite{
		network:  networkName,
		backend:  backend,
		accounts: accounts,
		snaps:    snaps,
		deployer: deployer,
		opts:     opts,
	}
}

// Titles returns the full title of every scenario in run order.
func Titles() []string {
	out := make([]string, len(scenarios))
	for i, sc := range scenarios {
		out[i] = sc.title()
	}
	return out
}

// Run executes the suite. On a live network every scenario is reported
// as skipped.
func (s *Suite) Run(ctx context.Context) Report {
	rep := Report{Network: s.network}
	if !network.IsDevelopment(s.network) {
		rep.SkipReason = fmt.Sprintf("%s is not a development network (%s)", s.network, strings.Join(network.DevelopmentChains(), ", "))
		for _, sc := range scenarios {
			rep.Results = append(rep.Results, Result{Title: sc.title(), Status: StatusSkipped})
		}
		log.Info("Skipping FundMe suite", "network", s.network)
		return rep
	}
	if len(s.accounts) < 6 {
		err := fmt.Errorf("need 6 accounts, have %d", len(s.accounts))
		for _, sc := range scenarios {
			rep.Results = append(rep.Results, Result{Title: sc.title(), Status: StatusFailed, Err: err})
		}
		return rep
	}

	fixture := deploy.NewFixture(s.snaps, s.deployer, deploy.TagAll)
	failed := false
	for _, sc := range scenarios {
		title := sc.title()
		if (s.opts.Grep != "" && !strings.Contains(title, s.opts.Grep)) || (failed && s.opts.Bail) {
			rep.Results = append(rep.Results, Result{Title: title, Status: StatusSkipped})
			continue
		}
		res := s.runOne(ctx, fixture, sc)
		if res.Status == StatusFailed {
			failed = true
			log.Warn("Scenario failed", "title", title, "err", res.Err)
		} else {
			log.Debug("Scenario passed", "title", title, "gas", res.GasUsed, "elapsed", res.Duration)
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func (s *Suite) runOne(ctx context.Context, fixture *deploy.Fixture, sc scenario) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	t, err := s.setup(ctx, fixture)
	if err == nil {
		err = sc.run(t)
	}
	res := Result{Title: sc.title(), Status: StatusPassed, Duration: time.Since(start)}
	if t != nil {
		res.GasUsed = t.gasUsed
	}
	if err != nil {
		res.Status, res.Err = StatusFailed, err
	}
	return res
}

func (s *Suite) setup(ctx context.Context, fixture *deploy.Fixture) (*T, error) {
	deployed, err := fixture.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	fm, ok := deployed.Address(deploy.NameFundMe)
	if !ok {
		return nil, errors.New("fixture: FundMe was not deployed")
	}
	feed, ok := deployed.Address(deploy.NameMockV3Aggregator)
	if !ok {
		return nil, errors.New("fixture: MockV3Aggregator was not deployed")
	}
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return &T{
		ctx:       ctx,
		suite:     s,
		chainID:   chainID,
		fundMe:    fundme.NewFundMe(fm, s.backend),
		priceFeed: feed,
	}, nil
}

// T is the per-scenario context.
type T struct {
	ctx       context.Context
	suite     *Suite
	chainID   *big.Int
	fundMe    *fundme.FundMe
	priceFeed common.Address
	gasUsed   uint64
}

func (t *T) account(i int) common.Address { return t.suite.accounts[i].Address }

func (t *T) deployer() common.Address { return t.account(0) }

// opts returns signing options for account i sending value.
func (t *T) opts(i int, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := t.suite.accounts[i].TransactOpts(t.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = t.ctx
	opts.Value = value
	return opts, nil
}

func (t *T) call() *bind.CallOpts { return &bind.CallOpts{Context: t.ctx} }

// mined waits for a transaction sent by a binding.
func (t *T) mined(tx *types.Transaction, err error) (*types.Receipt, error) {
	if err != nil {
		return nil, err
	}
	r, err := fundme.WaitMined(t.ctx, t.suite.backend, tx)
	if r != nil {
		t.gasUsed += r.GasUsed
	}
	return r, err
}

func (t *T) fund(i int, value *big.Int) (*types.Receipt, error) {
	opts, err := t.opts(i, value)
	if err != nil {
		return nil, err
	}
	return t.mined(t.fundMe.Fund(opts))
}

func (t *T) balance(addr common.Address) (*big.Int, error) {
	return t.suite.backend.BalanceAt(t.ctx, addr, nil)
}
