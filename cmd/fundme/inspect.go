package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/84hero/fundme/pkg/deploy"
	"github.com/84hero/fundme/pkg/fundme"
	"github.com/84hero/fundme/pkg/network"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newInspectCmd(a *app) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the state of a deployed FundMe contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer t.Close()

			addr, err := a.fundMeAddress(cmd.Context(), t, address)
			if err != nil {
				return err
			}
			return a.inspect(cmd.Context(), t, addr)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "FundMe address (default: the recorded deployment)")
	return cmd
}

// fundMeAddress resolves the contract to look at. A fresh in-process chain
// has no records, so it is deployed to first.
func (a *app) fundMeAddress(ctx context.Context, t *target, flag string) (common.Address, error) {
	if flag != "" {
		return network.ParseAddress(flag)
	}
	rec, err := t.store.LoadDeployment(t.name, deploy.NameFundMe)
	if err == nil {
		return rec.Address, nil
	}
	if !errors.Is(err, storage.ErrDeploymentNotFound) || t.chain == nil {
		return common.Address{}, fmt.Errorf("%s on %s: %w", deploy.NameFundMe, t.name, err)
	}
	d, err := a.deployer(t)
	if err != nil {
		return common.Address{}, err
	}
	res, err := d.Run(ctx, deploy.TagAll)
	if err != nil {
		return common.Address{}, err
	}
	addr, _ := res.Address(deploy.NameFundMe)
	return addr, nil
}

func (a *app) inspect(ctx context.Context, t *target, addr common.Address) error {
	fm := fundme.NewFundMe(addr, t.backend)
	opts := &bind.CallOpts{Context: ctx}

	owner, err := fm.GetOwner(opts)
	if err != nil {
		return err
	}
	feed, err := fm.GetPriceFeed(opts)
	if err != nil {
		return err
	}
	version, err := fm.GetVersion(opts)
	if err != nil {
		return err
	}
	minUSD, err := fm.MinimumUSD(opts)
	if err != nil {
		return err
	}
	balance, err := t.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return err
	}
	funders, err := fm.Funders(opts)
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(a.out)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("%s on %s", deploy.NameFundMe, t.name)
	tw.AppendRows([]table.Row{
		{"Address", addr.Hex()},
		{"Owner", owner.Hex()},
		{"Price feed", feed.Hex()},
		{"Feed version", version},
		{"Minimum USD (18 decimals)", minUSD},
		{"Balance", formatEther(balance)},
		{"Funders", len(funders)},
	})
	tw.Render()

	if len(funders) == 0 {
		return nil
	}
	ft := table.NewWriter()
	ft.SetOutputMirror(a.out)
	ft.SetStyle(table.StyleLight)
	ft.AppendHeader(table.Row{"#", "Funder", "Amount funded"})
	for i, f := range funders {
		amount, err := fm.GetAddressToAmountFunded(opts, f)
		if err != nil {
			return err
		}
		ft.AppendRow(table.Row{i, f.Hex(), formatEther(amount)})
	}
	ft.Render()
	return nil
}
