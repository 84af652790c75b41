package main

import (
	"fmt"
	"math/big"

	"github.com/84hero/fundme/pkg/network"
	"github.com/ethereum/go-ethereum/params"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newNetworksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List development and registered live networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(a.out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Chain ID", "Name", "ETH/USD feed", "Selected"})
			for _, name := range network.DevelopmentChains() {
				t.AppendRow(table.Row{network.DevChainID, name, "MockV3Aggregator", selected(a.cfg.Network == name)})
			}
			for _, n := range network.All() {
				t.AppendRow(table.Row{n.ChainID, n.Name, n.EthUsdPriceFeed.Hex(), selected(a.cfg.Network == n.Name)})
			}
			t.Render()
			return nil
		},
	}
}

func selected(ok bool) string {
	if ok {
		return "*"
	}
	return ""
}

// formatEther renders wei as a decimal ETH amount.
func formatEther(wei *big.Int) string {
	if wei == nil {
		return "-"
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return fmt.Sprintf("%s ETH", f.Text('f', 4))
}
