package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newAccountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the signing accounts of the selected network and their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer t.Close()
			if len(t.accounts) == 0 {
				return errNoSigner
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(a.out)
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"#", "Address", "Balance"})
			for i, acc := range t.accounts {
				bal, err := t.backend.BalanceAt(cmd.Context(), acc.Address, nil)
				if err != nil {
					return err
				}
				tw.AppendRow(table.Row{i, acc.Address.Hex(), formatEther(bal)})
			}
			tw.Render()
			return nil
		},
	}
}
