package main

import (
	"io"
	"sort"

	"github.com/84hero/fundme/pkg/deploy"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newDeployCmd(a *app) *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the deployment scripts selected by tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer t.Close()

			d, err := a.deployer(t)
			if err != nil {
				return err
			}
			res, err := d.Run(cmd.Context(), tags...)
			if err != nil {
				return err
			}
			renderDeployments(a.out, lo.Values(res.Deployments))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", []string{deploy.TagAll}, "deploy tags (all, mocks, fundme)")
	return cmd
}

func renderDeployments(w io.Writer, ds []storage.Deployment) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].BlockNumber < ds[j].BlockNumber })
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Network", "Contract", "Address", "Tx", "Block"})
	for _, d := range ds {
		t.AppendRow(table.Row{d.Network, d.Name, d.Address.Hex(), d.TxHash.Hex(), d.BlockNumber})
	}
	t.Render()
}
