package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"

	"github.com/84hero/fundme/pkg/contracts"
	"github.com/84hero/fundme/pkg/deploy"
	"github.com/84hero/fundme/pkg/devchain"
	"github.com/84hero/fundme/pkg/devnode"
	"github.com/84hero/fundme/pkg/storage"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newNodeCmd(a *app) *cobra.Command {
	var (
		addr       string
		deployTags []string
	)
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Serve a dev chain over JSON-RPC as the localhost network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Devchain.Addr
			}
			l, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return a.serveNode(cmd.Context(), l, deployTags)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default devchain.addr)")
	cmd.Flags().StringSliceVar(&deployTags, "deploy", nil, "deploy tags to run on startup")
	return cmd
}

// serveNode starts a fresh dev chain on l, runs the startup deployments
// and serves until ctx is done.
func (a *app) serveNode(ctx context.Context, l net.Listener, tags []string) error {
	c := devchain.New(a.cfg.DevchainConfig(), contracts.Artifacts()...)
	node, err := devnode.New(c)
	if err != nil {
		l.Close()
		return err
	}
	a.printNodeAccounts(c, l.Addr().String())

	if len(tags) > 0 {
		// Records go under "localhost", the name clients use for this node.
		store := storage.NewMemoryStore(a.cfg.Storage.Prefix)
		opts, err := c.Accounts()[0].TransactOpts(new(big.Int).SetUint64(c.Config().ChainID))
		if err != nil {
			l.Close()
			return err
		}
		res, err := deploy.New(c, opts, store, deploy.Options{Network: "localhost"}).Run(ctx, tags...)
		if err != nil {
			l.Close()
			return fmt.Errorf("startup deploy: %w", err)
		}
		for name, d := range res.Deployments {
			log.Info("Deployed", "name", name, "address", d.Address.Hex())
		}
	}

	err = node.Serve(ctx, l)
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

func (a *app) printNodeAccounts(c *devchain.Chain, addr string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(a.out, "Started JSON-RPC server at %s\n\n", bold("http://"+addr+"/"))
	fmt.Fprintln(a.out, "Accounts")
	fmt.Fprintln(a.out, "========")
	for i, acc := range c.Accounts() {
		fmt.Fprintf(a.out, "Account #%d: %s (%s)\n", i, acc.Address.Hex(), formatEther(c.Config().Balance))
		fmt.Fprintf(a.out, "Private Key: %s\n\n", hexutil.Encode(crypto.FromECDSA(acc.Key)))
	}
	fmt.Fprintln(a.out, color.YellowString("WARNING: these accounts and their private keys are publicly known."))
}
