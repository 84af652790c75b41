package main

import (
	"context"
	"errors"

	"github.com/84hero/fundme/pkg/chain"
	"github.com/84hero/fundme/pkg/config"
	"github.com/84hero/fundme/pkg/contracts"
	"github.com/84hero/fundme/pkg/decoder"
	"github.com/84hero/fundme/pkg/fundme"
	"github.com/84hero/fundme/pkg/scanner"
	"github.com/84hero/fundme/pkg/sink"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream FundMe and price feed events to the configured outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			t, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			addr, err := a.fundMeAddress(ctx, t, address)
			if err != nil {
				return err
			}
			s, d, err := a.newWatcher(ctx, t, addr)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("Watcher stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "FundMe address (default: the recorded deployment)")
	return cmd
}

// newWatcher builds a scanner over the FundMe contract at addr and its price
// feed, delivering decoded events to the configured outputs.
func (a *app) newWatcher(ctx context.Context, t *target, addr common.Address) (*scanner.Scanner, *sink.Dispatcher, error) {
	feed, err := fundme.NewFundMe(addr, t.backend).GetPriceFeed(&bind.CallOpts{Context: ctx})
	if err != nil {
		return nil, nil, err
	}

	registry := decoder.NewRegistry(decoder.New(contracts.ParsedFundMe), decoder.New(contracts.ParsedMockV3Aggregator))
	filter := scanner.NewFilter().AddContract(addr, feed).AddEvents(registry.Topics()...)

	outputs, err := sink.Open(a.cfg.Outputs)
	if err != nil {
		return nil, nil, err
	}
	if len(outputs) == 0 {
		outputs = append(outputs, sink.NewConsoleOutput())
	}
	d := sink.NewDispatcher(t.name, registry, outputs...)

	cfg := scannerConfig(a.cfg.Scanner, t.name, scanner.CursorKey(t.name, addr))
	s := scanner.New(t.backend, t.store, cfg, filter)
	s.SetHandler(d.Handle)
	log.Info("Watching FundMe", "network", t.name, "address", addr.Hex(), "feed", feed.Hex(), "outputs", len(outputs))
	return s, d, nil
}

// scannerConfig fills unset scanner settings from the network preset.
func scannerConfig(c config.ScannerConfig, network, key string) scanner.Config {
	p := chain.Lookup(network)
	cfg := scanner.Config{
		Key:           key,
		StartBlock:    c.StartBlock,
		ForceStart:    c.ForceStart,
		Rewind:        c.Rewind,
		CursorRewind:  c.CursorRewind,
		BatchSize:     c.BatchSize,
		Interval:      c.Interval,
		Confirmations: c.Confirmations,
		UseBloom:      c.UseBloom,
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = p.BatchSize
	}
	if cfg.Interval == 0 {
		cfg.Interval = p.BlockTime
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = p.Confirmations
	}
	if cfg.Rewind == 0 && cfg.StartBlock == 0 {
		cfg.Rewind = p.Rewind
	}
	return cfg
}
