package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/84hero/fundme/pkg/config"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
)

// app carries the state shared by every subcommand.
type app struct {
	out        io.Writer
	configPath string
	network    string
	cfg        *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "fundme",
		Short:         "Deploy, test and watch the FundMe contract",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("CONFIG_FILE"), "YAML config file")
	root.PersistentFlags().StringVarP(&a.network, "network", "n", "", "hardhat, localhost or a registered live network")

	root.AddCommand(
		newNetworksCmd(a),
		newAccountsCmd(a),
		newDeployCmd(a),
		newTestCmd(a),
		newNodeCmd(a),
		newInspectCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log, os.Stderr)
	if err := cfg.RegisterNetworks(); err != nil {
		return err
	}
	if a.network != "" {
		cfg.Network = a.network
	}
	a.cfg = cfg
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

func setupLogger(cfg config.LogConfig, w io.Writer) {
	level := parseLevel(cfg.Level)
	var h slog.Handler
	if cfg.Format == "json" {
		h = log.JSONHandlerWithLevel(w, level)
	} else {
		h = log.NewTerminalHandlerWithLevel(w, level, true)
	}
	log.SetDefault(log.NewLogger(h))
}
