package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoJackzi/zamauction/internal/config"
)

func newFetchCommand() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one ingestion pass and print the snapshot as JSON",
		RunE:  runFetch,
	}
	addCommonFlags(fetchCmd)
	return fetchCmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, closeService, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeService()

	logger.Info("fetch start",
		zap.String("auction_contract", cfg.AuctionContract),
		zap.Uint64("from_block", cfg.FromBlock),
	)

	snap, err := service.Refresh(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snap)
}
