package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GoJackzi/zamauction/internal/aggregate"
	"github.com/GoJackzi/zamauction/internal/config"
	"github.com/GoJackzi/zamauction/internal/etherscan"
	"github.com/GoJackzi/zamauction/internal/ingest"
	"github.com/GoJackzi/zamauction/internal/server"
	"github.com/GoJackzi/zamauction/internal/snapshot"
	"github.com/GoJackzi/zamauction/internal/storage"
	"github.com/GoJackzi/zamauction/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "auctiondata",
		Short:        "Token auction log aggregator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cached auction snapshots over HTTP",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("cache-ttl", 60*time.Second, "snapshot freshness window")

	root.AddCommand(serveCmd)
	root.AddCommand(newFetchCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("api-key", "", "log source API key")
	cmd.Flags().String("base-url", "https://api.etherscan.io/v2/api", "log source API base URL")
	cmd.Flags().String("chain-id", "1", "chain identifier")
	cmd.Flags().String("token-contract", config.DefaultTokenContract, "payment token contract address")
	cmd.Flags().String("wrapper-contract", config.DefaultWrapperContract, "confidential wrapper contract address")
	cmd.Flags().String("auction-contract", config.DefaultAuctionContract, "auction contract address")
	cmd.Flags().Uint64("from-block", 24096698, "lower block bound for log queries")
	cmd.Flags().Int("page-size", 1000, "log page size")
	cmd.Flags().Int("max-pages", 100, "page ceiling per stream")
	cmd.Flags().Duration("page-delay", 200*time.Millisecond, "inter-page delay")
	cmd.Flags().Int("max-attempts", 3, "attempts per page fetch")
	cmd.Flags().Duration("retry-unit", time.Second, "backoff unit (delay = attempt * unit)")
	cmd.Flags().String("per-bid-ceiling", "88000000", "max token quantity per bid")
	cmd.Flags().Int("max-bids-per-user", 10, "bid-count ceiling for estimate capping")
	cmd.Flags().Int("active-bids-limit", 50, "max entries in the active bids feed")
	cmd.Flags().String("archive", "", "optional snapshot archive JSONL path")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for snapshot history")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	cache := snapshot.NewCache(service, cfg.CacheTTL, logger)

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.String("auction_contract", cfg.AuctionContract),
		zap.Uint64("from_block", cfg.FromBlock),
	)

	return server.New(cache, logger).Run(ctx, cfg.Listen)
}

func buildService(ctx context.Context, cfg config.Config, logger *zap.Logger) (*ingest.Service, func(), error) {
	client := etherscan.NewClient(etherscan.ClientConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		ChainID:     cfg.ChainID,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     etherscan.LinearBackoff(cfg.RetryUnit),
	}, logger)

	paginator := etherscan.NewPaginator(client, etherscan.PaginatorConfig{
		PageSize:  cfg.PageSize,
		MaxPages:  cfg.MaxPages,
		PageDelay: cfg.PageDelay,
	}, logger)

	aggregator := aggregate.New(aggregate.Config{
		PerBidCeiling:     cfg.PerBidCeiling,
		MaxBidsPerUser:    cfg.MaxBidsPerUser,
		ExcludedAddresses: cfg.ExcludedAddresses(),
	}, logger)

	var archive storage.Storage
	closeArchive := func() {}
	switch {
	case cfg.PGDSN != "":
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		archive = store
		closeArchive = store.Close
	case cfg.ArchivePath != "":
		archive = storage.NewJsonlStorage(cfg.ArchivePath)
	}

	service := ingest.New(ingest.Config{
		TokenContract:   cfg.TokenContract,
		WrapperContract: cfg.WrapperContract,
		AuctionContract: cfg.AuctionContract,
		FromBlock:       cfg.FromBlock,
		ActiveBidsLimit: cfg.ActiveBidsLimit,
	}, paginator, aggregator, archive, logger)

	return service, closeArchive, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
