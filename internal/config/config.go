package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default auction deployment on Ethereum mainnet.
const (
	DefaultTokenContract   = "0xdac17f958d2ee523a2206206994597c13d831ec7"
	DefaultWrapperContract = "0xae0207c757aa2b4019ad96edd0092ddc63ef0c50"
	DefaultAuctionContract = "0x04a5b8c32f9c38092b008a4939f1f91d550c4345"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	APIKey          string
	BaseURL         string
	ChainID         string
	TokenContract   string
	WrapperContract string
	AuctionContract string
	FromBlock       uint64
	PageSize        int
	MaxPages        int
	PageDelay       time.Duration
	MaxAttempts     int
	RetryUnit       time.Duration
	CacheTTL        time.Duration
	PerBidCeiling   decimal.Decimal
	MaxBidsPerUser  int
	ActiveBidsLimit int
	Listen          string
	ArchivePath     string
	PGDSN           string
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("base-url", "https://api.etherscan.io/v2/api")
	v.SetDefault("chain-id", "1")
	v.SetDefault("token-contract", DefaultTokenContract)
	v.SetDefault("wrapper-contract", DefaultWrapperContract)
	v.SetDefault("auction-contract", DefaultAuctionContract)
	v.SetDefault("from-block", uint64(24096698))
	v.SetDefault("page-size", 1000)
	v.SetDefault("max-pages", 100)
	v.SetDefault("page-delay", 200*time.Millisecond)
	v.SetDefault("max-attempts", 3)
	v.SetDefault("retry-unit", time.Second)
	v.SetDefault("cache-ttl", 60*time.Second)
	v.SetDefault("per-bid-ceiling", "88000000")
	v.SetDefault("max-bids-per-user", 10)
	v.SetDefault("active-bids-limit", 50)
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	ceiling, err := decimal.NewFromString(v.GetString("per-bid-ceiling"))
	if err != nil {
		return Config{}, fmt.Errorf("parse per-bid-ceiling: %w", err)
	}
	if !ceiling.IsPositive() {
		return Config{}, fmt.Errorf("per-bid-ceiling must be positive, got %s", ceiling)
	}

	cfg := Config{
		APIKey:          v.GetString("api-key"),
		BaseURL:         v.GetString("base-url"),
		ChainID:         v.GetString("chain-id"),
		TokenContract:   v.GetString("token-contract"),
		WrapperContract: v.GetString("wrapper-contract"),
		AuctionContract: v.GetString("auction-contract"),
		FromBlock:       v.GetUint64("from-block"),
		PageSize:        v.GetInt("page-size"),
		MaxPages:        v.GetInt("max-pages"),
		PageDelay:       v.GetDuration("page-delay"),
		MaxAttempts:     v.GetInt("max-attempts"),
		RetryUnit:       v.GetDuration("retry-unit"),
		CacheTTL:        v.GetDuration("cache-ttl"),
		PerBidCeiling:   ceiling,
		MaxBidsPerUser:  v.GetInt("max-bids-per-user"),
		ActiveBidsLimit: v.GetInt("active-bids-limit"),
		Listen:          v.GetString("listen"),
		ArchivePath:     v.GetString("archive"),
		PGDSN:           v.GetString("pg-dsn"),
		LogLevel:        v.GetString("log-level"),
	}

	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("api key is required (flag --api-key or AUCTION_API_KEY)")
	}
	if cfg.MaxBidsPerUser <= 0 {
		return Config{}, fmt.Errorf("max-bids-per-user must be positive, got %d", cfg.MaxBidsPerUser)
	}

	return cfg, nil
}

// ExcludedAddresses lists contract addresses that must never be published as
// participants.
func (c Config) ExcludedAddresses() []string {
	return []string{c.TokenContract, c.WrapperContract, c.AuctionContract}
}
