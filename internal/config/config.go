// Package config loads the engine's configuration (spec §6), generalizing
// m1zr-ccoin's cmd/ccoind flag-only Config into a layered flags+env+file
// configuration via spf13/pflag and spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Network is the settlement network the engine targets.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
)

// Retry mirrors spec §6's retry{} block.
type Retry struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	CapDelay   time.Duration `mapstructure:"cap_delay"`
	Jitter     float64       `mapstructure:"jitter"`
}

// Scanner mirrors spec §6's scanner{} block.
type Scanner struct {
	BatchSize         int   `mapstructure:"batch_size"`
	SinceSlot         int64 `mapstructure:"since_slot"`
	MaxAccounts       int   `mapstructure:"max_accounts"`
	ParallelBatchSize int   `mapstructure:"parallel_batch_size"`
}

// Config is the engine's configuration, matching spec §6's enumerated shape:
// { indexer_url, indexer_key, settlement_rpc, program_id, network, retry{...}, scanner{...} }.
type Config struct {
	IndexerURL    string  `mapstructure:"indexer_url"`
	IndexerKey    string  `mapstructure:"indexer_key"`
	SettlementRPC string  `mapstructure:"settlement_rpc"`
	ProgramID     string  `mapstructure:"program_id"`
	Network       Network `mapstructure:"network"`

	Retry   Retry   `mapstructure:"retry"`
	Scanner Scanner `mapstructure:"scanner"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	DataDir  string `mapstructure:"data_dir"`

	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
}

// Default returns the spec's stated defaults (§6: retry{max=5, base_ms=1000,
// cap_ms=30000, jitter=0.3}, scanner{batch_size=10}).
func Default() *Config {
	return &Config{
		Network: NetworkDevnet,
		Retry: Retry{
			MaxRetries: 5,
			BaseDelay:  1000 * time.Millisecond,
			CapDelay:   30 * time.Second,
			Jitter:     0.3,
		},
		Scanner: Scanner{
			BatchSize:         10,
			ParallelBatchSize: 10,
		},
		LogLevel: "info",
		DataDir:  "./data",
		DBHost:   "localhost",
		DBPort:   5432,
		DBUser:   "shieldengine",
		DBName:   "shieldengine",
	}
}

// Load parses CLI flags (pflag), then layers environment variables under
// the SHIELDENGINE_ prefix and an optional config file on top of Default().
// The second return value is args with every recognized flag consumed,
// left over for subcommand-specific positional operands (spec §4.P), per
// m1zr-ccoin's cmd/ccoin-cli subcommand-operand convention.
func Load(args []string, configFile string) (*Config, []string, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("shieldengine", pflag.ContinueOnError)
	fs.String("indexer-url", cfg.IndexerURL, "compressed-leaf indexer RPC URL")
	fs.String("indexer-key", cfg.IndexerKey, "indexer API key")
	fs.String("settlement-rpc", cfg.SettlementRPC, "settlement chain RPC URL")
	fs.String("program-id", cfg.ProgramID, "settlement program id")
	fs.String("network", string(cfg.Network), "network (mainnet, devnet)")
	fs.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-file", cfg.LogFile, "log file path (empty for stderr)")
	fs.String("data-dir", cfg.DataDir, "data directory")
	fs.String("db-host", cfg.DBHost, "PostgreSQL host")
	fs.Int("db-port", cfg.DBPort, "PostgreSQL port")
	fs.String("db-user", cfg.DBUser, "PostgreSQL user")
	fs.String("db-password", cfg.DBPassword, "PostgreSQL password")
	fs.String("db-name", cfg.DBName, "PostgreSQL database name")

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SHIELDENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, fmt.Errorf("config: binding flags: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	cfg.IndexerURL = v.GetString("indexer-url")
	cfg.IndexerKey = v.GetString("indexer-key")
	cfg.SettlementRPC = v.GetString("settlement-rpc")
	cfg.ProgramID = v.GetString("program-id")
	cfg.Network = Network(v.GetString("network"))
	cfg.LogLevel = v.GetString("log-level")
	cfg.LogFile = v.GetString("log-file")
	cfg.DataDir = v.GetString("data-dir")
	cfg.DBHost = v.GetString("db-host")
	cfg.DBPort = v.GetInt("db-port")
	cfg.DBUser = v.GetString("db-user")
	cfg.DBPassword = v.GetString("db-password")
	cfg.DBName = v.GetString("db-name")

	return cfg, fs.Args(), nil
}
