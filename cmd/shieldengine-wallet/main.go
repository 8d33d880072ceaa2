// Command shieldengine-wallet runs the engine as a long-running daemon:
// a periodic scanner pass over configured pools plus an orchestrator resume
// loop on startup and after every crash-restart (spec §4.I, §4.J).
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ccoin/shieldengine/internal/config"
	"github.com/ccoin/shieldengine/internal/indexerclient"
	"github.com/ccoin/shieldengine/internal/logging"
	"github.com/ccoin/shieldengine/internal/orchestrator"
	"github.com/ccoin/shieldengine/internal/retry"
	"github.com/ccoin/shieldengine/internal/scanner"
	"github.com/ccoin/shieldengine/internal/settlementclient"
	"github.com/ccoin/shieldengine/internal/storage"
)

const (
	version = "0.1.0"
	banner  = `
  _____ _     _      _     _ _____                _
 / ____| |   (_)    | |   | |  ___|              (_)
| (___ | |__  _  ___| | __| | |__ _ __   __ _ _ __  _ _ __   ___
 \___ \| '_ \| |/ _ \ |/ _' |  __| '_ \ / _' | '_ \| | '_ \ / _ \
 ____) | | | | |  __/ | (_| | |__| | | | (_| | | | | | | | |  __/
|_____/|_| |_|_|\___|_|\__,_|_____|_| |_|\__, |_| |_|_|_| |_|\___|
                                          __/ |
  Shield Engine Wallet Daemon v%s       |___/
`
)

func main() {
	cfg, _, err := config.Load(os.Args[1:], os.Getenv("SHIELDENGINE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(banner, version)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", zap.Error(err))
		os.Exit(1)
	}
}

// watchedKey resolves the key the daemon's periodic scan runs against, from
// the SHIELDENGINE_SK environment variable. A daemon with no key configured
// still runs the one-time orchestrator resume at startup, just not the scan
// tick.
func watchedKey() (*big.Int, bool) {
	raw := os.Getenv("SHIELDENGINE_SK")
	if raw == "" {
		return nil, false
	}
	sk, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, false
	}
	return sk, true
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	dbCfg := &storage.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  "disable",
		MaxConns: 20,
	}
	store, err := storage.NewPostgresStore(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()
	logger.Info("database connected", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	retryCfg := retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		CapDelay:   cfg.Retry.CapDelay,
		Jitter:     cfg.Retry.Jitter,
	}
	indexer := indexerclient.New(cfg.IndexerURL, cfg.IndexerKey, retryCfg)
	scan := scanner.New(indexer)

	submitter := settlementclient.New(cfg.SettlementRPC, retryCfg)
	orc := orchestrator.New(submitter, store)

	logger.Info("resuming pending settlement operations")
	if err := orc.Resume(ctx); err != nil {
		logger.Warn("orchestrator resume encountered an error", zap.Error(err))
	}

	sk, haveKey := watchedKey()
	if !haveKey {
		logger.Warn("SHIELDENGINE_SK not set; periodic scan tick disabled, startup resume only")
	}

	logger.Info("shield engine wallet daemon started", zap.String("network", string(cfg.Network)))

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("wallet daemon stopped")
			return nil
		case <-ticker.C:
			if !haveKey {
				continue
			}
			notes, err := scan.ScanWithStatus(ctx, sk, cfg.ProgramID, nil, scanner.Options{
				MaxAccounts:       cfg.Scanner.MaxAccounts,
				ParallelBatchSize: cfg.Scanner.ParallelBatchSize,
			})
			if err != nil {
				logger.Warn("scan tick failed", zap.Error(err))
				continue
			}
			stats := scan.Stats()
			logger.Debug("scan tick",
				zap.Int("unspent", len(scanner.Unspent(notes))),
				zap.Int("decrypted", stats.Decrypted),
				zap.Int("cache_hits", stats.CacheHits))
		}
	}
}
