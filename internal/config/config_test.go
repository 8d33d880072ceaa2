package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccoin/shieldengine/internal/config"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := config.Default()

	require.Equal(t, config.NetworkDevnet, cfg.Network)
	require.Equal(t, 5, cfg.Retry.MaxRetries)
	require.Equal(t, 1000*time.Millisecond, cfg.Retry.BaseDelay)
	require.Equal(t, 30*time.Second, cfg.Retry.CapDelay)
	require.InDelta(t, 0.3, cfg.Retry.Jitter, 1e-9)
	require.Equal(t, 10, cfg.Scanner.BatchSize)
	require.Equal(t, 10, cfg.Scanner.ParallelBatchSize)
}

func TestLoadAppliesFlagOverrides(t *testing.T) {
	cfg, extra, err := config.Load([]string{
		"--indexer-url=https://indexer.example.com",
		"--network=mainnet",
		"--db-port=5433",
		"recipient-x-operand",
	}, "")
	require.NoError(t, err)

	require.Equal(t, "https://indexer.example.com", cfg.IndexerURL)
	require.Equal(t, config.NetworkMainnet, cfg.Network)
	require.Equal(t, 5433, cfg.DBPort)
	// Unset flags keep their Default() values.
	require.Equal(t, 10, cfg.Scanner.BatchSize)
	require.Equal(t, []string{"recipient-x-operand"}, extra)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, _, err := config.Load([]string{"--not-a-real-flag=1"}, "")
	require.Error(t, err)
}
