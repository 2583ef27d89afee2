package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"prizevault/native/prizepool"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "single", cfg.Mode)
	require.Equal(t, "mock", cfg.Venue)
	require.NotEmpty(t, cfg.RPCAddress)
	require.NotEmpty(t, cfg.DataDir)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config must be written")
	_, err = os.Stat(cfg.OperatorKeystorePath)
	require.NoError(t, err, "operator keystore must be created")

	// A second load round-trips the persisted file.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.TicketPrice, reloaded.TicketPrice)
	require.Equal(t, cfg.Branching, reloaded.Branching)
	require.Equal(t, cfg.OperatorKeystorePath, reloaded.OperatorKeystorePath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.toml")

	require.NoError(t, os.WriteFile(path, []byte(`
Mode = "weekly"
TicketPrice = "1000"
`), 0o600))
	_, err := Load(path)
	require.Error(t, err, "unknown mode must be rejected")

	require.NoError(t, os.WriteFile(path, []byte(`
Mode = "single"
TicketPrice = "not-a-number"
`), 0o600))
	_, err = Load(path)
	require.Error(t, err, "non-numeric amount must be rejected")

	require.NoError(t, os.WriteFile(path, []byte(`
Mode = "single"
Branching = 1
`), 0o600))
	_, err = Load(path)
	require.Error(t, err, "branching below 2 must be rejected")
}

func TestPoolParams(t *testing.T) {
	cfg := &Config{
		Mode:               "periodic",
		TicketPrice:        "2000000",
		FeeFraction:        "100000000000000000",
		GlobalCeiling:      "900000000",
		LockDurationBlocks: 50,
		PrizePeriodBlocks:  200,
		Branching:          8,
		Venue:              "mock",
		VenueRatePerBlock:  "42",
	}
	params, err := cfg.PoolParams()
	require.NoError(t, err)
	require.Equal(t, prizepool.ModePeriodic, params.Mode)
	require.Zero(t, params.TicketPrice.Cmp(big.NewInt(2_000_000)))
	require.Zero(t, params.GlobalCeiling.Cmp(big.NewInt(900_000_000)))
	require.Equal(t, uint64(200), params.PrizePeriodBlocks)
	require.Equal(t, 8, params.Branching)

	rate, err := cfg.VenueRate()
	require.NoError(t, err)
	require.Equal(t, int64(42), rate.Int64())
}
