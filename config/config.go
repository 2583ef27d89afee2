package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"prizevault/crypto"
	"prizevault/native/prizepool"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from a TOML file. Big-integer
// amounts are decimal strings so operators never hit TOML's int64 ceiling.
type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`
	NetworkName          string `toml:"NetworkName"`

	// Pool parameters.
	Mode               string `toml:"Mode"`
	TicketPrice        string `toml:"TicketPrice"`
	FeeFraction        string `toml:"FeeFraction"`
	GlobalCeiling      string `toml:"GlobalCeiling"`
	LockAfterBlock     uint64 `toml:"LockAfterBlock"`
	LockDurationBlocks uint64 `toml:"LockDurationBlocks"`
	PrizePeriodBlocks  uint64 `toml:"PrizePeriodBlocks"`
	Branching          int    `toml:"Branching"`

	// Venue selection. Only the in-memory venue ships today; its per-block
	// rate is a 1e18 mantissa string.
	Venue             string `toml:"Venue"`
	VenueRatePerBlock string `toml:"VenueRatePerBlock"`
}

// Load reads the configuration at path, creating a default file (and operator
// keystore) on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./pooldata"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "prizevault-local"
	}
	if strings.TrimSpace(cfg.Mode) == "" {
		cfg.Mode = "single"
	}
	if strings.TrimSpace(cfg.TicketPrice) == "" {
		cfg.TicketPrice = "1000000000000000000"
	}
	if strings.TrimSpace(cfg.FeeFraction) == "" {
		cfg.FeeFraction = "0"
	}
	if cfg.LockDurationBlocks == 0 {
		cfg.LockDurationBlocks = 100
	}
	if cfg.PrizePeriodBlocks == 0 {
		cfg.PrizePeriodBlocks = 1000
	}
	if cfg.Branching == 0 {
		cfg.Branching = 4
	}
	if strings.TrimSpace(cfg.Venue) == "" {
		cfg.Venue = "mock"
	}
	if strings.TrimSpace(cfg.VenueRatePerBlock) == "" {
		cfg.VenueRatePerBlock = "0"
	}
}

// Validate rejects configurations the engine would refuse at runtime.
func (cfg *Config) Validate() error {
	switch cfg.Mode {
	case "single", "periodic":
	default:
		return fmt.Errorf("config: unknown mode %q", cfg.Mode)
	}
	if cfg.Venue != "mock" {
		return fmt.Errorf("config: unknown venue %q", cfg.Venue)
	}
	if cfg.Branching < 2 {
		return fmt.Errorf("config: branching must be at least 2, got %d", cfg.Branching)
	}
	if _, err := parseAmount("TicketPrice", cfg.TicketPrice); err != nil {
		return err
	}
	if _, err := parseAmount("FeeFraction", cfg.FeeFraction); err != nil {
		return err
	}
	if cfg.GlobalCeiling != "" {
		if _, err := parseAmount("GlobalCeiling", cfg.GlobalCeiling); err != nil {
			return err
		}
	}
	if _, err := parseAmount("VenueRatePerBlock", cfg.VenueRatePerBlock); err != nil {
		return err
	}
	if cfg.Mode == "single" && cfg.LockDurationBlocks == 0 {
		return fmt.Errorf("config: single mode requires a lock duration")
	}
	if cfg.Mode == "periodic" && cfg.PrizePeriodBlocks == 0 {
		return fmt.Errorf("config: periodic mode requires a prize period")
	}
	return nil
}

// PoolParams converts the validated configuration into engine parameters.
func (cfg *Config) PoolParams() (*prizepool.Params, error) {
	ticketPrice, err := parseAmount("TicketPrice", cfg.TicketPrice)
	if err != nil {
		return nil, err
	}
	feeFraction, err := parseAmount("FeeFraction", cfg.FeeFraction)
	if err != nil {
		return nil, err
	}
	params := &prizepool.Params{
		TicketPrice:        ticketPrice,
		FeeFraction:        feeFraction,
		LockAfterBlock:     cfg.LockAfterBlock,
		LockDurationBlocks: cfg.LockDurationBlocks,
		PrizePeriodBlocks:  cfg.PrizePeriodBlocks,
		Branching:          cfg.Branching,
	}
	if cfg.Mode == "periodic" {
		params.Mode = prizepool.ModePeriodic
	}
	if cfg.GlobalCeiling != "" {
		ceiling, err := parseAmount("GlobalCeiling", cfg.GlobalCeiling)
		if err != nil {
			return nil, err
		}
		params.GlobalCeiling = ceiling
	}
	return params, nil
}

// VenueRate returns the configured mock venue rate mantissa.
func (cfg *Config) VenueRate() (*big.Int, error) {
	return parseAmount("VenueRatePerBlock", cfg.VenueRatePerBlock)
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("config: %s is not a decimal integer: %q", field, value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("config: %s must not be negative", field)
	}
	return amount, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.OperatorKeystorePath = defaultKeystorePath(path)

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(cfg.OperatorKeystorePath, key, ""); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	return filepath.Join(dir, "operator.keystore")
}
