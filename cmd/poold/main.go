package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"prizevault/config"
	"prizevault/crypto"
	"prizevault/native/prizepool"
	"prizevault/native/yield"
	"prizevault/observability/logging"
	"prizevault/rpc"
	statepool "prizevault/state/pool"
	"prizevault/storage"
)

const operatorPassEnv = "PRIZEVAULT_OPERATOR_PASS"

func main() {
	configFile := flag.String("config", "./pool.toml", "Path to the configuration file")
	memoryFlag := flag.Bool("memory", false, "DEV ONLY: run against an in-memory database")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("poold", cfg.NetworkName)

	operatorKey, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, os.Getenv(operatorPassEnv))
	if err != nil {
		logger.Error("Failed to load operator keystore", slog.Any("error", err))
		os.Exit(1)
	}
	operator := operatorKey.PubKey().Address()
	logger.Info("Operator key loaded", slog.String("address", operator.String()))

	db, err := openDatabase(cfg, *memoryFlag)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	params, err := cfg.PoolParams()
	if err != nil {
		logger.Error("Failed to build pool parameters", slog.Any("error", err))
		os.Exit(1)
	}
	module := moduleAddress()

	engine, err := prizepool.NewEngine(operator, module, params)
	if err != nil {
		logger.Error("Failed to construct engine", slog.Any("error", err))
		os.Exit(1)
	}

	store := statepool.NewStore(db)
	engine.SetState(store)

	venue, err := buildVenue(cfg)
	if err != nil {
		logger.Error("Failed to build yield venue", slog.Any("error", err))
		os.Exit(1)
	}
	var moduleKey [20]byte
	copy(moduleKey[:], module.Bytes())
	engine.SetYield(yield.NewAccounting(venue, moduleKey))
	engine.SetRandomness(prizepool.NewMockRandomness())

	if err := engine.Rehydrate(); err != nil {
		logger.Error("Failed to rehydrate sortition tree", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, operator, logger)
	logger.Info("Serving pool RPC",
		slog.String("address", cfg.RPCAddress),
		slog.String("mode", cfg.Mode),
	)
	if err := http.ListenAndServe(cfg.RPCAddress, server.Router()); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config, memory bool) (storage.Database, error) {
	if memory {
		return storage.NewMemDB(), nil
	}
	if cfg.DataDir == "" {
		return nil, errors.New("DataDir must be configured")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(filepath.Join(cfg.DataDir, "pool"))
}

func buildVenue(cfg *config.Config) (yield.Venue, error) {
	switch cfg.Venue {
	case "mock":
		venue := yield.NewMockVenue()
		rate, err := cfg.VenueRate()
		if err != nil {
			return nil, err
		}
		venue.SetRatePerBlock(rate)
		return venue, nil
	default:
		return nil, fmt.Errorf("unknown venue %q", cfg.Venue)
	}
}

// moduleAddress derives the ledger account holding pooled funds. It is a fixed
// address outside the keyspace of user accounts.
func moduleAddress() crypto.Address {
	raw := make([]byte, 20)
	copy(raw, []byte("prizevault/module"))
	return crypto.NewAddress(crypto.PoolPrefix, raw)
}
