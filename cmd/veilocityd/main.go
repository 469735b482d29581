// Veilocity Daemon - main entry point for the private-state sync
// engine.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/abhirupinspace/veilocity/internal/account"
	"github.com/abhirupinspace/veilocity/internal/chain"
	"github.com/abhirupinspace/veilocity/internal/field"
	"github.com/abhirupinspace/veilocity/internal/keyderiv"
	"github.com/abhirupinspace/veilocity/internal/state"
	"github.com/abhirupinspace/veilocity/internal/sync"
)

const (
	version = "0.1.0"
	banner  = `
 __      __   _ _            _ _
 \ \    / /  (_) |          (_) |
  \ \  / /__  _| | ___   ___ _| |_ _   _
   \ \/ / _ \| | |/ _ \ / __| | __| | | |
    \  / (_) | | | (_) | (__| | |_| |_| |
     \/ \___/|_|_|\___/ \___|_|\__|\__, |
                                    __/ |
  Veilocity Daemon v%s             |___/
`
)

// Config holds node configuration.
type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Chain
	RPCURL          string
	VaultAddress    string
	DeploymentBlock uint64
	PollInterval    time.Duration
	IndexerURL      string

	// Holder secret (hex-encoded seed, run through keyderiv.FromSeed; a
	// fresh secret is generated if empty, since there is no wallet-file
	// layer in scope, and only a short prefix of it is logged)
	SecretSeedHex string

	// Logging
	LogLevel string

	// Mode
	Watch bool
}

func main() {
	cfg := parseFlags()

	fmt.Printf(banner, version)

	log := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DBHost, "db-host", "localhost", "PostgreSQL host")
	flag.IntVar(&cfg.DBPort, "db-port", 5432, "PostgreSQL port")
	flag.StringVar(&cfg.DBUser, "db-user", "veilocity", "PostgreSQL user")
	flag.StringVar(&cfg.DBPassword, "db-password", "", "PostgreSQL password")
	flag.StringVar(&cfg.DBName, "db-name", "veilocity", "PostgreSQL database name")

	flag.StringVar(&cfg.RPCURL, "rpc-url", "", "EVM JSON-RPC endpoint")
	flag.StringVar(&cfg.VaultAddress, "vault-address", "", "VeilocityVault contract address (0x-hex)")
	flag.Uint64Var(&cfg.DeploymentBlock, "deployment-block", 0, "block height the vault was deployed at")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", sync.DefaultWatchInterval, "watch-mode poll interval")
	flag.StringVar(&cfg.IndexerURL, "indexer-url", "", "optional indexer base URL for snapshot sync")

	flag.StringVar(&cfg.SecretSeedHex, "secret-seed", "", "hex-encoded seed for the holder secret (generated if empty)")

	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Watch, "watch", false, "keep polling for new blocks after the initial sync")

	flag.Parse()
	return cfg
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, cfg *Config, log *slog.Logger) error {
	log.Info("connecting to postgres", "host", cfg.DBHost, "db", cfg.DBName)

	dbCfg := state.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  "disable",
		MaxConns: 10,
	}

	if err := state.ApplySchema(ctx, dbCfg); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	store, err := state.NewPostgresStore(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer store.Close()
	log.Info("database connected")

	hasher := field.NewHasher()

	log.Info("reconstructing state from durable store")
	manager, err := state.Open(ctx, store, hasher, log)
	if err != nil {
		return fmt.Errorf("opening state manager: %w", err)
	}
	log.Info("state reconstructed", "leaf_count", manager.LeafCount())

	secretValue, err := loadOrGenerateSecret(cfg.SecretSeedHex, log)
	if err != nil {
		return err
	}
	secret := account.NewSecret(secretValue, hasher)

	if cfg.RPCURL == "" || cfg.VaultAddress == "" {
		log.Warn("rpc-url or vault-address not set, skipping chain sync")
		<-ctx.Done()
		return nil
	}

	reader, err := chain.NewEthReader(cfg.RPCURL, common.HexToAddress(cfg.VaultAddress))
	if err != nil {
		return fmt.Errorf("connecting to chain: %w", err)
	}

	opts := []sync.Option{sync.WithDeploymentBlock(cfg.DeploymentBlock)}
	haveIndexer := cfg.IndexerURL != ""
	if haveIndexer {
		opts = append(opts, sync.WithSnapshotSource(sync.NewIndexerClient(cfg.IndexerURL)))
	}
	synchronizer := sync.New(manager, reader, secret, hasher, log, opts...)

	// Prefer the indexer snapshot when configured, falling back to the
	// log-scan path on any failure (including a reconciled-but-mismatched
	// root), matching original_source's sync.rs::run preference order.
	if haveIndexer {
		log.Info("starting snapshot sync", "indexer_url", cfg.IndexerURL)
		if err := synchronizer.SyncViaSnapshot(ctx); err != nil {
			log.Warn("indexer sync failed, falling back to log-scan sync", "error", err)
			if err := synchronizer.SyncViaLogs(ctx); err != nil {
				log.Warn("log-scan sync reported a mismatch or error", "error", err)
			}
		}
	} else {
		log.Info("starting log-scan sync")
		if err := synchronizer.SyncViaLogs(ctx); err != nil {
			log.Warn("initial sync reported a mismatch or error", "error", err)
		}
	}
	log.Info("sync complete", "leaf_count", manager.LeafCount(), "root", field.ToHex(manager.Root()))

	if !cfg.Watch {
		return nil
	}

	log.Info("entering watch mode", "interval", cfg.PollInterval)
	err = synchronizer.Watch(ctx, cfg.PollInterval)
	if err != nil && ctx.Err() != nil {
		log.Info("watch stopped")
		return nil
	}
	return err
}

func loadOrGenerateSecret(seedHex string, log *slog.Logger) (field.F, error) {
	if seedHex == "" {
		secret, err := keyderiv.Generate()
		if err != nil {
			return field.F{}, fmt.Errorf("generating holder secret: %w", err)
		}
		log.Warn("no secret seed provided, generated an ephemeral one", "secret_prefix", field.ToHex(secret)[:10])
		return secret, nil
	}
	seed, err := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))
	if err != nil {
		return field.F{}, fmt.Errorf("parsing secret seed: %w", err)
	}
	secret, err := keyderiv.FromSeed(seed)
	if err != nil {
		return field.F{}, fmt.Errorf("deriving holder secret: %w", err)
	}
	return secret, nil
}
