package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nftescrow/config"
	"nftescrow/core"
	"nftescrow/core/events"
	"nftescrow/core/genesis"
	"nftescrow/integrations/webhooks"
	nativecommon "nftescrow/native/common"
	"nftescrow/observability/logging"
	"nftescrow/observability/metrics"
	telemetry "nftescrow/observability/otel"
	"nftescrow/rpc"
	"nftescrow/services/indexer"
	"nftescrow/storage"
)

const (
	genesisPathEnv  = "NFTESCROW_GENESIS"
	environmentEnv  = "NFTESCROW_ENV"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides NFTESCROW_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		fmt.Fprintf(os.Stderr, "listingd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, genesisFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv(environmentEnv)); override != "" {
		env = override
	}
	logger := logging.SetupWithOptions(logging.Options{
		Service:    "listingd",
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "listingd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	genesisPath := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)
	var spec *genesis.GenesisSpec
	if genesisPath != "" {
		spec, err = genesis.LoadGenesisSpec(genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
	}

	node, err := core.NewNode(db, core.NodeConfig{
		Rent:    cfg.Rent,
		Genesis: spec,
		Pauses:  nativecommon.NewPauseSet(cfg.Pauses.Modules),
		Metrics: metrics.Ledger(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	var (
		history rpc.History
		sinks   events.MultiEmitter
	)
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		store, err := indexer.Open(dsn)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer store.Close()
		store.SetLogger(logger)
		sinks = append(sinks, store)
		history = store
		logger.Info("listing indexer enabled")
	}
	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		secret := cfg.WebhookSecret()
		if secret == "" {
			return fmt.Errorf("webhook: %s is not set", cfg.Webhook.SecretEnv)
		}
		dispatcher, err := webhooks.NewDispatcher(url, []byte(secret),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0),
			webhooks.WithLogger(logger))
		if err != nil {
			return err
		}
		defer dispatcher.Close()
		sinks = append(sinks, dispatcher)
		logger.Info("listing webhook enabled", logging.MaskField("url", url))
	}

	server, err := rpc.NewServer(node, history, rpc.ServerConfig{
		TrustedProxies: append([]string{}, cfg.RPC.TrustedProxies...),
		JWT: rpc.JWTConfig{
			Secret: cfg.JWTSecret(),
			Issuer: cfg.RPC.JWTIssuer,
		},
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateLimitBurst:    cfg.RPC.RateLimitBurst,
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		ReadHeaderTimeout: cfg.RPC.ReadHeaderTimeout.Duration,
		WriteTimeout:      cfg.RPC.WriteTimeout.Duration,
		StreamOrigins:     append([]string{}, cfg.RPC.StreamOrigins...),
	})
	if err != nil {
		return fmt.Errorf("init rpc: %w", err)
	}
	server.SetLogger(logger)
	sinks = append(sinks, server.Events())
	node.SetEmitter(sinks)


	listener, err := net.Listen("tcp", cfg.RPC.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPC.Address, err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	head := node.Head()
	logger.Info("listingd running",
		slog.String("rpc", listener.Addr().String()),
		slog.Uint64("height", head.Height),
		slog.String("root", head.Root.Hex()))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "", "leveldb":
		path := filepath.Join(cfg.DataDir, "ledger")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		db, err := storage.NewLevelDBWithOptions(path, storage.LevelDBOptions{
			CacheMB: cfg.Storage.CacheMB,
			Handles: cfg.Storage.Handles,
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

type envLookupFunc func(string) (string, bool)

// resolveGenesisPath picks the genesis file from the flag, then the
// environment, then the config. An empty result starts an empty ledger.
func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(cfgPath)
}
