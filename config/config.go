package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"nftescrow/core/types"
)

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		Environment: "local",
		DataDir:     "./nftescrow-data",
		RPC: RPC{
			Address:           "127.0.0.1:8899",
			JWTSecretEnv:      "NFTESCROW_RPC_JWT_SECRET",
			RateLimitPerSec:   20,
			RateLimitBurst:    40,
			TrustedProxies:    []string{},
			ReadHeaderTimeout: Duration{5 * time.Second},
			WriteTimeout:      Duration{15 * time.Second},
			MaxBodyBytes:      1 << 20,
		},
		Rent:    types.DefaultRent(),
		Storage: Storage{Backend: "leveldb", CacheMB: 64, Handles: 256},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			Headers:     map[string]string{},
			SampleRatio: 1,
		},
		Webhook: Webhook{SecretEnv: "NFTESCROW_WEBHOOK_SECRET", MaxAttempts: 5},
		Log:     Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		Pauses:  Pauses{Modules: []string{}},
	}
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if cfg.Pauses.Modules == nil {
		cfg.Pauses.Modules = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// JWTSecret resolves the RPC bearer token secret from the environment.
func (c *Config) JWTSecret() string {
	if c == nil || strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.RPC.JWTSecretEnv))
}

// WebhookSecret resolves the webhook signing secret from the environment.
func (c *Config) WebhookSecret() string {
	if c == nil || strings.TrimSpace(c.Webhook.SecretEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.Webhook.SecretEnv))
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
