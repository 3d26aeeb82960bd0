package config

import (
	"time"

	"nftescrow/core/types"
)

// RPC configures the JSON-RPC HTTP server.
type RPC struct {
	Address           string   `toml:"Address"`
	JWTSecretEnv      string   `toml:"JWTSecretEnv"`
	JWTIssuer         string   `toml:"JWTIssuer"`
	RateLimitPerSec   float64  `toml:"RateLimitPerSec"`
	RateLimitBurst    int      `toml:"RateLimitBurst"`
	TrustedProxies    []string `toml:"TrustedProxies"`
	ReadHeaderTimeout Duration `toml:"ReadHeaderTimeout"`
	WriteTimeout      Duration `toml:"WriteTimeout"`
	MaxBodyBytes      int64    `toml:"MaxBodyBytes"`
	// StreamOrigins lists the Origin patterns accepted by the websocket
	// listing stream. Empty allows same-origin clients only.
	StreamOrigins     []string `toml:"StreamOrigins"`
}

// Storage selects and tunes the state database.
type Storage struct {
	// Backend is "leveldb" or "memory".
	Backend string `toml:"Backend"`
	CacheMB int    `toml:"CacheMB"`
	Handles int    `toml:"Handles"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Traces      bool              `toml:"Traces"`
	Metrics     bool              `toml:"Metrics"`
	SampleRatio float64           `toml:"SampleRatio"`
}

// Indexer configures the listing history database. An empty DSN disables it.
type Indexer struct {
	DSN string `toml:"DSN"`
}

// Webhook forwards committed listing events to an HTTP endpoint. An empty URL
// disables it.
type Webhook struct {
	URL         string `toml:"URL"`
	SecretEnv   string `toml:"SecretEnv"`
	MaxAttempts int    `toml:"MaxAttempts"`
}

// Log configures structured logging.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Pauses lists program modules that reject new instructions.
type Pauses struct {
	Modules []string `toml:"Modules"`
}

// Config is the node configuration file.
type Config struct {
	Environment string     `toml:"Environment"`
	DataDir     string     `toml:"DataDir"`
	GenesisFile string     `toml:"GenesisFile"`
	RPC         RPC        `toml:"rpc"`
	Rent        types.Rent `toml:"rent"`
	Storage     Storage    `toml:"storage"`
	Telemetry   Telemetry  `toml:"telemetry"`
	Indexer     Indexer    `toml:"indexer"`
	Webhook     Webhook    `toml:"webhook"`
	Log         Log        `toml:"log"`
	Pauses      Pauses     `toml:"pauses"`
}

// Duration decodes TOML strings such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
