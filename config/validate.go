package config

import (
	"fmt"
	"strings"
)

var knownModules = map[string]struct{}{"bank": {}, "token": {}, "listing": {}}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" && c.Storage.Backend != "memory" {
		return fmt.Errorf("DataDir must be set for the %q backend", c.Storage.Backend)
	}
	switch c.Storage.Backend {
	case "leveldb", "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.CacheMB < 0 || c.Storage.Handles < 0 {
		return fmt.Errorf("storage: CacheMB and Handles must not be negative")
	}
	if strings.TrimSpace(c.RPC.Address) == "" {
		return fmt.Errorf("rpc: Address must be set")
	}
	if c.RPC.RateLimitPerSec < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RateLimitPerSec > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when RateLimitPerSec is set")
	}
	if c.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must be positive")
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionYears == 0 {
		return fmt.Errorf("rent: LamportsPerByteYear and ExemptionYears must be positive")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if strings.TrimSpace(c.Webhook.URL) != "" {
		if strings.TrimSpace(c.Webhook.SecretEnv) == "" {
			return fmt.Errorf("webhook: SecretEnv must be set when URL is configured")
		}
		if c.Webhook.MaxAttempts < 0 {
			return fmt.Errorf("webhook: MaxAttempts must not be negative")
		}
	}
	for _, module := range c.Pauses.Modules {
		if _, ok := knownModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("pauses: unknown module %q", module)
		}
	}
	return nil
}
