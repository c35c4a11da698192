package config

import (
	"fmt"
	"time"
)

// withDefaults fills in the zero-valued fields of c with the orchestration
// runtime's defaults, applied after unmarshal and before validation.
func (c *Config) withDefaults() {
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 3
	}
	if c.TaskTimeoutMs == 0 {
		c.TaskTimeoutMs = 120_000 * time.Millisecond
	}
	if c.MaxDecompositionDepth == 0 {
		c.MaxDecompositionDepth = 5
	}
	if c.Circuit.FailureThreshold == 0 {
		c.Circuit.FailureThreshold = 5
	}
	if c.Circuit.CooldownMs == 0 {
		c.Circuit.CooldownMs = 60_000 * time.Millisecond
	}
	if c.Checkpoint.IntervalMs == 0 {
		c.Checkpoint.IntervalMs = 30_000 * time.Millisecond
	}
	if c.Checkpoint.ProgressThreshold == 0 {
		c.Checkpoint.ProgressThreshold = 0.10
	}
	if c.Checkpoint.TokenThreshold == 0 {
		c.Checkpoint.TokenThreshold = 10_000
	}
	if c.Retention.TaskMs == 0 {
		c.Retention.TaskMs = 7 * 24 * time.Hour
	}
	if c.Retention.CheckpointMs == 0 {
		c.Retention.CheckpointMs = 24 * time.Hour
	}
	if c.Retention.DlqMs == 0 {
		c.Retention.DlqMs = 24 * time.Hour
	}
	if c.ExecutionMode == "" {
		c.ExecutionMode = ExecutionModeExecute
	}
	if c.RoutingCache.Capacity == 0 {
		c.RoutingCache.Capacity = 256
	}
	if c.RoutingCache.TTLMs == 0 {
		c.RoutingCache.TTLMs = 5 * time.Minute
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "gemini"
	}
	if c.Oracle.APIKey == "" {
		c.Oracle.APIKey = GetProviderAPIKey(c.Oracle.Provider)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the loaded configuration for the structural problems the
// rest of the runtime can't recover from. It replaces the reference repo's
// generic structural validator, since the orchestration runtime's config
// shape is small enough to check by hand.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: maxConcurrency must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.MaxDecompositionDepth != 5 {
		return fmt.Errorf("config: maxDecompositionDepth is fixed at 5, got %d", c.MaxDecompositionDepth)
	}
	switch c.ExecutionMode {
	case ExecutionModePlan, ExecutionModeExecute, ExecutionModeStrict:
	default:
		return fmt.Errorf("config: executionMode %q is not one of plan, execute, strict", c.ExecutionMode)
	}
	if c.Circuit.FailureThreshold < 1 {
		return fmt.Errorf("config: circuit.failureThreshold must be at least 1, got %d", c.Circuit.FailureThreshold)
	}
	if c.Checkpoint.ProgressThreshold < 0 || c.Checkpoint.ProgressThreshold > 1 {
		return fmt.Errorf("config: checkpoint.progressThreshold must be in [0,1], got %v", c.Checkpoint.ProgressThreshold)
	}
	if c.Oracle.Provider == "" {
		return fmt.Errorf("config: oracle.provider must be set")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Kind == "" {
			return fmt.Errorf("config: an agent seed has an empty kind")
		}
		if seen[a.Kind] {
			return fmt.Errorf("config: agent kind %q is seeded more than once", a.Kind)
		}
		seen[a.Kind] = true
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range", c.Server.Port)
	}
	for _, p := range c.Plugins {
		if p.Name == "" {
			return fmt.Errorf("config: a plugin source has an empty name")
		}
		switch p.Kind {
		case "process":
			if p.Path == "" {
				return fmt.Errorf("config: plugin %q of kind process requires a path", p.Name)
			}
		case "mcp":
			if p.Command == "" {
				return fmt.Errorf("config: plugin %q of kind mcp requires a command", p.Name)
			}
		default:
			return fmt.Errorf("config: plugin %q has unknown kind %q (want process or mcp)", p.Name, p.Kind)
		}
	}
	return nil
}

// Load applies defaults and validates in sequence, the shape
// koanf_loader.go's unmarshalAndProcess calls after decoding raw config into
// a *Config.
func (c *Config) Load() error {
	c.withDefaults()
	return c.Validate()
}
