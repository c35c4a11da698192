package config

import "time"

// ExecutionMode mirrors pkg/guard's three modes, named here so config
// files can select one without importing pkg/guard.
type ExecutionMode string

const (
	ExecutionModePlan    ExecutionMode = "plan"
	ExecutionModeExecute ExecutionMode = "execute"
	ExecutionModeStrict  ExecutionMode = "strict"
)

// CircuitConfig mirrors pkg/circuit.Config, per spec.md §6.5.
type CircuitConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	CooldownMs       time.Duration `yaml:"cooldownMs"`
}

// CheckpointConfig mirrors pkg/checkpoint.Config, per spec.md §6.5.
type CheckpointConfig struct {
	IntervalMs        time.Duration `yaml:"intervalMs"`
	ProgressThreshold float64       `yaml:"progressThreshold"`
	TokenThreshold    int           `yaml:"tokenThreshold"`
}

// RetentionConfig tunes TTLs for the three persisted record kinds.
type RetentionConfig struct {
	TaskMs       time.Duration `yaml:"taskMs"`
	CheckpointMs time.Duration `yaml:"checkpointMs"`
	DlqMs        time.Duration `yaml:"dlqMs"`
}

// DryRunConfig mirrors pkg/dryrun's knobs, per spec.md §6.5.
type DryRunConfig struct {
	Enabled           bool     `yaml:"enabled"`
	BlockIrreversible bool     `yaml:"blockIrreversible"`
	Categories        []string `yaml:"categories,omitempty"`
}

// RoutingCacheConfig mirrors pkg/routingcache's knobs.
type RoutingCacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTLMs    time.Duration `yaml:"ttlMs"`
}

// OracleConfig selects and configures the one DecisionOracle implementation
// wired at startup (spec.md §6.1).
type OracleConfig struct {
	Provider string `yaml:"provider"` // currently only "gemini"
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"` // usually left empty; resolved from env
}

// AgentSeed describes one agent kind to register with the Agent Registry
// (C2) at startup — the process has no dynamic agent discovery.
type AgentSeed struct {
	Kind         string   `yaml:"kind"`
	Description  string   `yaml:"description"`
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// ServerConfig tunes the HTTP API surface (pkg/server).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig tunes pkg/logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format,omitempty"` // "text" | "json"
}

// PluginSource describes one external tool source to load at startup:
// either an out-of-process go-plugin binary or an MCP server reached over
// stdio. Only the tool definitions and call handlers are loaded; the
// plugin process itself keeps running the tool bodies.
type PluginSource struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"` // "process" | "mcp"
	Path    string   `yaml:"path,omitempty"`    // binary path, for kind=process
	Command string   `yaml:"command,omitempty"` // server command, for kind=mcp
	Args    []string `yaml:"args,omitempty"`
	Filter  []string `yaml:"filter,omitempty"` // expose only these tool names; empty means all
}

// Config is the orchestration runtime's top-level configuration, per
// spec.md §6.5's enumerated keys plus the ambient sections (oracle,
// server, logging, agents, routingCache) every real deployment of it
// needs but the distilled enumeration left implicit.
type Config struct {
	MaxConcurrency        int           `yaml:"maxConcurrency"`
	TaskTimeoutMs         time.Duration `yaml:"taskTimeoutMs"`
	MaxDecompositionDepth int           `yaml:"maxDecompositionDepth"`

	Circuit       CircuitConfig      `yaml:"circuit"`
	Checkpoint    CheckpointConfig   `yaml:"checkpoint"`
	Retention     RetentionConfig    `yaml:"retention"`
	ExecutionMode ExecutionMode      `yaml:"executionMode"`
	DryRun        DryRunConfig       `yaml:"dryRun"`
	RoutingCache  RoutingCacheConfig `yaml:"routingCache"`

	Oracle  OracleConfig  `yaml:"oracle"`
	Agents  []AgentSeed   `yaml:"agents"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`

	Plugins []PluginSource `yaml:"plugins,omitempty"`
}
