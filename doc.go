// Package conductor is a multi-agent orchestration runtime.
//
// Conductor receives a task expressed in natural language, decides whether
// to answer it directly, delegate it to a single specialised agent, or
// decompose it into a dependency graph of sub-tasks, then schedules those
// sub-tasks across a pool of agents with bounded parallelism, per-agent
// failure isolation, checkpointed progress, and a dead-letter queue for
// unrecoverable failures.
//
// # Packages
//
//	pkg/task         task lifecycle and status machine
//	pkg/message       bounded conversation history
//	pkg/registry      agent registry
//	pkg/tool          tool registry and execution
//	pkg/circuit       per-agent circuit breaker
//	pkg/storage       durable/kv/in-memory persistence
//	pkg/checkpoint    checkpoint scheduling and recovery
//	pkg/dlq           dead-letter queue with auto-retry
//	pkg/executor      dependency-aware parallel executor
//	pkg/guard         execution-mode policy (plan/execute/strict)
//	pkg/dryrun        side-effect interception and simulation
//	pkg/compressor    token-budgeted history compression
//	pkg/routingcache  decision memoisation
//	pkg/oracle        decision oracle client interface and implementations
//	pkg/agent         the tool-calling agent loop
//	pkg/orchestrator  the decision loop tying the above together
//	pkg/config        layered YAML/consul/etcd/zookeeper configuration
//	pkg/server        HTTP front door
//
// # Alpha status
//
// Conductor is under active development; APIs may still change.
package conductor
