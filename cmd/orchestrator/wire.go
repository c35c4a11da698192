package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arcflow/conductor/pkg/agent"
	"github.com/arcflow/conductor/pkg/checkpoint"
	"github.com/arcflow/conductor/pkg/circuit"
	"github.com/arcflow/conductor/pkg/config"
	"github.com/arcflow/conductor/pkg/dlq"
	"github.com/arcflow/conductor/pkg/dryrun"
	"github.com/arcflow/conductor/pkg/guard"
	applog "github.com/arcflow/conductor/pkg/logger"
	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/observability"
	"github.com/arcflow/conductor/pkg/oracle"
	"github.com/arcflow/conductor/pkg/orchestrator"
	"github.com/arcflow/conductor/pkg/plugins"
	"github.com/arcflow/conductor/pkg/registry"
	"github.com/arcflow/conductor/pkg/routingcache"
	"github.com/arcflow/conductor/pkg/storage"
	"github.com/arcflow/conductor/pkg/task"
	"github.com/arcflow/conductor/pkg/tool"
)

// chainGate composes two tool.DryRunGate implementations: first is
// consulted before second so a simulated dry-run call never reaches a
// strict-mode approval prompt — see dryrun.Manager's doc comment.
type chainGate struct {
	first, second tool.DryRunGate
}

func (c chainGate) Intercept(call tool.Call, cat tool.Category) (bool, string) {
	if c.first != nil {
		if blocked, reason := c.first.Intercept(call, cat); blocked {
			return blocked, reason
		}
	}
	if c.second != nil {
		return c.second.Intercept(call, cat)
	}
	return false, ""
}

// components bundles everything cmd/orchestrator's subcommands need,
// assembled once at startup from a loaded config.Config.
type components struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       storage.Adapter
	Orchestrator  *orchestrator.Orchestrator
	DLQ           *dlq.Queue
	AutoRetryer   *dlq.AutoRetryer
	Observability *observability.Manager
	ToolRegistry  *tool.Registry
	ToolExecutor  *tool.Executor
	AgentRegistry *registry.AgentRegistry
	Guard         *guard.Guard
	DryRun        *dryrun.Manager
}

// buildComponents wires one instance of every SPEC_FULL.md component from
// cfg, following the dependency order: storage, circuit breaker,
// checkpoint scheduler, routing cache, tool registry + plugins, tool
// executor (with guard/dry-run composed into its DryRun slot), decision
// oracle, per-kind agent loops, agent registry, dead-letter queue, and
// finally the orchestrator that ties them together.
func buildComponents(ctx context.Context, cfg *config.Config, storageCfg storage.Config, obs *observability.Manager, logger *slog.Logger, approve guard.ApprovalFunc) (*components, error) {
	store := storage.Open(storageCfg)

	cb := circuit.NewBreaker(circuit.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		CooldownMs:       cfg.Circuit.CooldownMs,
	})

	sched := checkpoint.NewScheduler(store, checkpoint.Config{
		IntervalMs:        cfg.Checkpoint.IntervalMs,
		ProgressThreshold: cfg.Checkpoint.ProgressThreshold,
		TokenThreshold:    cfg.Checkpoint.TokenThreshold,
		TTL:               cfg.Retention.CheckpointMs,
	})

	agentReg := registry.NewAgentRegistry()
	rc := routingcache.NewCache(cfg.RoutingCache.Capacity, cfg.RoutingCache.TTLMs, agentReg.Generation)

	toolReg := tool.NewRegistry()
	defs, handlers, err := plugins.Load(ctx, cfg.Plugins)
	if err != nil {
		return nil, fmt.Errorf("loading plugins: %w", err)
	}
	for _, def := range defs {
		h, ok := handlers[def.Name]
		if !ok {
			continue
		}
		if err := toolReg.Register(def, h, tool.RegisterOptions{Category: def.Category}); err != nil {
			return nil, fmt.Errorf("registering tool %q: %w", def.Name, err)
		}
	}

	executor := tool.NewExecutor(toolReg)

	if approve == nil {
		approve = denyApprove(logger)
	}
	g := guard.NewGuard(guard.Mode(cfg.ExecutionMode), approve)
	var dr *dryrun.Manager
	if cfg.DryRun.Enabled {
		dr = dryrun.NewManager(cfg.DryRun.BlockIrreversible)
	}
	if dr != nil {
		executor.DryRun = chainGate{first: dr, second: g}
	} else {
		executor.DryRun = g
	}

	oc, err := buildOracle(ctx, cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("building oracle: %w", err)
	}

	loops := buildAgentLoops(oc, toolReg, executor)
	for _, seed := range cfg.Agents {
		if _, ok := loops[seed.Kind]; !ok {
			logger.Warn("agent seed names a kind with no wired loop", "kind", seed.Kind)
			continue
		}
		if err := agentReg.Register(seed.Kind, &registry.AgentHandle{
			Name:         seed.Kind,
			Description:  seed.Description,
			Capabilities: seed.Capabilities,
		}); err != nil {
			return nil, fmt.Errorf("registering agent %q: %w", seed.Kind, err)
		}
	}

	queue := dlq.NewQueue(store, cfg.Retention.DlqMs)

	runAgent := func(ctx context.Context, kind string, t *task.Task) (task.Result, error) {
		loop, ok := loops[kind]
		if !ok {
			return task.Result{}, fmt.Errorf("no agent loop wired for kind %q", kind)
		}
		ctx = applog.WithAgentKind(ctx, kind)
		return loop.Run(ctx, t, message.NewHistory(agentHistoryWindow))
	}

	orch := orchestrator.New(oc, agentReg, cb, sched, rc, runAgent)

	retryer := dlq.NewAutoRetryer(queue, cb, func(rec storage.TaskRecord) {
		ctx := applog.WithTaskID(context.Background(), rec.ID)
		if _, err := orch.Execute(ctx, task.FromRecord(rec)); err != nil {
			logger.ErrorContext(ctx, "auto-retry failed", "error", err)
		}
	})

	return &components{
		Config:        cfg,
		Logger:        logger,
		Storage:       store,
		Orchestrator:  orch,
		DLQ:           queue,
		AutoRetryer:   retryer,
		Observability: obs,
		ToolRegistry:  toolReg,
		ToolExecutor:  executor,
		AgentRegistry: agentReg,
		Guard:         g,
		DryRun:        dr,
	}, nil
}

// buildAgentLoops constructs one agent.Loop per recognised kind that has a
// matching pkg/agent/kinds.go Config constructor, all sharing the same
// oracle, tool registry and executor.
func buildAgentLoops(oc oracle.DecisionOracle, tools *tool.Registry, executor *tool.Executor) map[string]*agent.Loop {
	tracker := &agent.ProcessTracker{}
	history := agent.NewRunHistory(50)
	memo := agent.NewReviewMemo(256)
	const workDir = "."

	configs := map[string]agent.Config{
		string(agent.KindExplore):   agent.ExploreConfig(explorePrompt),
		string(agent.KindArchitect): agent.ArchitectConfig(architectPrompt),
		string(agent.KindCoder):     agent.CoderConfig(coderPrompt, workDir),
		string(agent.KindFixer):     agent.FixerConfig(fixerPrompt, workDir, nil),
		string(agent.KindReviewer):  agent.ReviewerConfig(reviewerPrompt, memo),
		string(agent.KindTester):    agent.TesterConfig(testerPrompt, history),
		string(agent.KindBuilder):   agent.BuilderConfig(builderPrompt, tracker),
		string(agent.KindDeployer):  agent.DeployerConfig(deployerPrompt, tracker),
	}

	loops := make(map[string]*agent.Loop, len(configs))
	for kind, c := range configs {
		loops[kind] = agent.NewLoop(oc, tools, executor, c)
	}
	return loops
}

// agentHistoryWindow bounds a single task's agent-loop conversation; each
// task gets its own fresh history, since agent runs don't carry state
// across tasks the way the orchestrator's own decisions do.
const agentHistoryWindow = 50

const (
	explorePrompt   = "You explore the codebase read-only, reporting what you find."
	architectPrompt = "You design an approach read-only before any code is written."
	coderPrompt     = "You write and edit code to satisfy the task."
	fixerPrompt     = "You diagnose and fix a specific failure."
	reviewerPrompt  = "You review changes read-only and report issues found."
	testerPrompt    = "You run the test suite and report results."
	builderPrompt   = "You build the project and start any services it needs."
	deployerPrompt  = "You ship what the builder produced to its target."
)

func buildOracle(ctx context.Context, cfg config.OracleConfig) (oracle.DecisionOracle, error) {
	switch cfg.Provider {
	case "", "gemini":
		return oracle.NewGeminiOracle(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported oracle provider %q", cfg.Provider)
	}
}

// denyApprove is the default approval policy: it denies every strict-mode
// request and logs why, since there is no operator attached to answer
// one. Used whenever a caller doesn't supply its own ApprovalFunc (chat
// mode wires an interactive, terminal-prompting one instead).
func denyApprove(logger *slog.Logger) guard.ApprovalFunc {
	return func(ctx context.Context, req guard.ApprovalRequest) (bool, string) {
		logger.Warn("strict mode denied approval: no operator attached",
			"tool", req.ToolName, "category", req.Category)
		return false, "no operator attached to approve strict-mode calls"
	}
}
