package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// AgentStatus is the advisory availability state of a registered agent.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentExecuting AgentStatus = "executing"
	AgentBusy      AgentStatus = "busy"
)

// AgentHandle is what the Agent Registry (C2) tracks for a registered
// agent kind: the spec.md §4.11 recognised kinds are explore, coder,
// builder, tester, deployer, reviewer, fixer, architect.
type AgentHandle struct {
	Name         string
	Description  string
	Capabilities []string
	status       AgentStatus
}

// RecognisedAgentKinds is the set the Orchestrator validates a delegate
// decision's targetAgent against, per spec.md §4.9 step 3, and the set
// AgentRegistry.Register itself enforces: the eight-kind vocabulary is
// fixed by spec, not open to arbitrary caller-chosen names.
var RecognisedAgentKinds = map[string]bool{
	"explore": true, "coder": true, "builder": true, "tester": true,
	"deployer": true, "reviewer": true, "fixer": true, "architect": true,
}

// AgentRegistry is the process-wide directory of agents by kind (C2). A
// plain mutex-guarded map rather than a generic container: the registry
// only ever holds *AgentHandle, and Register's job is inseparable from
// validating the kind against spec.md's fixed eight-kind vocabulary, so
// there is no useful generic layer left to factor out from underneath it.
type AgentRegistry struct {
	mu         sync.RWMutex
	agents     map[string]*AgentHandle
	generation atomic.Int64
}

// NewAgentRegistry creates an empty agent registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]*AgentHandle)}
}

// Register adds an agent kind, bumping Generation so the routing cache
// (pkg/routingcache) can invalidate itself on the next lookup — spec.md
// §5's recommended resolution of the routing-cache invalidation open
// question. The kind must be one of RecognisedAgentKinds: unlike a
// general-purpose registry, this one has a closed vocabulary.
func (r *AgentRegistry) Register(kind string, handle *AgentHandle) error {
	if !RecognisedAgentKinds[kind] {
		return fmt.Errorf("registry: %q is not a recognised agent kind", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[kind]; exists {
		return fmt.Errorf("registry: agent kind %q already registered", kind)
	}
	r.agents[kind] = handle
	r.generation.Add(1)
	return nil
}

// Remove deregisters an agent kind, also bumping Generation.
func (r *AgentRegistry) Remove(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[kind]; !exists {
		return fmt.Errorf("registry: agent kind %q not found", kind)
	}
	delete(r.agents, kind)
	r.generation.Add(1)
	return nil
}

// Get returns the handle registered for kind, if any.
func (r *AgentRegistry) Get(kind string) (*AgentHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.agents[kind]
	return h, ok
}

// Count returns the number of registered agent kinds.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// Generation returns a counter that increments on every structural change
// (Register/Remove) to the registry. Advisory status changes
// (SetStatus) do not bump it — the routing cache memoises *decisions*,
// which depend on which agents exist, not their momentary busy state.
func (r *AgentRegistry) Generation() int64 {
	return r.generation.Load()
}

// SetStatus updates a registered agent's advisory status. Unknown kinds
// are a no-op — the Orchestrator handles AGENT_NOT_FOUND at lookup time.
func (r *AgentRegistry) SetStatus(kind string, status AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.agents[kind]; ok {
		h.status = status
	}
}

// IsAvailable reports whether the agent kind is registered and not busy.
// This is advisory only: the caller must still handle a race where the
// agent becomes busy between this check and the actual call (spec.md §5).
func (r *AgentRegistry) IsAvailable(kind string) bool {
	h, ok := r.Get(kind)
	if !ok {
		return false
	}
	return h.status != AgentBusy
}

// AgentInfo is the read-only view exposed to the Orchestrator's analysis
// prompt: name, description, status.
type AgentInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      AgentStatus `json:"status"`
}

// GetAgentsInfo returns the info view for every registered agent, sorted by
// name so the orchestrator's analysis prompt is stable between calls.
func (r *AgentRegistry) GetAgentsInfo() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]AgentInfo, 0, len(r.agents))
	for _, h := range r.agents {
		infos = append(infos, AgentInfo{Name: h.Name, Description: h.Description, Status: h.status})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
