package checkpoint

// Hooks wraps a Scheduler with the call-site-shaped methods an agent loop
// and orchestrator invoke directly, mirroring the reference repo's
// CheckpointHooks: each hook is a thin, best-effort wrapper that never
// fails the caller even if the underlying checkpoint write does.
type Hooks struct {
	scheduler *Scheduler
}

// NewHooks wraps a scheduler.
func NewHooks(s *Scheduler) *Hooks {
	return &Hooks{scheduler: s}
}

// BeforeDelegation checkpoints immediately before dispatching to an agent.
func (h *Hooks) BeforeDelegation(taskID string) {
	_ = h.scheduler.Event(taskID, ReasonAuto)
}

// AfterDelegation checkpoints immediately after an agent call resolves.
func (h *Hooks) AfterDelegation(taskID string) {
	_ = h.scheduler.Event(taskID, ReasonAuto)
}

// OnSubTaskComplete checkpoints when one sub-task in a decomposition
// finishes, successfully or not.
func (h *Hooks) OnSubTaskComplete(taskID string) {
	_ = h.scheduler.Event(taskID, ReasonAuto)
}

// OnIterationEnd runs the token-threshold check with tokensUsed at the end
// of an agent-loop iteration. The progress check it makes is passed 0, so
// it never takes a progress checkpoint; callers that know the progress
// call CheckProgress themselves.
func (h *Hooks) OnIterationEnd(taskID string, iteration int, tokensUsed int) {
	h.scheduler.CheckTokens(taskID, tokensUsed)
	h.scheduler.CheckProgress(taskID, 0) // caller supplies progress separately when known
}

// OnError takes an error checkpoint so the task can be resumed or
// enrolled in the dead-letter queue with its last-known state intact.
func (h *Hooks) OnError(taskID string) {
	_ = h.scheduler.Event(taskID, ReasonError)
}

// OnComplete takes a final checkpoint before the task's schedule is
// cancelled.
func (h *Hooks) OnComplete(taskID string) {
	_ = h.scheduler.Event(taskID, ReasonAuto)
}

// OnTimeout takes a timeout-reason checkpoint.
func (h *Hooks) OnTimeout(taskID string) {
	_ = h.scheduler.Event(taskID, ReasonTimeout)
}

// OnManualRequest takes a user_request-reason checkpoint.
func (h *Hooks) OnManualRequest(taskID string) {
	_ = h.scheduler.Event(taskID, ReasonUserRequest)
}
