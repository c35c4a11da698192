package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/arcflow/conductor/pkg/task"
	"github.com/arcflow/conductor/pkg/tool"
)

// Kind names the eight agent specialisations spec.md §4.10 describes. Each
// is a Config over the same Loop rather than a bespoke implementation —
// concrete tool bodies are out of scope here; only the loop's extension
// points (allowed categories, hooks) differ per kind.
type Kind string

const (
	KindExplore   Kind = "explore"
	KindArchitect Kind = "architect"
	KindCoder     Kind = "coder"
	KindFixer     Kind = "fixer"
	KindReviewer  Kind = "reviewer"
	KindTester    Kind = "tester"
	KindBuilder   Kind = "builder"
	KindDeployer  Kind = "deployer"
)

var readOnly = map[tool.Category]bool{
	tool.CategoryRead:    true,
	tool.CategoryNetwork: true,
	tool.CategoryOther:   true,
}

// ExploreConfig builds a read-only, wide-search agent.
func ExploreConfig(systemPrompt string) Config {
	return Config{Kind: string(KindExplore), SystemPrompt: systemPrompt, AllowedCategories: readOnly}
}

// ArchitectConfig builds a read-only agent with a larger step budget,
// suited to the longer deliberation a design pass needs.
func ArchitectConfig(systemPrompt string) Config {
	return Config{
		Kind:              string(KindArchitect),
		SystemPrompt:      systemPrompt,
		AllowedCategories: readOnly,
		MaxSteps:          DefaultMaxSteps * 2,
	}
}

// CoderConfig builds a read+write agent that snapshots every file it is
// about to touch before its first write and restores the snapshot if the
// run ends in failure, so a half-finished edit never lingers on disk.
func CoderConfig(systemPrompt string, workDir string) Config {
	snap := newFileSnapshotter(workDir)
	return Config{
		Kind:         string(KindCoder),
		SystemPrompt: systemPrompt,
		AllowedCategories: map[tool.Category]bool{
			tool.CategoryRead:         true,
			tool.CategoryFileWrite:    true,
			tool.CategoryGitOperation: true,
			tool.CategoryOther:        true,
		},
		BeforeRun: func(ctx context.Context, t *task.Task) error {
			return snap.capture(t)
		},
		AfterRun: func(ctx context.Context, t *task.Task, result task.Result) task.Result {
			if !result.Success {
				snap.restore()
			}
			return result
		},
	}
}

// FixerConfig builds a read+write agent whose AfterRun hook runs the
// caller-supplied post-fix verification step (e.g. re-running the failing
// test); postVerify, when non-nil, decides whether a nominally successful
// fix actually resolved the issue, rolling back otherwise.
func FixerConfig(systemPrompt, workDir string, postVerify func(ctx context.Context, t *task.Task) (bool, string)) Config {
	snap := newFileSnapshotter(workDir)
	cfg := Config{
		Kind:         string(KindFixer),
		SystemPrompt: systemPrompt,
		AllowedCategories: map[tool.Category]bool{
			tool.CategoryRead:      true,
			tool.CategoryFileWrite: true,
			tool.CategoryOther:     true,
		},
		BeforeRun: func(ctx context.Context, t *task.Task) error {
			return snap.capture(t)
		},
	}
	cfg.AfterRun = func(ctx context.Context, t *task.Task, result task.Result) task.Result {
		if !result.Success {
			snap.restore()
			return result
		}
		if postVerify == nil {
			return result
		}
		ok, reason := postVerify(ctx, t)
		if ok {
			return result
		}
		snap.restore()
		return task.Result{
			Success: false,
			Output:  result.Output,
			Errors: []task.ResultError{{
				Code:       "FIX_NOT_VERIFIED",
				Message:    reason,
				Suggestion: "reverted to the pre-fix snapshot",
			}},
		}
	}
	return cfg
}

// ReviewMemo is a bounded, TTL-less LRU keyed by (filePath, contentHash)
// so a reviewer agent never re-analyses an unchanged file across runs.
type ReviewMemo struct {
	cache *lru.Cache
}

// NewReviewMemo creates a memoization cache bounded to capacity entries.
func NewReviewMemo(capacity int) *ReviewMemo {
	if capacity <= 0 {
		capacity = 256
	}
	c, _ := lru.New(capacity)
	return &ReviewMemo{cache: c}
}

func (m *ReviewMemo) key(filePath, content string) string {
	sum := sha256.Sum256([]byte(content))
	return filePath + "#" + hex.EncodeToString(sum[:8])
}

// Lookup returns a previously memoized review output for the given file
// contents, if any.
func (m *ReviewMemo) Lookup(filePath, content string) (string, bool) {
	v, ok := m.cache.Get(m.key(filePath, content))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Store memoizes a review output against the file's current contents.
func (m *ReviewMemo) Store(filePath, content, review string) {
	m.cache.Add(m.key(filePath, content), review)
}

// ReviewerConfig builds a read-only agent with file-content-keyed review
// memoization; memo is consulted by the caller's review-analyser tools,
// not by the loop itself, since the loop has no notion of file contents.
func ReviewerConfig(systemPrompt string, memo *ReviewMemo) Config {
	_ = memo // exposed for the caller to thread into its review tool handlers
	return Config{
		Kind:              string(KindReviewer),
		SystemPrompt:      systemPrompt,
		AllowedCategories: readOnly,
	}
}

// RunHistory is a bounded ring of an agent's recent run outcomes, e.g. for
// surfacing "last N test runs" in a checkpoint.
type RunHistory struct {
	mu      sync.Mutex
	entries []string
	limit   int
}

// NewRunHistory creates a history bounded to limit entries.
func NewRunHistory(limit int) *RunHistory {
	if limit <= 0 {
		limit = 20
	}
	return &RunHistory{limit: limit}
}

// Record appends an entry, evicting the oldest if over limit.
func (h *RunHistory) Record(entry string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// Entries returns a copy of the recorded history.
func (h *RunHistory) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// TesterConfig builds an agent restricted to read + shell-command
// categories (test runners are invoked as shell commands), recording each
// run's task ID and success flag into history.
func TesterConfig(systemPrompt string, history *RunHistory) Config {
	return Config{
		Kind:         string(KindTester),
		SystemPrompt: systemPrompt,
		AllowedCategories: map[tool.Category]bool{
			tool.CategoryRead:         true,
			tool.CategoryShellCommand: true,
		},
		AfterRun: func(ctx context.Context, t *task.Task, result task.Result) task.Result {
			if history != nil {
				history.Record(fmt.Sprintf("task=%s success=%v", t.ID, result.Success))
			}
			return result
		},
	}
}

// ProcessTracker tracks build/dev-server processes a builder agent starts,
// so a supervisor can stop them all when a task is cancelled or the
// workspace is torn down.
type ProcessTracker struct {
	mu       sync.Mutex
	stoppers []func()
}

// Track registers a stop function for a process the builder agent started.
func (p *ProcessTracker) Track(stop func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stoppers = append(p.stoppers, stop)
}

// StopAll invokes every tracked stop function, clearing the tracker.
func (p *ProcessTracker) StopAll() {
	p.mu.Lock()
	stoppers := p.stoppers
	p.stoppers = nil
	p.mu.Unlock()
	for _, stop := range stoppers {
		stop()
	}
}

// BuilderConfig builds an agent restricted to shell, package-install,
// server-start/stop categories, tracking long-lived processes it starts.
func BuilderConfig(systemPrompt string, tracker *ProcessTracker) Config {
	cfg := Config{
		Kind:         string(KindBuilder),
		SystemPrompt: systemPrompt,
		AllowedCategories: map[tool.Category]bool{
			tool.CategoryRead:           true,
			tool.CategoryShellCommand:   true,
			tool.CategoryPackageInstall: true,
			tool.CategoryServerStart:    true,
			tool.CategoryServerStop:     true,
		},
	}
	if tracker != nil {
		cfg.AfterRun = func(ctx context.Context, t *task.Task, result task.Result) task.Result {
			if !result.Success {
				tracker.StopAll()
			}
			return result
		}
	}
	return cfg
}

// DeployerConfig builds an agent restricted to shell, server-start/stop and
// network categories — it ships what a builder already produced rather than
// installing packages or writing files — tracking any long-lived process it
// starts the same way BuilderConfig does.
func DeployerConfig(systemPrompt string, tracker *ProcessTracker) Config {
	cfg := Config{
		Kind:         string(KindDeployer),
		SystemPrompt: systemPrompt,
		AllowedCategories: map[tool.Category]bool{
			tool.CategoryRead:         true,
			tool.CategoryShellCommand: true,
			tool.CategoryServerStart:  true,
			tool.CategoryServerStop:   true,
			tool.CategoryNetwork:      true,
		},
	}
	if tracker != nil {
		cfg.AfterRun = func(ctx context.Context, t *task.Task, result task.Result) task.Result {
			if !result.Success {
				tracker.StopAll()
			}
			return result
		}
	}
	return cfg
}

// fileSnapshotter captures the byte contents of every file a task's context
// references before a coder/fixer agent's first write, and restores them
// verbatim on rollback. It is intentionally unaware of how the write
// happened — it only deals with paths named in task.Context.Files.
type fileSnapshotter struct {
	workDir string
	mu      sync.Mutex
	saved   map[string][]byte
	missing map[string]bool
}

func newFileSnapshotter(workDir string) *fileSnapshotter {
	return &fileSnapshotter{workDir: workDir, saved: map[string][]byte{}, missing: map[string]bool{}}
}

func (s *fileSnapshotter) capture(t *task.Task) error {
	if t.Context == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rel := range t.Context.Files {
		p := s.resolve(rel)
		b, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				s.missing[p] = true
				continue
			}
			return fmt.Errorf("agent: snapshotting %s: %w", p, err)
		}
		s.saved[p] = b
	}
	return nil
}

func (s *fileSnapshotter) resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.workDir, rel)
}

// restore is best-effort: write and remove errors are ignored, and it
// never panics.
func (s *fileSnapshotter) restore() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, b := range s.saved {
		_ = os.WriteFile(p, b, 0o644)
	}
	for p := range s.missing {
		_ = os.Remove(p)
	}
}
