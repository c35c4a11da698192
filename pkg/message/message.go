// Package message implements the Message History (C3): a bounded
// conversation buffer with a trim policy and token accounting, grounded on
// the reference repo's session/event history shape but widened to the
// simpler seed-plus-tail trim rule spec.md §4.3 specifies.
package message

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/arcflow/conductor/pkg/tool"
)

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation, per spec.md §3.4.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []tool.Call
	ToolResults []tool.Result
}

// estimator lazily initialises the tiktoken encoder; falls back to a
// ~4 chars/token heuristic if the encoding table can't be loaded (e.g. no
// network access to fetch the BPE ranks in a sandboxed environment).
var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func tokenCount(s string) int {
	encOnce.Do(func() {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if enc != nil {
		return len(enc.Encode(s, nil, nil))
	}
	// ~4 chars/token heuristic, used only if the encoder failed to load.
	return (len(s) + 3) / 4
}

// History is a bounded, append-only conversation buffer.
type History struct {
	mu          sync.RWMutex
	messages    []Message
	maxMessages int
	tokens      int
}

// NewHistory creates a history bounded to maxMessages (trim triggers at
// 80% of this, per spec.md §4.3).
func NewHistory(maxMessages int) *History {
	if maxMessages < 2 {
		maxMessages = 2
	}
	return &History{maxMessages: maxMessages}
}

// Add appends a message and updates the token estimate.
func (h *History) Add(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
	h.tokens += tokenCount(m.Content)
}

// AddToolResults appends a single user-role message whose ToolResults
// mirror the tool calls the assistant just issued, per spec.md §4.3.
func (h *History) AddToolResults(results []tool.Result) {
	h.Add(Message{Role: RoleUser, ToolResults: results})
}

// Messages returns a copy of the current message slice.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// TokenEstimate returns the running token total.
func (h *History) TokenEstimate() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tokens
}

// NeedsTrim reports whether the buffer is at or above 80% of maxMessages.
func (h *History) NeedsTrim() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages) >= (h.maxMessages*8)/10
}

// TrimIfNeeded trims the buffer when NeedsTrim is true. The trim keeps the
// first (seed) message and the last K messages, where K = maxMessages - 1,
// per spec.md §4.3. Returns the number of messages dropped.
func (h *History) TrimIfNeeded() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) < (h.maxMessages*8)/10 {
		return 0
	}
	return h.trimLocked()
}

func (h *History) trimLocked() int {
	k := h.maxMessages - 1
	if k < 1 {
		k = 1
	}
	if len(h.messages) <= k+1 {
		return 0
	}
	seed := h.messages[0]
	tail := h.messages[len(h.messages)-k:]
	dropped := len(h.messages) - 1 - len(tail)

	kept := make([]Message, 0, 1+len(tail))
	kept = append(kept, seed)
	kept = append(kept, tail...)

	h.tokens = 0
	for _, m := range kept {
		h.tokens += tokenCount(m.Content)
	}
	h.messages = kept
	return dropped
}

// PopLast removes and returns the most recent message, if any.
func (h *History) PopLast() (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return Message{}, false
	}
	last := h.messages[len(h.messages)-1]
	h.messages = h.messages[:len(h.messages)-1]
	h.tokens -= tokenCount(last.Content)
	if h.tokens < 0 {
		h.tokens = 0
	}
	return last, true
}

// Clone returns an independent deep-enough copy of the history.
func (h *History) Clone() *History {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := NewHistory(h.maxMessages)
	cp.messages = make([]Message, len(h.messages))
	copy(cp.messages, h.messages)
	cp.tokens = h.tokens
	return cp
}

// Len returns the number of messages currently buffered.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
