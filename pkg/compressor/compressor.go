// Package compressor implements the Context Compressor (C15): given a
// message list and a token budget, keeps recent turns intact, truncates
// oversized ones with a visible marker, and fills the remaining budget
// with as much older context as fits, grounded on the same lazy tiktoken
// idiom pkg/message uses for token accounting.
package compressor

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/arcflow/conductor/pkg/message"
)

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
	return (len(s) + 3) / 4
}

// omittedPrefix marks the synthetic continuity note prepended when older
// messages are dropped entirely; Compress is idempotent with respect to
// it (a second pass recognizes and does not duplicate it).
const omittedPrefix = "[compressed: "

// Config tunes the compressor, with spec.md §6.5-adjacent defaults
// applied by Compress when zero.
type Config struct {
	RecentKeep       int // R: number of most recent messages kept in full, default 10
	PerMessageCap    int // token cap above which a kept message is truncated, default 2000
	TruncationMarker string
}

func (c Config) withDefaults() Config {
	if c.RecentKeep <= 0 {
		c.RecentKeep = 10
	}
	if c.PerMessageCap <= 0 {
		c.PerMessageCap = 2000
	}
	if c.TruncationMarker == "" {
		c.TruncationMarker = "...[truncated]"
	}
	return c
}

// Stats reports what Compress did.
type Stats struct {
	InputMessages    int
	OutputMessages   int
	DroppedMessages  int
	TruncatedCount   int
	InputTokens      int
	OutputTokens     int
}

// Compress applies spec.md §4.15's algorithm: (a) per-message token
// counts, (b) keep the last R messages in full, truncating any that
// individually exceed PerMessageCap with a prefix-preserving marker,
// (c) fill the remaining budget by prepending older messages
// newest-to-oldest, (d) prepend a synthetic omission note if anything was
// dropped. Running Compress again on its own output under the same
// budget is a no-op.
func Compress(messages []message.Message, budget int, cfg Config) ([]message.Message, Stats) {
	cfg = cfg.withDefaults()

	stats := Stats{InputMessages: len(messages)}
	for _, m := range messages {
		stats.InputTokens += tokenCount(m.Content)
	}

	if len(messages) == 0 {
		return messages, stats
	}

	alreadyCompressed := len(messages) > 0 && isOmissionNote(messages[0])
	body := messages
	priorDropped := 0
	if alreadyCompressed {
		body = messages[1:]
		fmt.Sscanf(messages[0].Content[len(omittedPrefix):], "%d", &priorDropped)
	}

	recentStart := len(body) - cfg.RecentKeep
	if recentStart < 0 {
		recentStart = 0
	}
	recent := make([]message.Message, len(body)-recentStart)
	copy(recent, body[recentStart:])

	recentTokens := 0
	for i := range recent {
		if alreadyTruncated(recent[i].Content, cfg.TruncationMarker) {
			recentTokens += tokenCount(recent[i].Content)
			continue
		}
		t := tokenCount(recent[i].Content)
		if t > cfg.PerMessageCap {
			recent[i].Content = truncatePreservingPrefix(recent[i].Content, cfg.PerMessageCap, cfg.TruncationMarker)
			stats.TruncatedCount++
			t = tokenCount(recent[i].Content)
		}
		recentTokens += t
	}

	remaining := budget - recentTokens
	var older []message.Message
	dropped := priorDropped
	for i := recentStart - 1; i >= 0; i-- {
		t := tokenCount(body[i].Content)
		if t <= remaining {
			older = append([]message.Message{body[i]}, older...)
			remaining -= t
		} else {
			dropped++
		}
	}
	out := make([]message.Message, 0, len(older)+len(recent)+1)
	if dropped > 0 {
		out = append(out, omissionNote(dropped))
	}
	out = append(out, older...)
	out = append(out, recent...)

	stats.OutputMessages = len(out)
	stats.DroppedMessages = dropped
	for _, m := range out {
		stats.OutputTokens += tokenCount(m.Content)
	}
	return out, stats
}

func truncatePreservingPrefix(content string, capTokens int, marker string) string {
	// Approximate chars-per-token using the same heuristic ratio as the
	// fallback estimator; exact enough for a visible truncation boundary.
	maxChars := capTokens * 4
	if maxChars >= len(content) {
		return content
	}
	if maxChars < 0 {
		maxChars = 0
	}
	return content[:maxChars] + marker
}

func omissionNote(n int) message.Message {
	return message.Message{
		Role:    message.RoleUser,
		Content: fmt.Sprintf("%s%d previous messages omitted]", omittedPrefix, n),
	}
}

func alreadyTruncated(content, marker string) bool {
	return len(content) >= len(marker) && content[len(content)-len(marker):] == marker
}

func isOmissionNote(m message.Message) bool {
	return len(m.Content) >= len(omittedPrefix) && m.Content[:len(omittedPrefix)] == omittedPrefix
}
