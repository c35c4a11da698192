package compressor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/message"
)

func makeMessages(n int, content string) []message.Message {
	out := make([]message.Message, n)
	for i := range out {
		out[i] = message.Message{Role: message.RoleUser, Content: content}
	}
	return out
}

// variedContent builds a long string of distinct words so that neither
// the tiktoken encoder's BPE merging nor the char-count fallback collapses
// it into an unrepresentatively small token count.
func variedContent(words int) string {
	vocab := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet"}
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(vocab[i%len(vocab)])
		b.WriteByte(byte('0' + i%10))
	}
	return b.String()
}

func TestCompressKeepsRecentMessagesInFull(t *testing.T) {
	msgs := makeMessages(20, "hi")
	out, stats := Compress(msgs, 10_000, Config{RecentKeep: 5})
	require.GreaterOrEqual(t, len(out), 5)
	assert.Equal(t, 0, stats.TruncatedCount)
}

func TestCompressTruncatesOversizedRecentMessage(t *testing.T) {
	long := strings.Repeat("word ", 5000)
	msgs := []message.Message{{Role: message.RoleUser, Content: long}}
	out, stats := Compress(msgs, 1_000_000, Config{RecentKeep: 1, PerMessageCap: 10})
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.TruncatedCount)
	assert.True(t, strings.HasSuffix(out[0].Content, "...[truncated]"))
	assert.True(t, strings.HasPrefix(out[0].Content, "word word"))
}

func TestCompressPrependsOmissionNoteWhenBudgetTight(t *testing.T) {
	msgs := makeMessages(20, variedContent(100))
	out, stats := Compress(msgs, 50, Config{RecentKeep: 2})
	require.Greater(t, stats.DroppedMessages, 0)
	assert.True(t, isOmissionNote(out[0]))
}

func TestCompressIsIdempotentUnderSameBudget(t *testing.T) {
	msgs := makeMessages(20, variedContent(100))
	first, _ := Compress(msgs, 50, Config{RecentKeep: 2})
	second, stats := Compress(first, 50, Config{RecentKeep: 2})
	assert.Equal(t, len(first), len(second))
	assert.Equal(t, stats.DroppedMessages, countDropped(first))
}

func countDropped(msgs []message.Message) int {
	if len(msgs) == 0 || !isOmissionNote(msgs[0]) {
		return 0
	}
	var n int
	for _, c := range msgs[0].Content {
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
		} else if n > 0 {
			break
		}
	}
	return n
}

func TestCompressNoOpWhenEverythingFits(t *testing.T) {
	msgs := makeMessages(3, "short")
	out, stats := Compress(msgs, 10_000, Config{RecentKeep: 10})
	assert.Equal(t, 3, len(out))
	assert.Equal(t, 0, stats.DroppedMessages)
}
