package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimKeepsSeedAndTail(t *testing.T) {
	h := NewHistory(5) // trims at 4 messages, keeps seed + last 4
	for i := 0; i < 10; i++ {
		h.Add(Message{Role: RoleUser, Content: "msg"})
		h.TrimIfNeeded()
	}
	msgs := h.Messages()
	assert.LessOrEqual(t, len(msgs), 5)
	assert.Equal(t, "msg", msgs[0].Content)
}

func TestNeedsTrimThreshold(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 8; i++ {
		h.Add(Message{Role: RoleUser, Content: "x"})
	}
	assert.True(t, h.NeedsTrim()) // 8 >= 80% of 10
}

func TestPopLast(t *testing.T) {
	h := NewHistory(10)
	h.Add(Message{Content: "a"})
	h.Add(Message{Content: "b"})
	last, ok := h.PopLast()
	assert.True(t, ok)
	assert.Equal(t, "b", last.Content)
	assert.Equal(t, 1, h.Len())
}

func TestCloneIsIndependent(t *testing.T) {
	h := NewHistory(10)
	h.Add(Message{Content: "a"})
	clone := h.Clone()
	clone.Add(Message{Content: "b"})
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 2, clone.Len())
}
