package channels

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollisdev/ember/pkg/bus"
)

func TestIsAllowed(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	open := NewBaseChannel("discord", mb, nil)
	assert.True(t, open.IsAllowed("anyone"))

	restricted := NewBaseChannel("discord", mb, []string{"12345", "@greg"})
	assert.True(t, restricted.IsAllowed("12345"))
	assert.True(t, restricted.IsAllowed("12345|greg"))
	assert.True(t, restricted.IsAllowed("99999|greg"))
	assert.False(t, restricted.IsAllowed("99999"))
	assert.False(t, restricted.IsAllowed("99999|mallory"))
}

func TestHandleMessagePublishesInbound(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	ch := NewBaseChannel("discord", mb, []string{"42"})
	ch.HandleMessage("42", "chat-1", "hello there")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	assert.Equal(t, "discord", msg.Channel)
	assert.Equal(t, "discord:chat-1", msg.SessionKey)
	assert.Equal(t, "hello there", msg.Content)
}

func TestHandleMessageDropsDisallowedSender(t *testing.T) {
	mb := bus.NewMessageBus()

	ch := NewBaseChannel("discord", mb, []string{"42"})
	ch.HandleMessage("666", "chat-1", "let me in")

	mb.Close()
	msg, ok := mb.ConsumeInbound(context.Background())
	assert.False(t, ok, "disallowed sender must not reach the bus, got %+v", msg)
}

func TestSplitMessageShortContent(t *testing.T) {
	chunks := splitMessage("hello", 1500)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	content := strings.Repeat("line of text\n", 200)
	chunks := splitMessage(content, 1500)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 1500)
		assert.False(t, strings.HasPrefix(chunk, " "))
	}
}

func TestSplitMessageKeepsCodeBlocksIntact(t *testing.T) {
	code := "```go\n" + strings.Repeat("fmt.Println(\"x\")\n", 20) + "```"
	content := strings.Repeat("padding text ", 110) + "\n" + code

	chunks := splitMessage(content, 1500)
	for _, chunk := range chunks {
		opens := strings.Count(chunk, "```")
		assert.Equal(t, 0, opens%2, "chunk splits a code block: %q", chunk)
	}
}
