package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollisdev/ember/pkg/config"
	"github.com/hollisdev/ember/pkg/memory"
	"github.com/hollisdev/ember/pkg/spark"
)

type echoTool struct{}

func (echoTool) Name() string                       { return "echo" }
func (echoTool) Description() string                { return "echoes" }
func (echoTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (echoTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	text, _ := args["text"].(string)
	return Result(text)
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewToolRegistry()
	result := r.Execute(context.Background(), "does_not_exist", nil)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, "Unknown tool.", result.ForLLM)
}

func TestRegistry_ExecuteAndList(t *testing.T) {
	r := NewToolRegistry()
	r.Register(echoTool{})

	result := r.Execute(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	assert.Equal(t, "hi", result.ForLLM)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"echo"}, r.List())
	assert.Equal(t, 1, r.Count())
}

func TestSanitizeToolArgs_RedactsSecrets(t *testing.T) {
	args := map[string]interface{}{
		"path":    "a.txt",
		"api_key": "sk-12345",
		"nested":  map[string]interface{}{"password": "hunter2", "ok": "fine"},
	}
	got := sanitizeToolArgs(args)
	assert.Equal(t, "a.txt", got["path"])
	assert.Equal(t, "<redacted>", got["api_key"])
	nested := got["nested"].(map[string]interface{})
	assert.Equal(t, "<redacted>", nested["password"])
	assert.Equal(t, "fine", nested["ok"])
}

func TestFileTools_RoundTrip(t *testing.T) {
	ws := t.TempDir()
	write := NewWriteFileTool(ws, true)
	read := NewReadFileTool(ws, true)
	appendTool := NewAppendFileTool(ws, true)
	list := NewListDirTool(ws, true)
	ctx := context.Background()

	result := write.Execute(ctx, map[string]interface{}{"path": "notes/today.md", "content": "hello"})
	require.False(t, result.IsError, result.ForLLM)

	result = appendTool.Execute(ctx, map[string]interface{}{"path": "notes/today.md", "content": " world"})
	require.False(t, result.IsError, result.ForLLM)

	result = read.Execute(ctx, map[string]interface{}{"path": "notes/today.md"})
	require.False(t, result.IsError, result.ForLLM)
	assert.Equal(t, "hello world", result.ForLLM)

	result = list.Execute(ctx, map[string]interface{}{"path": "notes"})
	require.False(t, result.IsError)
	assert.Equal(t, "today.md", result.ForLLM)
}

func TestFileTools_WorkspaceEscapeBlocked(t *testing.T) {
	ws := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	read := NewReadFileTool(ws, true)
	result := read.Execute(context.Background(), map[string]interface{}{"path": "../../../etc/passwd"})
	assert.True(t, result.IsError)

	result = read.Execute(context.Background(), map[string]interface{}{"path": outside})
	assert.True(t, result.IsError, "absolute paths outside the workspace are rejected")
}

func TestFileTools_UnrestrictedAllowsAbsolute(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "free.txt")
	require.NoError(t, os.WriteFile(outside, []byte("free"), 0o644))

	read := NewReadFileTool(t.TempDir(), false)
	result := read.Execute(context.Background(), map[string]interface{}{"path": outside})
	require.False(t, result.IsError)
	assert.Equal(t, "free", result.ForLLM)
}

func TestExecTool(t *testing.T) {
	ws := t.TempDir()
	tool := NewExecTool(ws)
	ctx := context.Background()

	result := tool.Execute(ctx, map[string]interface{}{"command": "echo hello"})
	require.False(t, result.IsError, result.ForLLM)
	assert.Equal(t, "hello", result.ForLLM)

	result = tool.Execute(ctx, map[string]interface{}{"command": "pwd"})
	require.False(t, result.IsError)
	assert.Contains(t, result.ForLLM, filepath.Base(ws))

	result = tool.Execute(ctx, map[string]interface{}{"command": "exit 3"})
	assert.True(t, result.IsError)

	result = tool.Execute(ctx, map[string]interface{}{})
	assert.True(t, result.IsError)
}

func TestMemoryTool(t *testing.T) {
	store, err := memory.NewProtectedStore(t.TempDir())
	require.NoError(t, err)
	tool := NewMemoryTool(store)
	ctx := context.Background()

	result := tool.Execute(ctx, map[string]interface{}{"action": "write", "slot": "USER.md", "content": "# User\n\nSam."})
	require.False(t, result.IsError, result.ForLLM)
	assert.True(t, result.Silent)

	result = tool.Execute(ctx, map[string]interface{}{"action": "read", "slot": "USER.md"})
	require.False(t, result.IsError)
	assert.Contains(t, result.ForLLM, "Sam.")

	result = tool.Execute(ctx, map[string]interface{}{"action": "write", "slot": "OTHER.md", "content": "x"})
	assert.True(t, result.IsError)
}

func TestReminderTool_CreateListDelete(t *testing.T) {
	engine := spark.NewEngine(filepath.Join(t.TempDir(), "jobs.json"), nil, config.SchedulerConfig{})
	tool := NewReminderTool(engine)
	ctx := context.Background()

	due := time.Now().Add(time.Hour).Format(time.RFC3339)
	result := tool.Execute(ctx, map[string]interface{}{"action": "create", "message": "tea", "due_at": due})
	require.False(t, result.IsError, result.ForLLM)
	assert.Contains(t, result.ForLLM, "Scheduled")

	// An equivalent create is reported without being treated as a failure.
	result = tool.Execute(ctx, map[string]interface{}{"action": "create", "message": "tea", "due_at": due})
	require.False(t, result.IsError)
	assert.Contains(t, result.ForLLM, "already exists")

	result = tool.Execute(ctx, map[string]interface{}{"action": "list"})
	require.False(t, result.IsError)
	assert.Contains(t, result.ForLLM, "tea")

	jobs := engine.ListReminders(false)
	require.Len(t, jobs, 1)
	result = tool.Execute(ctx, map[string]interface{}{"action": "delete", "id": jobs[0].ID})
	require.False(t, result.IsError)
	assert.Empty(t, engine.ListReminders(false))
}

func TestReminderTool_BadInput(t *testing.T) {
	engine := spark.NewEngine(filepath.Join(t.TempDir(), "jobs.json"), nil, config.SchedulerConfig{})
	tool := NewReminderTool(engine)
	ctx := context.Background()

	result := tool.Execute(ctx, map[string]interface{}{"action": "create", "message": "x", "due_at": "tomorrow"})
	assert.True(t, result.IsError, "non-RFC3339 due_at is rejected")

	result = tool.Execute(ctx, map[string]interface{}{"action": "create", "message": "x"})
	assert.True(t, result.IsError, "schedule is required")

	result = tool.Execute(ctx, map[string]interface{}{"action": "sleep"})
	assert.True(t, result.IsError)
}

func TestMessageTool(t *testing.T) {
	tool := NewMessageTool()
	ctx := context.Background()

	result := tool.Execute(ctx, map[string]interface{}{"content": "hi"})
	assert.True(t, result.IsError, "no transport connected")

	var gotChannel, gotChat, gotContent string
	tool.SetSendCallback(func(channel, chatID, content string) error {
		gotChannel, gotChat, gotContent = channel, chatID, content
		return nil
	})
	tool.SetContext("discord", "chat-1")

	result = tool.Execute(ctx, map[string]interface{}{"content": "hello there"})
	require.False(t, result.IsError, result.ForLLM)
	assert.True(t, result.Silent)
	assert.Equal(t, "discord", gotChannel)
	assert.Equal(t, "chat-1", gotChat)
	assert.Equal(t, "hello there", gotContent)
}

func TestMessageTool_ExecutionContextWins(t *testing.T) {
	tool := NewMessageTool()
	tool.SetSendCallback(func(channel, chatID, content string) error { return nil })
	tool.SetContext("discord", "default-chat")

	var gotChat string
	tool.SetSendCallback(func(channel, chatID, content string) error {
		gotChat = chatID
		return nil
	})

	ctx := withToolExecutionContext(context.Background(), "discord", "ctx-chat")
	result := tool.Execute(ctx, map[string]interface{}{"content": "hi"})
	require.False(t, result.IsError)
	assert.Equal(t, "ctx-chat", gotChat)
}

func TestConfigTool(t *testing.T) {
	cfg := config.DefaultConfig()
	path := filepath.Join(t.TempDir(), "config.json")
	tool := NewConfigTool(cfg, path)
	ctx := context.Background()

	result := tool.Execute(ctx, map[string]interface{}{"key": "brain.model", "value": "openai/gpt-4o-mini"})
	require.False(t, result.IsError, result.ForLLM)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Brain.Model)

	result = tool.Execute(ctx, map[string]interface{}{"key": "agent.max_turns", "value": "0"})
	assert.True(t, result.IsError)

	result = tool.Execute(ctx, map[string]interface{}{"key": "providers.openrouter.api_key", "value": "x"})
	assert.True(t, result.IsError, "secrets are not model-adjustable")
}
