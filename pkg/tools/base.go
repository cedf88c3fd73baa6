package tools

import "context"

// Tool is the interface that all tools must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ContextualTool is an optional interface that tools can implement
// to receive the current message context (channel, chatID).
type ContextualTool interface {
	Tool
	SetContext(channel, chatID string)
}

// ClosableTool is an optional interface for tools that hold runtime
// resources and require explicit teardown when the agent stops.
type ClosableTool interface {
	Tool
	Close() error
}

type toolExecutionContext struct {
	channel string
	chatID  string
}

type toolExecutionContextKey struct{}

// withToolExecutionContext annotates a call context with per-execution metadata.
func withToolExecutionContext(ctx context.Context, channel, chatID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := toolExecutionContextFromContext(ctx); ok {
		if channel == "" {
			channel = existing.channel
		}
		if chatID == "" {
			chatID = existing.chatID
		}
	}
	return context.WithValue(ctx, toolExecutionContextKey{}, toolExecutionContext{channel: channel, chatID: chatID})
}

func toolExecutionContextFromContext(ctx context.Context) (toolExecutionContext, bool) {
	if ctx == nil {
		return toolExecutionContext{}, false
	}
	execCtx, ok := ctx.Value(toolExecutionContextKey{}).(toolExecutionContext)
	return execCtx, ok
}

func channelChatFromContext(ctx context.Context) (string, string) {
	execCtx, ok := toolExecutionContextFromContext(ctx)
	if !ok {
		return "", ""
	}
	return execCtx.channel, execCtx.chatID
}
