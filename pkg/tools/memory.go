package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/hollisdev/ember/pkg/memory"
)

// MemoryTool reads and updates the protected long-term memory slots.
type MemoryTool struct {
	store *memory.ProtectedStore
}

func NewMemoryTool(store *memory.ProtectedStore) *MemoryTool {
	return &MemoryTool{store: store}
}

func (t *MemoryTool) Name() string { return "memory" }

func (t *MemoryTool) Description() string {
	return "Read or update a long-term memory slot (" + strings.Join(memory.Slots(), ", ") + ")."
}

func (t *MemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"read", "write"},
				"description": "Whether to read or replace the slot",
			},
			"slot": map[string]interface{}{
				"type":        "string",
				"description": "Memory slot name, e.g. USER.md",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "New slot content (write only)",
			},
		},
		"required": []string{"action", "slot"},
	}
}

func (t *MemoryTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	action, _ := args["action"].(string)
	slot, _ := args["slot"].(string)

	switch action {
	case "read":
		content, err := t.store.Read(slot)
		if err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		return Result(content)
	case "write":
		content, ok := args["content"].(string)
		if !ok {
			return ErrorResult("content is required for write")
		}
		if err := t.store.Write(slot, content); err != nil {
			return ErrorResult(err.Error()).WithError(err)
		}
		return SilentResult(fmt.Sprintf("Updated memory slot %s", slot))
	default:
		return ErrorResult(fmt.Sprintf("unknown memory action %q", action))
	}
}
