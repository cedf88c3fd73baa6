package agent

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/hollisdev/ember/pkg/logger"
	"github.com/hollisdev/ember/pkg/memory"
	"github.com/hollisdev/ember/pkg/state"
	"github.com/hollisdev/ember/pkg/tools"
)

// ContextAssembler composes the system prompt and the per-run fragments the
// brain sees: identity, memory slots, available tools, internal state, and
// the rolling summary.
type ContextAssembler struct {
	workspace string
	store     *memory.ProtectedStore
	tools     *tools.ToolRegistry
	state     *state.Manager
}

func NewContextAssembler(workspace string, store *memory.ProtectedStore, registry *tools.ToolRegistry, st *state.Manager) *ContextAssembler {
	return &ContextAssembler{workspace: workspace, store: store, tools: registry, state: st}
}

// SystemPrompt is the fixed identity plus the thought protocol contract.
func (ca *ContextAssembler) SystemPrompt() string {
	runtimeInfo := fmt.Sprintf("%s %s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())

	return fmt.Sprintf(`# ember

You are ember, a personal automation agent. You get things done with tools
and keep your answers short.

## Runtime
%s

## Workspace
Your workspace is at: %s. File paths in tool calls are relative to it.

%s

## Response protocol

Respond with a single JSON object on every turn:

{
  "reasoning": "one or two sentences on what you are doing and why",
  "plan": ["optional remaining steps"],
  "action": {"name": "tool_name", "arguments": {...}},
  "reply": "final answer for the user"
}

Rules:
1. Exactly one of "action" or "reply" per response, never both.
2. Use "action" to call a tool; you will receive an Observation and may act again.
3. Use "reply" only when the task is done or nothing needs doing.
4. To ask the user a clarifying question, call the "ask_user" action with a "question" argument.
5. Never pretend to have run a tool. If you said you'd do something, do it with an action.`,
		runtimeInfo, ca.workspace, ca.buildToolsSection())
}

func (ca *ContextAssembler) buildToolsSection() string {
	if ca.tools == nil {
		return ""
	}
	summaries := ca.tools.GetSummaries()
	if len(summaries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available Tools\n\n")
	for _, s := range summaries {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("- `ask_user` - Ask the user a clarifying question and wait for the answer.")
	return sb.String()
}

// Fragments returns the per-run system fragments: memory slots, internal
// state, and the rolling summary when present.
func (ca *ContextAssembler) Fragments(summary string) []string {
	var fragments []string

	if ca.store != nil {
		slots, err := ca.store.ReadAll()
		if err != nil {
			logger.WarnCF("agent", "failed to read memory slots", map[string]interface{}{"error": err.Error()})
		} else {
			var sb strings.Builder
			sb.WriteString("# Long-term memory\n")
			for _, name := range memory.Slots() {
				content := strings.TrimSpace(slots[name])
				if content == "" {
					continue
				}
				fmt.Fprintf(&sb, "\n## %s\n%s\n", name, content)
			}
			fragments = append(fragments, sb.String())
		}
	}

	if ca.state != nil {
		fragments = append(fragments, ca.stateFragment())
	}

	if strings.TrimSpace(summary) != "" {
		fragments = append(fragments, "# Earlier conversation (summarized)\n"+summary)
	}

	return fragments
}

// stateFragment renders the internal state so the model's tone can track it.
func (ca *ContextAssembler) stateFragment() string {
	snap := ca.state.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Internal state\nTime: %s\nDrive: %.0f/100, Bond: %.0f/100, Stress: %.0f/100\n",
		time.Now().Format(time.RFC1123), snap.Drive, snap.Bond, snap.Stress)

	if parasitic := ca.state.Parasitic(); len(parasitic) > 0 {
		sb.WriteString("\nOverdue obligations weighing on you:\n")
		for _, msg := range parasitic {
			fmt.Fprintf(&sb, "- %s\n", msg)
		}
	}
	return sb.String()
}
