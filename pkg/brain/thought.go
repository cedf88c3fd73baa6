package brain

import (
	"fmt"
	"regexp"
	"strings"
)

// Message roles for the cognitive history. RoleToolResult carries the textual
// observation produced by a dispatched action.
const (
	RoleSystem     = "system"
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool-result"
)

// ToolCall is one requested action: a tool name plus an argument map.
type ToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is one turn of conversation. Ordering is significant and
// append-only within a session; the session history store owns the slice.
type Message struct {
	Role     string    `json:"role"`
	Content  string    `json:"content"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
	ToolName string    `json:"tool_name,omitempty"`
}

// Thought is the brain's structured answer to one loop iteration.
// A well-formed Thought carries exactly one of Action or Reply; Error marks
// a brain-level failure that already includes a safe user-facing Reply.
type Thought struct {
	Reasoning string    `json:"reasoning"`
	Plan      []string  `json:"plan,omitempty"`
	Action    *ToolCall `json:"action,omitempty"`
	Reply     string    `json:"reply,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ThoughtKind tags the control-flow branch a Thought selects, so the loop
// switches on a tag instead of null-checking ambiguous shapes.
type ThoughtKind int

const (
	ThoughtMalformed ThoughtKind = iota
	ThoughtAction
	ThoughtReply
	ThoughtError
)

func (t *Thought) Kind() ThoughtKind {
	switch {
	case t == nil:
		return ThoughtMalformed
	case t.Error != "":
		return ThoughtError
	case t.Action != nil:
		return ThoughtAction
	case strings.TrimSpace(t.Reply) != "":
		return ThoughtReply
	default:
		return ThoughtMalformed
	}
}

// violation returns a description of a schema violation the brain must
// repair, or "" when the Thought is acceptable. A Thought with neither
// action nor reply is left for the loop's corrective handling.
func (t *Thought) violation() string {
	if t == nil {
		return "response was empty"
	}
	if t.Action != nil && strings.TrimSpace(t.Action.Name) == "" {
		return `the "action" object is missing its "name" field`
	}
	if t.Action != nil && strings.TrimSpace(t.Reply) != "" {
		return `both "action" and "reply" were set; a thought must contain exactly one of them`
	}
	return ""
}

var toolNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeToolName restricts a tool name to the character set providers
// accept for function names: letters, digits, hyphen, underscore.
func SanitizeToolName(name string) string {
	return toolNamePattern.ReplaceAllString(strings.TrimSpace(name), "_")
}

// FormatObservation renders a tool result the way the model sees it.
func FormatObservation(result string) string {
	return fmt.Sprintf("Observation: %s", result)
}
