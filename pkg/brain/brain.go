package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hollisdev/ember/pkg/config"
	"github.com/hollisdev/ember/pkg/logger"
	"github.com/hollisdev/ember/pkg/providers"
)

const offlineReply = "I'm having trouble reaching my language model right now. Please check the provider configuration or try again in a moment."

// Context is everything one Think call sees: the composed system prompt,
// optional extra system fragments, the session history, and retry policy.
type Context struct {
	SystemPrompt string
	Fragments    []string
	History      []Message
	NoRetries    bool
}

// Client turns a conversational context into exactly one structured Thought.
// It owns model fallback and bounded JSON self-repair; callers never see a
// raw provider error from Think.
type Client struct {
	provider       providers.LLMProvider
	model          string
	fallbackModels []string
	maxTokens      int
	temperature    float64
	repairAttempts int
}

func NewClient(provider providers.LLMProvider, cfg *config.Config) *Client {
	c := &Client{
		provider:       provider,
		model:          cfg.Brain.Model,
		fallbackModels: append([]string(nil), cfg.Brain.FallbackModels...),
		maxTokens:      cfg.Brain.MaxTokens,
		temperature:    cfg.Brain.Temperature,
		repairAttempts: cfg.Brain.RepairAttempts,
	}
	if c.repairAttempts <= 0 {
		c.repairAttempts = 3
	}
	return c
}

// models returns the fallback chain with the primary model first.
func (c *Client) models() []string {
	chain := make([]string, 0, 1+len(c.fallbackModels))
	chain = append(chain, c.model)
	for _, m := range c.fallbackModels {
		if m != "" && m != c.model {
			chain = append(chain, m)
		}
	}
	return chain
}

// Think asks the model for the next Thought. Total failure never crosses the
// boundary as an error: it comes back as a Thought with Error set and a safe
// Reply the loop can hand to the user.
func (c *Client) Think(ctx context.Context, tc Context) *Thought {
	messages := c.buildMessages(tc)
	repairs := 0

	var lastErr error
	for _, model := range c.models() {
		for {
			if ctx.Err() != nil {
				return &Thought{Error: "cancelled", Reply: "Okay, I'll stop here."}
			}

			resp, err := c.provider.Chat(ctx, messages, nil, model, map[string]interface{}{
				"max_tokens":      c.maxTokens,
				"temperature":     c.temperature,
				"response_format": "json_object",
			})
			if err != nil {
				lastErr = err
				if providers.IsModelFallback(err) {
					logger.WarnCF("brain", "model unavailable, falling back", map[string]interface{}{
						"model": model,
						"error": err.Error(),
					})
					break
				}
				logger.ErrorCF("brain", "provider request failed", map[string]interface{}{
					"model": model,
					"error": err.Error(),
				})
				return &Thought{Error: err.Error(), Reply: offlineReply}
			}

			thought, violation := parseThought(resp.Content)
			if violation == "" {
				return thought
			}

			if tc.NoRetries || repairs >= c.repairAttempts {
				logger.ErrorCF("brain", "unrepairable thought", map[string]interface{}{
					"model":     model,
					"violation": violation,
				})
				return &Thought{
					Error: fmt.Sprintf("schema violation: %s", violation),
					Reply: "I lost my train of thought. Could you rephrase that?",
				}
			}

			repairs++
			logger.WarnCF("brain", "repairing malformed thought", map[string]interface{}{
				"attempt":   repairs,
				"violation": violation,
			})
			messages = append(messages, providers.Message{
				Role:    "system",
				Content: fmt.Sprintf("Your previous response was invalid: %s. Respond again with a single JSON object matching the thought schema.", violation),
			})
		}
	}

	errMsg := "all models unavailable"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return &Thought{Error: errMsg, Reply: offlineReply}
}

// buildMessages serializes the cognitive history into the provider wire
// format. Tool calls become compact assistant JSON and observations become
// user turns, so the exchange survives model switches mid-session.
func (c *Client) buildMessages(tc Context) []providers.Message {
	messages := make([]providers.Message, 0, len(tc.History)+len(tc.Fragments)+1)
	if tc.SystemPrompt != "" {
		messages = append(messages, providers.Message{Role: "system", Content: tc.SystemPrompt})
	}
	for _, fragment := range tc.Fragments {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		messages = append(messages, providers.Message{Role: "system", Content: fragment})
	}

	for _, msg := range tc.History {
		switch msg.Role {
		case RoleAssistant:
			content := msg.Content
			if msg.ToolCall != nil {
				call := ToolCall{
					Name:      SanitizeToolName(msg.ToolCall.Name),
					Arguments: msg.ToolCall.Arguments,
				}
				encoded, err := json.Marshal(map[string]interface{}{"action": call})
				if err == nil {
					content = string(encoded)
				}
			}
			messages = append(messages, providers.Message{Role: "assistant", Content: content})
		case RoleToolResult:
			messages = append(messages, providers.Message{Role: "user", Content: FormatObservation(msg.Content)})
		case RoleSystem:
			messages = append(messages, providers.Message{Role: "system", Content: msg.Content})
		default:
			messages = append(messages, providers.Message{Role: "user", Content: msg.Content})
		}
	}
	return messages
}

// parseThought decodes one model response into a Thought, returning a
// human-readable violation when the brain should retry.
func parseThought(raw string) (*Thought, string) {
	cleaned := stripCodeFence(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, "response was empty"
	}

	var thought Thought
	if err := json.Unmarshal([]byte(cleaned), &thought); err != nil {
		return nil, fmt.Sprintf("response was not valid JSON (%v)", err)
	}
	if v := thought.violation(); v != "" {
		return nil, v
	}
	if thought.Action != nil {
		thought.Action.Name = SanitizeToolName(thought.Action.Name)
	}
	return &thought, ""
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence even
// when asked for a bare object.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Summarize condenses a conversation slice into a running summary, folding
// in the previous summary when one exists. Failures return an error; the
// caller decides whether losing the summary is acceptable.
func (c *Client) Summarize(ctx context.Context, history []Message, existing string) (string, error) {
	var sb strings.Builder
	if existing != "" {
		sb.WriteString("Previous summary:\n")
		sb.WriteString(existing)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Conversation to fold in:\n")
	for _, msg := range history {
		if msg.ToolCall != nil {
			fmt.Fprintf(&sb, "[%s] called %s\n", msg.Role, msg.ToolCall.Name)
			continue
		}
		fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, msg.Content)
	}

	messages := []providers.Message{
		{Role: "system", Content: "You maintain a running summary of a conversation. Merge the previous summary with the new turns into a concise third-person summary. Keep concrete facts, decisions, and unfinished tasks. Respond with the summary text only."},
		{Role: "user", Content: sb.String()},
	}

	resp, err := c.chatWithFallback(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ExtractFacts asks the model which long-term memory slots the conversation
// should update. The result only ever contains keys present in slots, so an
// off-script model cannot invent new memory files.
func (c *Client) ExtractFacts(ctx context.Context, history []Message, slots map[string]string) (map[string]string, error) {
	names := make([]string, 0, len(slots))
	var sb strings.Builder
	sb.WriteString("Memory slots and their current content:\n\n")
	for name, content := range slots {
		names = append(names, name)
		fmt.Fprintf(&sb, "### %s\n%s\n\n", name, content)
	}
	sb.WriteString("Conversation:\n")
	for _, msg := range history {
		if msg.ToolCall != nil {
			continue
		}
		fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, msg.Content)
	}

	system := fmt.Sprintf(
		"You maintain long-term memory files. Given the current slot contents and a conversation, decide which slots need updating. Respond with a JSON object whose keys are a subset of [%s] and whose values are the complete new slot content. Return {} when nothing changed.",
		strings.Join(names, ", "))

	messages := []providers.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: sb.String()},
	}

	resp, err := c.chatWithFallback(ctx, messages, map[string]interface{}{"response_format": "json_object"})
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &raw); err != nil {
		return nil, fmt.Errorf("parse fact extraction: %w", err)
	}

	updates := make(map[string]string, len(raw))
	for name, content := range raw {
		if _, known := slots[name]; !known {
			logger.WarnCF("brain", "ignoring unknown memory slot", map[string]interface{}{"slot": name})
			continue
		}
		updates[name] = content
	}
	return updates, nil
}

// chatWithFallback runs one request through the model chain without the
// thought-schema repair machinery. Used by the auxiliary calls.
func (c *Client) chatWithFallback(ctx context.Context, messages []providers.Message, extra map[string]interface{}) (*providers.LLMResponse, error) {
	options := map[string]interface{}{
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}
	for k, v := range extra {
		options[k] = v
	}

	var lastErr error
	for _, model := range c.models() {
		resp, err := c.provider.Chat(ctx, messages, nil, model, options)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !providers.IsModelFallback(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
