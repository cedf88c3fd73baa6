// ember - personal automation agent
// License: MIT
//
// Copyright (c) 2026 ember contributors

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/hollisdev/ember/pkg/brain"
	"github.com/hollisdev/ember/pkg/config"
	"github.com/hollisdev/ember/pkg/logger"
	"github.com/hollisdev/ember/pkg/memory"
	"github.com/hollisdev/ember/pkg/state"
	"github.com/hollisdev/ember/pkg/tools"
)

// ResponseKind tags how a run ended.
type ResponseKind string

const (
	ResponseReply     ResponseKind = "reply"
	ResponseQuestion  ResponseKind = "question"
	ResponseCancelled ResponseKind = "cancelled"
)

// Response is the terminal outcome of one Run.
type Response struct {
	Kind    ResponseKind
	Content string
	Turns   int
}

// RunOptions scope one run to a session and delivery target.
type RunOptions struct {
	SessionKey string
	Channel    string
	ChatID     string
	NoRetries  bool
}

const (
	// Kept after consolidation so the model retains immediate context.
	retainedMessages = 8

	askUserTool = "ask_user"

	correctiveMessage = "Your last response contained neither an action nor a reply. Respond again with exactly one of them."

	loopGuardMessage = "You just repeated the exact same action with the same arguments. Do not repeat it again; use the previous Observation, try something different, or reply to the user."

	turnLimitReply = "I've been working on this for a while without reaching a clean stopping point. Here's where I got to; tell me if you want me to keep going."
)

// Orchestrator owns the cognition loop: one user prompt in, a bounded number
// of think/act turns, one terminal response out.
type Orchestrator struct {
	brain        *brain.Client
	registry     *tools.ToolRegistry
	state        *state.Manager
	history      *HistoryStore
	assembler    *ContextAssembler
	consolidator *memory.Consolidator

	maxTurns         int
	historyThreshold int

	active atomic.Bool
}

func NewOrchestrator(b *brain.Client, registry *tools.ToolRegistry, st *state.Manager, history *HistoryStore, assembler *ContextAssembler, consolidator *memory.Consolidator, cfg *config.Config) *Orchestrator {
	maxTurns := cfg.Agent.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 15
	}
	threshold := cfg.Agent.HistoryThreshold
	if threshold <= 0 {
		threshold = 24
	}
	return &Orchestrator{
		brain:            b,
		registry:         registry,
		state:            st,
		history:          history,
		assembler:        assembler,
		consolidator:     consolidator,
		maxTurns:         maxTurns,
		historyThreshold: threshold,
	}
}

// Active reports whether a run is currently in flight.
func (o *Orchestrator) Active() bool {
	return o.active.Load()
}

// Run processes one user prompt to a terminal response. It never returns a
// non-nil error for brain failures; those surface as a reply. Errors are
// reserved for the session store being unusable.
func (o *Orchestrator) Run(ctx context.Context, prompt string, opts RunOptions) (*Response, error) {
	o.active.Store(true)
	defer o.active.Store(false)

	if opts.SessionKey == "" {
		opts.SessionKey = "cli:local"
	}

	session, err := o.history.Load(opts.SessionKey)
	if err != nil {
		return nil, err
	}

	// Observe: queued scheduler notifications land in front of the prompt so
	// the model can weave them into its next answer.
	if o.state != nil {
		for _, note := range o.state.DrainNotifications() {
			session.Messages = append(session.Messages, brain.Message{Role: brain.RoleSystem, Content: note})
		}
	}
	session.Messages = append(session.Messages, brain.Message{Role: brain.RoleUser, Content: prompt})

	o.maybeConsolidate(ctx, session)

	logger.InfoCF("agent", "run started", map[string]interface{}{
		"session": opts.SessionKey, "channel": opts.Channel, "history_len": len(session.Messages),
	})

	resp := o.iterate(ctx, session, opts)

	if err := o.history.Save(session); err != nil {
		logger.ErrorCF("agent", "failed to persist session history", map[string]interface{}{
			"session": opts.SessionKey, "error": err.Error(),
		})
	}

	logger.InfoCF("agent", "run finished", map[string]interface{}{
		"session": opts.SessionKey, "kind": string(resp.Kind), "turns": resp.Turns,
	})
	return resp, nil
}

// iterate is the bounded observe-orient-decide-act cycle.
func (o *Orchestrator) iterate(ctx context.Context, session *SessionHistory, opts RunOptions) *Response {
	lastAction := ""

	for turn := 1; turn <= o.maxTurns; turn++ {
		if ctx.Err() != nil {
			return &Response{Kind: ResponseCancelled, Content: "Okay, stopping here.", Turns: turn}
		}

		thought := o.brain.Think(ctx, brain.Context{
			SystemPrompt: o.assembler.SystemPrompt(),
			Fragments:    o.assembler.Fragments(session.Summary),
			History:      session.Messages,
			NoRetries:    opts.NoRetries,
		})

		if ctx.Err() != nil {
			return &Response{Kind: ResponseCancelled, Content: "Okay, stopping here.", Turns: turn}
		}

		switch thought.Kind() {
		case brain.ThoughtError:
			session.Messages = append(session.Messages, brain.Message{Role: brain.RoleAssistant, Content: thought.Reply})
			o.stimulate(state.StimulusFailure)
			logger.ErrorCF("agent", "brain failure", map[string]interface{}{"error": thought.Error})
			return &Response{Kind: ResponseReply, Content: thought.Reply, Turns: turn}

		case brain.ThoughtAction:
			if thought.Action.Name == askUserTool {
				question := askUserQuestion(thought)
				session.Messages = append(session.Messages, brain.Message{Role: brain.RoleAssistant, Content: question})
				o.stimulate(state.StimulusChat)
				return &Response{Kind: ResponseQuestion, Content: question, Turns: turn}
			}

			key := actionKey(thought.Action)
			if key == lastAction {
				session.Messages = append(session.Messages, brain.Message{Role: brain.RoleSystem, Content: loopGuardMessage})
				logger.WarnCF("agent", "loop guard tripped", map[string]interface{}{"action": thought.Action.Name})
			}
			lastAction = key

			result := o.registry.ExecuteWithContext(ctx, thought.Action.Name, thought.Action.Arguments, opts.Channel, opts.ChatID)
			session.Messages = append(session.Messages,
				brain.Message{Role: brain.RoleAssistant, Content: thought.Reasoning, ToolCall: thought.Action},
				brain.Message{Role: brain.RoleToolResult, Content: result.ForLLM, ToolName: thought.Action.Name},
			)
			if result.IsError {
				o.stimulate(state.StimulusFailure)
			} else {
				o.stimulate(state.StimulusSuccess)
			}
			// The model reacts to the observation before replying.
			continue

		case brain.ThoughtReply:
			session.Messages = append(session.Messages, brain.Message{Role: brain.RoleAssistant, Content: thought.Reply})
			o.stimulate(state.StimulusChat)
			return &Response{Kind: ResponseReply, Content: thought.Reply, Turns: turn}

		default:
			session.Messages = append(session.Messages, brain.Message{Role: brain.RoleSystem, Content: correctiveMessage})
			logger.WarnCF("agent", "malformed thought, correcting", map[string]interface{}{"turn": turn})
		}
	}

	session.Messages = append(session.Messages, brain.Message{Role: brain.RoleAssistant, Content: turnLimitReply})
	o.stimulate(state.StimulusFailure)
	return &Response{Kind: ResponseReply, Content: turnLimitReply, Turns: o.maxTurns}
}

// maybeConsolidate folds the oldest part of an oversized history into the
// summary and memory slots, keeping the tail verbatim.
func (o *Orchestrator) maybeConsolidate(ctx context.Context, session *SessionHistory) {
	if o.consolidator == nil || len(session.Messages) <= o.historyThreshold {
		return
	}

	cut := len(session.Messages) - retainedMessages
	if cut <= 0 {
		return
	}
	old := session.Messages[:cut]

	summary, err := o.consolidator.Consolidate(ctx, session.SessionKey, old, session.Summary)
	if err != nil {
		logger.WarnCF("agent", "consolidation failed, keeping full history", map[string]interface{}{
			"session": session.SessionKey, "error": err.Error(),
		})
		return
	}

	session.Summary = summary
	session.Messages = append([]brain.Message(nil), session.Messages[cut:]...)
	logger.InfoCF("agent", "history consolidated", map[string]interface{}{
		"session": session.SessionKey, "archived": cut, "retained": len(session.Messages),
	})
}

// ConsolidateIdleSessions walks every persisted session and folds oversized
// histories down. Runs from the heartbeat when the agent goes dormant; the
// context is cancelled as soon as a new stimulus arrives.
func (o *Orchestrator) ConsolidateIdleSessions(ctx context.Context) error {
	if o.consolidator == nil {
		return nil
	}
	keys, err := o.history.Sessions()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		session, err := o.history.Load(key)
		if err != nil {
			logger.WarnCF("agent", "skipping unreadable session", map[string]interface{}{
				"session": key, "error": err.Error(),
			})
			continue
		}
		before := len(session.Messages)
		o.maybeConsolidate(ctx, session)
		if len(session.Messages) == before {
			continue
		}
		if err := o.history.Save(session); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) stimulate(kind state.StimulusKind) {
	if o.state != nil {
		o.state.Stimulus(kind)
	}
}

func askUserQuestion(thought *brain.Thought) string {
	if q, ok := thought.Action.Arguments["question"].(string); ok && strings.TrimSpace(q) != "" {
		return q
	}
	if strings.TrimSpace(thought.Reasoning) != "" {
		return thought.Reasoning
	}
	return "Could you clarify what you'd like me to do?"
}

func actionKey(call *brain.ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return call.Name
	}
	return fmt.Sprintf("%s(%s)", call.Name, args)
}
