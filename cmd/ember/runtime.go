package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hollisdev/ember/pkg/agent"
	"github.com/hollisdev/ember/pkg/brain"
	"github.com/hollisdev/ember/pkg/bus"
	"github.com/hollisdev/ember/pkg/config"
	"github.com/hollisdev/ember/pkg/logger"
	"github.com/hollisdev/ember/pkg/memory"
	"github.com/hollisdev/ember/pkg/providers"
	"github.com/hollisdev/ember/pkg/spark"
	"github.com/hollisdev/ember/pkg/state"
	"github.com/hollisdev/ember/pkg/tools"
)

const heartbeatInterval = time.Minute

// appRuntime wires the shared subsystems every command mode needs: brain,
// state, scheduler, tools, and the cognition loop. Channel adapters and the
// status server are daemon-only and live in runDaemon.
type appRuntime struct {
	cfg       *config.Config
	bus       *bus.MessageBus
	state     *state.Manager
	engine    *spark.Engine
	registry  *tools.ToolRegistry
	orch      *agent.Orchestrator
	archive   *memory.EventArchive
	heartbeat *state.Heartbeat
	messenger *tools.MessageTool
}

func newRuntime(cfg *config.Config) (*appRuntime, error) {
	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	provider, err := providers.NewOpenRouterProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	brainClient := brain.NewClient(provider, cfg)

	st, err := state.NewManager(workspace)
	if err != nil {
		return nil, fmt.Errorf("initialize session state: %w", err)
	}
	store, err := memory.NewProtectedStore(workspace)
	if err != nil {
		return nil, fmt.Errorf("initialize memory slots: %w", err)
	}
	archive, err := memory.NewEventArchive(workspace)
	if err != nil {
		return nil, fmt.Errorf("initialize event archive: %w", err)
	}
	consolidator := memory.NewConsolidator(brainClient, store, archive)

	historyStore, err := agent.NewHistoryStore(workspace)
	if err != nil {
		return nil, fmt.Errorf("initialize history store: %w", err)
	}

	msgBus := bus.NewMessageBus()
	engine := spark.NewEngine(filepath.Join(workspace, "state", "jobs.json"), st, cfg.Scheduler)

	registry := tools.NewToolRegistry()
	restrict := cfg.Agent.RestrictToWorkspace
	registry.Register(tools.NewReadFileTool(workspace, restrict))
	registry.Register(tools.NewWriteFileTool(workspace, restrict))
	registry.Register(tools.NewAppendFileTool(workspace, restrict))
	registry.Register(tools.NewListDirTool(workspace, restrict))
	registry.Register(tools.NewExecTool(workspace))
	registry.Register(tools.NewMemoryTool(store))
	registry.Register(tools.NewReminderTool(engine))
	registry.Register(tools.NewConfigTool(cfg, getConfigPath()))

	messenger := tools.NewMessageTool()
	messenger.SetSendCallback(func(channel, chatID, content string) error {
		msgBus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content})
		return nil
	})
	registry.Register(messenger)

	assembler := agent.NewContextAssembler(workspace, store, registry, st)
	orch := agent.NewOrchestrator(brainClient, registry, st, historyStore, assembler, consolidator, cfg)

	engine.SetMissionRunner(func(ctx context.Context, prompt string) {
		resp, err := orch.Run(ctx, prompt, agent.RunOptions{SessionKey: "system:mission"})
		if err != nil {
			logger.ErrorCF("main", "mission run failed", map[string]interface{}{"error": err.Error()})
			return
		}
		logger.InfoCF("main", "mission completed", map[string]interface{}{
			"kind": string(resp.Kind), "turns": resp.Turns,
		})
	})
	engine.SetNotifyFunc(func(n bus.Notification) {
		msgBus.PublishNotification(n)
	})

	rt := &appRuntime{
		cfg:       cfg,
		bus:       msgBus,
		state:     st,
		engine:    engine,
		registry:  registry,
		orch:      orch,
		archive:   archive,
		messenger: messenger,
	}

	if cfg.Heartbeat.Enabled {
		dormant := time.Duration(cfg.Heartbeat.DormantMinutes) * time.Minute
		if dormant <= 0 {
			dormant = 60 * time.Minute
		}
		rt.heartbeat = state.NewHeartbeat(st, heartbeatInterval, dormant, orch.ConsolidateIdleSessions)
	}

	return rt, nil
}

// start brings up the scheduler and heartbeat. ctx cancellation stops their
// background work; call close for orderly teardown.
func (rt *appRuntime) start(ctx context.Context) error {
	if err := rt.engine.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if rt.heartbeat != nil {
		rt.heartbeat.Start(ctx)
	}
	return nil
}

func (rt *appRuntime) close() {
	if rt.heartbeat != nil {
		rt.heartbeat.Stop()
	}
	rt.engine.Stop()
	if err := rt.registry.Close(); err != nil {
		logger.WarnCF("main", "tool registry close", map[string]interface{}{"error": err.Error()})
	}
	if err := rt.archive.Close(); err != nil {
		logger.WarnCF("main", "event archive close", map[string]interface{}{"error": err.Error()})
	}
	rt.bus.Close()
}
