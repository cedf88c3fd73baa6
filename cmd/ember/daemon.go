package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/hollisdev/ember/pkg/agent"
	"github.com/hollisdev/ember/pkg/bus"
	"github.com/hollisdev/ember/pkg/channels"
	"github.com/hollisdev/ember/pkg/daemon"
	"github.com/hollisdev/ember/pkg/health"
	"github.com/hollisdev/ember/pkg/logger"
)

func runDaemon() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := validateRuntimeConfig(cfg, true); err != nil {
		return err
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	if err := logger.SetLogFile(filepath.Join(workspace, "logs", "ember.log")); err != nil {
		fmt.Printf("Warning: file logging disabled: %v\n", err)
	}
	defer logger.Close()

	pidPath := daemon.PIDFilePath(workspace)
	if err := daemon.Acquire(pidPath); err != nil {
		return err
	}
	defer daemon.Release(pidPath)

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.start(ctx); err != nil {
		return err
	}

	channelManager, err := channels.NewManager(cfg, rt.bus)
	if err != nil {
		return fmt.Errorf("create channel manager: %w", err)
	}
	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, rt.orch, rt.state, rt.engine)
	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("health", "status server error", map[string]interface{}{"error": err.Error()})
		}
	}()

	go consumeInbound(ctx, rt)
	go forwardNotifications(ctx, rt)

	fmt.Printf("✓ %s daemon started\n", appName)
	fmt.Printf("✓ Status API on http://%s:%d/health\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	cancel()
	healthServer.Stop(context.Background())
	if err := channelManager.StopAll(context.Background()); err != nil {
		logger.WarnCF("main", "channel shutdown", map[string]interface{}{"error": err.Error()})
	}
	fmt.Printf("✓ %s daemon stopped\n", appName)
	return nil
}

// lastDelivery remembers where the user last talked to us so scheduler
// notifications have somewhere to go.
type lastDelivery struct {
	mu      sync.Mutex
	channel string
	chatID  string
}

func (d *lastDelivery) set(channel, chatID string) {
	d.mu.Lock()
	d.channel, d.chatID = channel, chatID
	d.mu.Unlock()
}

func (d *lastDelivery) get() (string, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel, d.chatID
}

var delivery lastDelivery

// consumeInbound is the daemon's message pump: every channel message runs
// one cognition loop and the terminal response goes back out on the same
// channel.
func consumeInbound(ctx context.Context, rt *appRuntime) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, ok := rt.bus.ConsumeInbound(ctx)
		if !ok {
			continue
		}

		delivery.set(msg.Channel, msg.ChatID)
		rt.messenger.SetContext(msg.Channel, msg.ChatID)

		resp, err := rt.orch.Run(ctx, msg.Content, agent.RunOptions{
			SessionKey: msg.SessionKey,
			Channel:    msg.Channel,
			ChatID:     msg.ChatID,
		})
		if err != nil {
			logger.ErrorCF("main", "run failed", map[string]interface{}{
				"session": msg.SessionKey, "error": err.Error(),
			})
			continue
		}
		if resp.Content != "" {
			rt.bus.PublishOutbound(bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: resp.Content,
			})
		}
	}
}

// forwardNotifications delivers fired reminders to the last active chat.
// With no known target the notification stays queued in the session state
// and surfaces on the next run.
func forwardNotifications(ctx context.Context, rt *appRuntime) {
	for {
		if ctx.Err() != nil {
			return
		}
		n, ok := rt.bus.ConsumeNotification(ctx)
		if !ok {
			continue
		}

		channel, chatID := delivery.get()
		if channel == "" || chatID == "" {
			logger.DebugCF("main", "no delivery target for notification", map[string]interface{}{
				"job_id": n.JobID,
			})
			continue
		}
		rt.bus.PublishOutbound(bus.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: fmt.Sprintf("⏰ Reminder: %s", n.Message),
		})
	}
}
