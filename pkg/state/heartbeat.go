package state

import (
	"context"
	"sync"
	"time"

	"github.com/hollisdev/ember/pkg/logger"
)

// ConsolidateFunc is the external memory-consolidation routine run when the
// session goes dormant. It receives a context that is cancelled if the user
// comes back mid-consolidation.
type ConsolidateFunc func(ctx context.Context) error

// Heartbeat drives the once-a-minute decay tick and the dormant transition.
// It never blocks the tick on consolidation; that runs in its own goroutine.
type Heartbeat struct {
	manager      *Manager
	interval     time.Duration
	dormantAfter time.Duration
	consolidate  ConsolidateFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeat(m *Manager, interval, dormantAfter time.Duration, consolidate ConsolidateFunc) *Heartbeat {
	if interval <= 0 {
		interval = time.Minute
	}
	if dormantAfter <= 0 {
		dormantAfter = 60 * time.Minute
	}
	return &Heartbeat{
		manager:      m,
		interval:     interval,
		dormantAfter: dormantAfter,
		consolidate:  consolidate,
	}
}

// Start launches the tick loop. Stop (or ctx cancellation) ends it.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	if h.done != nil {
		h.mu.Unlock()
		return
	}
	tickCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				h.Tick(tickCtx)
			}
		}
	}()
	logger.InfoCF("state", "heartbeat started", map[string]interface{}{
		"interval":      h.interval.String(),
		"dormant_after": h.dormantAfter.String(),
	})
}

// Stop halts the tick loop and waits for it to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick applies one decay interval and evaluates the dormant transition.
// Exported so tests (and a paused daemon) can drive it directly.
func (h *Heartbeat) Tick(ctx context.Context) {
	h.manager.Decay(h.interval.Minutes())

	m := h.manager
	m.mu.Lock()
	idle := time.Since(m.lastTouch)
	shouldEnter := !m.dormant && idle >= h.dormantAfter
	if shouldEnter {
		m.dormant = true
	}
	m.mu.Unlock()

	if !shouldEnter || h.consolidate == nil {
		return
	}

	logger.InfoCF("state", "entering dormant mode", map[string]interface{}{
		"idle_minutes": int(idle.Minutes()),
	})

	// Consolidation runs detached from the tick so slow LLM calls never
	// stall decay. A Stimulus cancels it through consolidationCtx.
	consolidationCtx, cancelConsolidation := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelDormant = cancelConsolidation
	m.mu.Unlock()

	go func() {
		defer cancelConsolidation()
		if err := h.consolidate(consolidationCtx); err != nil {
			if consolidationCtx.Err() != nil {
				logger.InfoC("state", "dormant consolidation cancelled by activity")
			} else {
				logger.ErrorCF("state", "dormant consolidation failed", map[string]interface{}{"error": err.Error()})
			}
		}
		m.mu.Lock()
		m.cancelDormant = nil
		m.mu.Unlock()
	}()
}

// Dormant reports whether the session is currently in dormant mode.
func (m *Manager) Dormant() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dormant
}
