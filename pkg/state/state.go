package state

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hollisdev/ember/pkg/logger"
)

// SessionState is the agent's decaying internal state: three bounded scalars
// plus the timestamp of the last mutation. Only the Manager mutates it.
type SessionState struct {
	Drive      float64   `json:"drive"`
	Bond       float64   `json:"bond"`
	Stress     float64   `json:"stress"`
	LastUpdate time.Time `json:"last_update"`
}

// StimulusKind names a fixed delta set applied on top of elapsed decay.
type StimulusKind string

const (
	StimulusChat    StimulusKind = "chat"
	StimulusSuccess StimulusKind = "success"
	StimulusFailure StimulusKind = "failure"
	StimulusPraise  StimulusKind = "praise"
)

// Decay rates per elapsed minute. Drive fades fast, bond barely moves,
// stress bleeds off in between.
const (
	driveDecayPerMin  = 1.0
	bondDecayPerMin   = 0.1
	stressDecayPerMin = 0.5
)

// Manager owns the SessionState file and the notification queue the
// scheduler uses to surface events into the next loop iteration. Every
// mutation persists before returning.
type Manager struct {
	mu            sync.Mutex
	state         SessionState
	path          string
	notifications []string
	parasitic     []string

	dormant       bool
	lastTouch     time.Time
	cancelDormant context.CancelFunc
}

func NewManager(workspace string) (*Manager, error) {
	stateDir := filepath.Join(workspace, "state")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	m := &Manager{
		path:      filepath.Join(stateDir, "session.json"),
		lastTouch: time.Now(),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.state = SessionState{Drive: 50, Bond: 50, Stress: 20, LastUpdate: time.Now()}
		return m.persist()
	}
	if err != nil {
		return fmt.Errorf("read session state: %w", err)
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		logger.WarnCF("state", "session file corrupt, resetting", map[string]interface{}{"error": err.Error()})
		m.state = SessionState{Drive: 50, Bond: 50, Stress: 20, LastUpdate: time.Now()}
	}
	m.state.clamp()
	return m.persist()
}

func (m *Manager) persist() error {
	data, err := json.MarshalIndent(&m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func (s *SessionState) clamp() {
	s.Drive = clamp01(s.Drive)
	s.Bond = clamp01(s.Bond)
	s.Stress = clamp01(s.Stress)
}

// decayLocked applies linear decay for the given elapsed minutes.
// Caller holds the lock.
func (m *Manager) decayLocked(minutes float64) {
	if minutes <= 0 {
		return
	}
	m.state.Drive -= driveDecayPerMin * minutes
	m.state.Bond -= bondDecayPerMin * minutes
	m.state.Stress -= stressDecayPerMin * minutes
	m.state.clamp()
	m.state.LastUpdate = time.Now()
}

// Decay applies elapsed-time decay and persists.
func (m *Manager) Decay(minutes float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decayLocked(minutes)
	if err := m.persist(); err != nil {
		logger.ErrorCF("state", "persist after decay failed", map[string]interface{}{"error": err.Error()})
	}
}

// Stimulus first decays for the time since the last update, then applies the
// delta set for kind, clamps, and persists. It also marks the session active,
// which cancels a pending dormant transition.
func (m *Manager) Stimulus(kind StimulusKind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := time.Since(m.state.LastUpdate).Minutes()
	m.decayLocked(elapsed)

	switch kind {
	case StimulusChat:
		m.state.Drive += 2
		m.state.Bond += 0.5
		m.state.Stress -= 1
	case StimulusSuccess:
		m.state.Drive += 10
		m.state.Stress -= 5
	case StimulusFailure:
		m.state.Stress += 15
		m.state.Drive -= 5
	case StimulusPraise:
		m.state.Bond += 10
		m.state.Drive += 5
		m.state.Stress -= 10
	default:
		logger.WarnCF("state", "unknown stimulus kind", map[string]interface{}{"kind": string(kind)})
	}
	m.state.clamp()
	m.state.LastUpdate = time.Now()

	m.lastTouch = time.Now()
	m.dormant = false
	if m.cancelDormant != nil {
		m.cancelDormant()
		m.cancelDormant = nil
	}

	if err := m.persist(); err != nil {
		logger.ErrorCF("state", "persist after stimulus failed", map[string]interface{}{"error": err.Error()})
	}
}

// Inject adds raw deltas without decay. Reserved for the scheduler's
// escalation and relief logic.
func (m *Manager) Inject(drive, bond, stress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Drive += drive
	m.state.Bond += bond
	m.state.Stress += stress
	m.state.clamp()
	m.state.LastUpdate = time.Now()

	if err := m.persist(); err != nil {
		logger.ErrorCF("state", "persist after inject failed", map[string]interface{}{"error": err.Error()})
	}
}

// Snapshot returns a copy for read-only reporting.
func (m *Manager) Snapshot() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Notify queues a message for the next loop iteration to observe.
func (m *Manager) Notify(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, msg)
}

// DrainNotifications returns and clears the queued notifications.
func (m *Manager) DrainNotifications() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.notifications
	m.notifications = nil
	return out
}

// SetParasitic replaces the published list of overdue-job labels used by
// status reporting.
func (m *Manager) SetParasitic(messages []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parasitic = append([]string(nil), messages...)
}

// Parasitic returns the current overdue-job labels.
func (m *Manager) Parasitic() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.parasitic...)
}
