package state

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestStimulus_AppliesDeltas(t *testing.T) {
	m := newTestManager(t)
	before := m.Snapshot()

	m.Stimulus(StimulusPraise)

	after := m.Snapshot()
	// Elapsed decay between load and stimulus is negligible in a test.
	assert.InDelta(t, before.Bond+10, after.Bond, 0.1)
	assert.InDelta(t, before.Drive+5, after.Drive, 0.1)
	assert.InDelta(t, before.Stress-10, after.Stress, 0.1)
}

func TestScalarsStayBounded(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 30; i++ {
		m.Stimulus(StimulusFailure)
	}
	s := m.Snapshot()
	assert.Equal(t, 100.0, s.Stress)
	assert.Equal(t, 0.0, s.Drive)

	m.Inject(500, 500, -500)
	s = m.Snapshot()
	assert.Equal(t, 100.0, s.Drive)
	assert.Equal(t, 100.0, s.Bond)
	assert.Equal(t, 0.0, s.Stress)

	m.Decay(100000)
	s = m.Snapshot()
	assert.GreaterOrEqual(t, s.Drive, 0.0)
	assert.GreaterOrEqual(t, s.Bond, 0.0)
	assert.GreaterOrEqual(t, s.Stress, 0.0)
}

func TestDecay_RatesPerScalar(t *testing.T) {
	m := newTestManager(t)
	m.Inject(0, 0, 30) // stress to 50
	before := m.Snapshot()

	m.Decay(10)

	after := m.Snapshot()
	assert.InDelta(t, before.Drive-10, after.Drive, 0.001)
	assert.InDelta(t, before.Bond-1, after.Bond, 0.001)
	assert.InDelta(t, before.Stress-5, after.Stress, 0.001)
}

func TestInject_SkipsDecay(t *testing.T) {
	m := newTestManager(t)
	before := m.Snapshot()

	m.Inject(0, 0, 7)

	after := m.Snapshot()
	assert.InDelta(t, before.Drive, after.Drive, 0.001, "inject must not decay drive")
	assert.InDelta(t, before.Stress+7, after.Stress, 0.001)
}

func TestStatePersistsAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(dir)
	require.NoError(t, err)
	m1.Inject(13, 0, 0)
	want := m1.Snapshot()

	m2, err := NewManager(dir)
	require.NoError(t, err)
	got := m2.Snapshot()
	assert.InDelta(t, want.Drive, got.Drive, 0.001)
}

func TestNotificationQueue(t *testing.T) {
	m := newTestManager(t)
	m.Notify("reminder fired: tea")
	m.Notify("reminder fired: standup")

	got := m.DrainNotifications()
	require.Equal(t, []string{"reminder fired: tea", "reminder fired: standup"}, got)
	assert.Empty(t, m.DrainNotifications())
}

func TestHeartbeat_DormantTransitionRunsConsolidation(t *testing.T) {
	m := newTestManager(t)
	ran := make(chan struct{})
	hb := NewHeartbeat(m, time.Millisecond, 2*time.Millisecond, func(ctx context.Context) error {
		close(ran)
		return nil
	})

	time.Sleep(10 * time.Millisecond)
	hb.Tick(context.Background())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("consolidation never ran")
	}
	assert.True(t, m.Dormant())
}

func TestHeartbeat_StimulusCancelsDormancy(t *testing.T) {
	m := newTestManager(t)
	cancelled := make(chan struct{})
	started := make(chan struct{})
	hb := NewHeartbeat(m, time.Millisecond, 2*time.Millisecond, func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	time.Sleep(10 * time.Millisecond)
	hb.Tick(context.Background())
	<-started

	m.Stimulus(StimulusChat)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("stimulus did not cancel consolidation")
	}
	assert.False(t, m.Dormant())
}

func TestHeartbeat_NoRepeatConsolidationWhileDormant(t *testing.T) {
	m := newTestManager(t)
	var runs atomic.Int32
	hb := NewHeartbeat(m, time.Millisecond, 2*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	time.Sleep(10 * time.Millisecond)
	hb.Tick(context.Background())
	hb.Tick(context.Background())
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
}
