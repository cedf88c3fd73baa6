package spark

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollisdev/ember/pkg/bus"
	"github.com/hollisdev/ember/pkg/config"
)

type fakeSink struct {
	mu         sync.Mutex
	injections [][3]float64
	notified   []string
	parasitic  []string
}

func (f *fakeSink) Inject(drive, bond, stress float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injections = append(f.injections, [3]float64{drive, bond, stress})
}

func (f *fakeSink) Notify(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, msg)
}

func (f *fakeSink) SetParasitic(messages []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parasitic = append([]string(nil), messages...)
}

func (f *fakeSink) snapshot() ([][3]float64, []string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][3]float64(nil), f.injections...),
		append([]string(nil), f.notified...),
		append([]string(nil), f.parasitic...)
}

func newTestEngine(t *testing.T) (*Engine, *fakeSink, string) {
	t.Helper()
	storePath := filepath.Join(t.TempDir(), "jobs.json")
	sink := &fakeSink{}
	return NewEngine(storePath, sink, config.SchedulerConfig{}), sink, storePath
}

func futureTime(d time.Duration) *time.Time {
	at := time.Now().Add(d)
	return &at
}

func TestCreateReminder_Validation(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.CreateReminder(CreateOptions{DueAt: futureTime(time.Hour)})
	assert.Error(t, err, "message is required")

	_, err = e.CreateReminder(CreateOptions{Message: "x"})
	assert.Error(t, err, "needs a schedule")

	_, err = e.CreateReminder(CreateOptions{Message: "x", DueAt: futureTime(time.Hour), CronExpression: "* * * * *"})
	assert.Error(t, err, "cannot have both schedules")

	past := time.Now().Add(-time.Minute)
	_, err = e.CreateReminder(CreateOptions{Message: "x", DueAt: &past})
	assert.Error(t, err, "past due time is rejected")

	_, err = e.CreateReminder(CreateOptions{Message: "x", CronExpression: "not a cron"})
	assert.Error(t, err, "invalid cron is rejected")
}

func TestCreateReminder_DuplicateDetection(t *testing.T) {
	e, _, _ := newTestEngine(t)

	at := time.Now().Add(time.Hour)
	first, err := e.CreateReminder(CreateOptions{Message: "water the plants", DueAt: &at})
	require.NoError(t, err)

	// Same message, due 30s later: inside the duplicate window.
	near := at.Add(30 * time.Second)
	dup, err := e.CreateReminder(CreateOptions{Message: "water the plants", DueAt: &near})
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))
	assert.Equal(t, first.ID, dup.ID)

	// Same message but two minutes apart: a distinct reminder.
	far := at.Add(2 * time.Minute)
	_, err = e.CreateReminder(CreateOptions{Message: "water the plants", DueAt: &far})
	assert.NoError(t, err)

	// Identical cron expressions collide regardless of timing.
	_, err = e.CreateReminder(CreateOptions{Message: "standup", CronExpression: "0 9 * * *"})
	require.NoError(t, err)
	_, err = e.CreateReminder(CreateOptions{Message: "standup", CronExpression: "0 9 * * *"})
	assert.True(t, IsDuplicate(err))

	assert.Len(t, e.ListReminders(true), 3)
}

func TestCreateReminder_SurvivesStoreWriteFailure(t *testing.T) {
	ws := t.TempDir()
	// A regular file where the store directory should be makes every
	// persist fail.
	blocker := filepath.Join(ws, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	e := NewEngine(filepath.Join(blocker, "jobs.json"), &fakeSink{}, config.SchedulerConfig{})

	job, err := e.CreateReminder(CreateOptions{Message: "tea", DueAt: futureTime(time.Hour)})
	require.NoError(t, err, "a failed store write must not fail the operation")
	require.NotNil(t, job)

	got, ok := e.Get(job.ID)
	require.True(t, ok, "the job stays in memory")
	assert.Equal(t, "tea", got.Message)
}

func TestJobsSurviveRestart(t *testing.T) {
	e1, sink, storePath := newTestEngine(t)
	created, err := e1.CreateReminder(CreateOptions{Message: "persisted", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)

	e2 := NewEngine(storePath, sink, config.SchedulerConfig{})
	require.NoError(t, e2.Start(context.Background()))
	defer e2.Stop()

	got, ok := e2.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Message)
	assert.Equal(t, StatusPending, got.Status)
}

func TestExecuteJob_CompletesAndNotifies(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	var delivered []bus.Notification
	var mu sync.Mutex
	e.SetNotifyFunc(func(n bus.Notification) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, n)
	})

	job, err := e.CreateReminder(CreateOptions{Message: "tea time", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)

	require.NoError(t, e.ExecuteJob(context.Background(), job.ID))

	got, _ := e.Get(job.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	mu.Lock()
	require.Len(t, delivered, 1)
	assert.Equal(t, "tea time", delivered[0].Message)
	assert.InDelta(t, time.Now().UnixMilli(), delivered[0].FiredAt, float64(5*time.Second/time.Millisecond),
		"FiredAt is epoch milliseconds")
	mu.Unlock()

	injections, notified, _ := sink.snapshot()
	require.Len(t, injections, 1)
	assert.Equal(t, [3]float64{nudgeDrive, 0, nudgeStress}, injections[0])
	require.Len(t, notified, 1)
	assert.Contains(t, notified[0], "tea time")
}

func TestExecuteJob_Idempotent(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	count := 0
	e.SetNotifyFunc(func(n bus.Notification) { count++ })

	job, err := e.CreateReminder(CreateOptions{Message: "once", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)

	require.NoError(t, e.ExecuteJob(context.Background(), job.ID))
	require.NoError(t, e.ExecuteJob(context.Background(), job.ID))

	assert.Equal(t, 1, count, "delivery must happen exactly once")
	injections, _, _ := sink.snapshot()
	assert.Len(t, injections, 1, "state must be adjusted exactly once")
}

func TestExecuteJob_ParasiticRelief(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	e.SetNotifyFunc(func(n bus.Notification) {})

	job, err := e.CreateReminder(CreateOptions{Message: "neglected", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	e.jobs[job.ID].Parasitic = true
	e.jobs[job.ID].StressLevel = 40
	e.jobs[job.ID].EscalationStage = 1

	require.NoError(t, e.ExecuteJob(context.Background(), job.ID))

	got, _ := e.Get(job.ID)
	assert.False(t, got.Parasitic)
	assert.Equal(t, 0.0, got.StressLevel)
	assert.Equal(t, 0, got.EscalationStage)

	injections, _, _ := sink.snapshot()
	require.Len(t, injections, 1)
	assert.Equal(t, [3]float64{reliefDrive, 0, reliefStress}, injections[0])
}

func TestEscalationSweep(t *testing.T) {
	e, sink, _ := newTestEngine(t)

	job, err := e.CreateReminder(CreateOptions{Message: "overdue chore", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	// Push the due time past the grace period.
	past := time.Now().Add(-10 * time.Minute).UnixMilli()
	e.jobs[job.ID].DueAt = &past

	fresh, err := e.CreateReminder(CreateOptions{Message: "still fine", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)

	e.sweepEscalation()

	got, _ := e.Get(job.ID)
	assert.True(t, got.Parasitic)
	assert.Equal(t, 2.0, got.StressLevel)
	assert.Equal(t, 0, got.EscalationStage)

	untouched, _ := e.Get(fresh.ID)
	assert.False(t, untouched.Parasitic)

	injections, _, parasitic := sink.snapshot()
	require.Len(t, injections, 1)
	assert.Equal(t, [3]float64{0, 0, 2}, injections[0])
	assert.Equal(t, []string{"overdue chore"}, parasitic)
}

func TestEscalationStageThresholds(t *testing.T) {
	e, _, _ := newTestEngine(t)

	job, err := e.CreateReminder(CreateOptions{Message: "forever overdue", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour).UnixMilli()
	e.jobs[job.ID].DueAt = &past

	stages := map[float64]int{}
	for i := 0; i < 60; i++ {
		e.sweepEscalation()
		got, _ := e.Get(job.ID)
		stages[got.StressLevel] = got.EscalationStage
	}

	got, _ := e.Get(job.ID)
	assert.Equal(t, 100.0, got.StressLevel, "stress is bounded at 100")
	assert.Equal(t, 3, got.EscalationStage)
	assert.Equal(t, 1, stages[20])
	assert.Equal(t, 2, stages[50])
	assert.Equal(t, 3, stages[80])
}

func TestParasiticImpliesPending(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.SetNotifyFunc(func(n bus.Notification) {})

	job, err := e.CreateReminder(CreateOptions{Message: "check mail", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour).UnixMilli()
	e.jobs[job.ID].DueAt = &past

	e.sweepEscalation()
	require.NoError(t, e.ExecuteJob(context.Background(), job.ID))
	e.sweepEscalation()

	for _, j := range e.ListReminders(true) {
		if j.Parasitic {
			assert.Equal(t, StatusPending, j.Status, "only pending jobs may be parasitic")
		}
	}
	got, _ := e.Get(job.ID)
	assert.False(t, got.Parasitic)
}

func TestStart_OverdueAutoExecuteFiresOnLoad(t *testing.T) {
	e1, sink, storePath := newTestEngine(t)
	job, err := e1.CreateReminder(CreateOptions{
		Message: "morning brief", DueAt: futureTime(time.Hour), AutoExecute: true, TaskPrompt: "compile the brief",
	})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour).UnixMilli()
	e1.jobs[job.ID].DueAt = &past
	require.NoError(t, e1.persistLocked())

	ran := make(chan string, 1)
	e2 := NewEngine(storePath, sink, config.SchedulerConfig{})
	e2.SetMissionRunner(func(ctx context.Context, prompt string) { ran <- prompt })
	require.NoError(t, e2.Start(context.Background()))
	defer e2.Stop()

	select {
	case prompt := <-ran:
		assert.Equal(t, "compile the brief", prompt)
	case <-time.After(2 * time.Second):
		t.Fatal("overdue auto-execute job did not fire on load")
	}
}

func TestStart_OverduePlainReminderTurnsParasitic(t *testing.T) {
	e1, sink, storePath := newTestEngine(t)
	job, err := e1.CreateReminder(CreateOptions{Message: "missed it", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour).UnixMilli()
	e1.jobs[job.ID].DueAt = &past
	require.NoError(t, e1.persistLocked())

	fired := false
	e2 := NewEngine(storePath, sink, config.SchedulerConfig{})
	e2.SetNotifyFunc(func(n bus.Notification) { fired = true })
	require.NoError(t, e2.Start(context.Background()))
	defer e2.Stop()

	got, ok := e2.Get(job.ID)
	require.True(t, ok)
	assert.True(t, got.Parasitic, "past-due reminder becomes parasitic at load")
	assert.Equal(t, StatusPending, got.Status)
	assert.False(t, fired, "past-due reminder must not fire retroactively")
}

func TestOneShotFiresAtDueTime(t *testing.T) {
	e, sink, _ := newTestEngine(t)
	fired := make(chan bus.Notification, 1)
	e.SetNotifyFunc(func(n bus.Notification) { fired <- n })
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	_, err := e.CreateReminder(CreateOptions{Message: "soon", DueAt: futureTime(50 * time.Millisecond)})
	require.NoError(t, err)

	select {
	case n := <-fired:
		assert.Equal(t, "soon", n.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("one-shot job did not fire")
	}

	_, notified, _ := sink.snapshot()
	assert.NotEmpty(t, notified)
}

func TestCleanupSweep(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.SetNotifyFunc(func(n bus.Notification) {})

	old, err := e.CreateReminder(CreateOptions{Message: "ancient", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	recent, err := e.CreateReminder(CreateOptions{Message: "fresh", DueAt: futureTime(2 * time.Hour)})
	require.NoError(t, err)

	require.NoError(t, e.ExecuteJob(context.Background(), old.ID))
	require.NoError(t, e.ExecuteJob(context.Background(), recent.ID))
	stale := time.Now().Add(-25 * time.Hour).UnixMilli()
	e.jobs[old.ID].CompletedAt = &stale

	e.sweepCleanup()

	_, ok := e.Get(old.ID)
	assert.False(t, ok, "completed jobs older than the retention window are removed")
	_, ok = e.Get(recent.ID)
	assert.True(t, ok)
}

func TestSummary(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.SetNotifyFunc(func(n bus.Notification) {})

	a, err := e.CreateReminder(CreateOptions{Message: "a", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	_, err = e.CreateReminder(CreateOptions{Message: "b", DueAt: futureTime(2 * time.Hour)})
	require.NoError(t, err)
	c, err := e.CreateReminder(CreateOptions{Message: "c", DueAt: futureTime(3 * time.Hour)})
	require.NoError(t, err)

	require.NoError(t, e.ExecuteJob(context.Background(), a.ID))
	past := time.Now().Add(-time.Hour).UnixMilli()
	e.jobs[c.ID].DueAt = &past
	e.sweepEscalation()

	s := e.Summary()
	assert.Equal(t, Summary{Total: 3, Pending: 2, Completed: 1, Parasitic: 1}, s)
}

func TestUpdateReminder_RescheduleResetsEscalation(t *testing.T) {
	e, _, _ := newTestEngine(t)

	job, err := e.CreateReminder(CreateOptions{Message: "move me", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)
	e.jobs[job.ID].Parasitic = true
	e.jobs[job.ID].StressLevel = 60
	e.jobs[job.ID].EscalationStage = 2

	later := time.Now().Add(4 * time.Hour)
	got, err := e.UpdateReminder(job.ID, UpdateOptions{DueAt: &later})
	require.NoError(t, err)
	assert.False(t, got.Parasitic)
	assert.Equal(t, 0.0, got.StressLevel)
	assert.Equal(t, 0, got.EscalationStage)
	assert.Equal(t, later.UnixMilli(), *got.DueAt)
}

func TestDeleteReminder(t *testing.T) {
	e, _, _ := newTestEngine(t)

	job, err := e.CreateReminder(CreateOptions{Message: "gone", DueAt: futureTime(time.Hour)})
	require.NoError(t, err)

	assert.True(t, e.DeleteReminder(job.ID))
	assert.False(t, e.DeleteReminder(job.ID))
	assert.Empty(t, e.ListReminders(true))
}
