package spark

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/hollisdev/ember/pkg/bus"
	"github.com/hollisdev/ember/pkg/config"
	"github.com/hollisdev/ember/pkg/logger"
)

// ErrDuplicate marks a create request that matches an existing pending job.
var ErrDuplicate = errors.New("duplicate reminder")

// IsDuplicate reports whether err is the duplicate-reminder signal.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StateSink is the slice of the session-state manager the engine feeds:
// stress/relief injections, notification queueing, and the published list of
// overdue jobs.
type StateSink interface {
	Inject(drive, bond, stress float64)
	Notify(msg string)
	SetParasitic(messages []string)
}

// MissionRunner re-enters the agent with an autonomous mission prompt.
// It runs in its own goroutine; result delivery is the mission's problem.
type MissionRunner func(ctx context.Context, prompt string)

// NotifyFunc delivers a fired non-auto job to the outside world.
type NotifyFunc func(n bus.Notification)

// Injection constants for job outcomes. Completing a parasitic job gives a
// large relief; a normal firing nudges the state slightly.
const (
	reliefDrive  = 5.0
	reliefStress = -20.0
	nudgeDrive   = 2.0
	nudgeStress  = -1.0
)

// Engine is the persistent task scheduler. One instance owns the job store;
// all timers, the escalation sweep, and the cleanup sweep hang off it.
type Engine struct {
	mu     sync.Mutex
	store  *store
	jobs   map[string]*Job
	timers map[string]*time.Timer

	gron *gronx.Gronx
	cfg  config.SchedulerConfig

	state   StateSink
	mission MissionRunner
	notify  NotifyFunc

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewEngine(storePath string, st StateSink, cfg config.SchedulerConfig) *Engine {
	if cfg.GraceMinutes <= 0 {
		cfg.GraceMinutes = 5
	}
	if cfg.StressStep <= 0 {
		cfg.StressStep = 2
	}
	if cfg.CleanupAfterHrs <= 0 {
		cfg.CleanupAfterHrs = 24
	}
	if cfg.DuplicateWindowS <= 0 {
		cfg.DuplicateWindowS = 60
	}
	return &Engine{
		store:  newStore(storePath),
		jobs:   make(map[string]*Job),
		timers: make(map[string]*time.Timer),
		gron:   gronx.New(),
		cfg:    cfg,
		state:  st,
	}
}

// SetMissionRunner wires the autonomous-mission entry point. Must be called
// before Start.
func (e *Engine) SetMissionRunner(fn MissionRunner) { e.mission = fn }

// SetNotifyFunc wires external delivery for fired non-auto jobs.
func (e *Engine) SetNotifyFunc(fn NotifyFunc) { e.notify = fn }

// Start loads the store, schedules every pending job, and launches the
// escalation and cleanup sweeps. Jobs already overdue at load time do not
// fire retroactively unless they are autonomous missions: plain reminders
// become parasitic immediately and wait for the escalation sweep.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true

	jobs, err := e.store.load()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	for _, job := range jobs {
		e.jobs[job.ID] = job
	}

	now := time.Now()
	var fireNow []string
	for _, job := range e.jobs {
		if job.Status != StatusPending {
			continue
		}
		if job.Recurring() {
			e.scheduleLocked(job)
			continue
		}
		if job.Due().After(now) {
			e.scheduleLocked(job)
			continue
		}
		if job.AutoExecute {
			fireNow = append(fireNow, job.ID)
			continue
		}
		job.Parasitic = true
		job.EscalationStage = stageFor(job.StressLevel)
	}
	if err := e.persistLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	for _, id := range fireNow {
		id := id
		go func() {
			if err := e.ExecuteJob(sweepCtx, id); err != nil {
				logger.ErrorCF("spark", "overdue mission failed on load", map[string]interface{}{
					"job_id": id, "error": err.Error(),
				})
			}
		}()
	}

	e.wg.Add(2)
	go e.runSweep(sweepCtx, time.Minute, e.sweepEscalation)
	go e.runSweep(sweepCtx, time.Hour, e.sweepCleanup)

	logger.InfoCF("spark", "engine started", map[string]interface{}{
		"jobs": len(e.jobs), "store": e.store.path,
	})
	return nil
}

// Stop cancels the sweeps and stops every per-job timer. In-flight firings
// are not awaited.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
	e.started = false
	e.mu.Unlock()
	e.wg.Wait()
	logger.InfoC("spark", "engine stopped")
}

func (e *Engine) runSweep(ctx context.Context, interval time.Duration, sweep func()) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// CreateOptions describes a new job. Exactly one of DueAt or CronExpression
// must be set.
type CreateOptions struct {
	Message        string
	DueAt          *time.Time
	CronExpression string
	AutoExecute    bool
	TaskPrompt     string
}

// CreateReminder validates, persists, and schedules a new job. A pending job
// with the same message and an equivalent schedule short-circuits with
// ErrDuplicate and the existing job.
func (e *Engine) CreateReminder(opts CreateOptions) (*Job, error) {
	if opts.Message == "" {
		return nil, fmt.Errorf("reminder message is required")
	}
	if (opts.DueAt == nil) == (opts.CronExpression == "") {
		return nil, fmt.Errorf("exactly one of due time or cron expression is required")
	}
	if opts.CronExpression != "" && !e.gron.IsValid(opts.CronExpression) {
		return nil, fmt.Errorf("invalid cron expression %q", opts.CronExpression)
	}
	if opts.DueAt != nil && opts.DueAt.Before(time.Now()) {
		return nil, fmt.Errorf("due time %s is in the past", opts.DueAt.Format(time.RFC3339))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing := e.findDuplicateLocked(opts); existing != nil {
		return existing.clone(), fmt.Errorf("%w: matches job %s", ErrDuplicate, existing.ID)
	}

	job := &Job{
		ID:             uuid.NewString(),
		Message:        opts.Message,
		CronExpression: opts.CronExpression,
		Status:         StatusPending,
		AutoExecute:    opts.AutoExecute,
		TaskPrompt:     opts.TaskPrompt,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if opts.DueAt != nil {
		ms := opts.DueAt.UnixMilli()
		job.DueAt = &ms
	}

	e.jobs[job.ID] = job
	// A failed store write is not fatal: the job lives in memory and the
	// next successful persist picks it up.
	if err := e.persistLocked(); err != nil {
		logger.WarnCF("spark", "job store write failed, keeping job in memory", map[string]interface{}{
			"job_id": job.ID, "error": err.Error(),
		})
	}
	if e.started {
		e.scheduleLocked(job)
	}

	logger.InfoCF("spark", "reminder created", map[string]interface{}{
		"job_id": job.ID, "message": job.Message, "recurring": job.Recurring(), "auto": job.AutoExecute,
	})
	return job.clone(), nil
}

func (e *Engine) findDuplicateLocked(opts CreateOptions) *Job {
	window := time.Duration(e.cfg.DuplicateWindowS) * time.Second
	for _, job := range e.jobs {
		if job.Status != StatusPending || job.Message != opts.Message {
			continue
		}
		if opts.CronExpression != "" && job.CronExpression == opts.CronExpression {
			return job
		}
		if opts.DueAt != nil && job.DueAt != nil {
			diff := opts.DueAt.Sub(job.Due())
			if diff < 0 {
				diff = -diff
			}
			if diff <= window {
				return job
			}
		}
	}
	return nil
}

// UpdateOptions carries partial updates; nil fields are left alone.
type UpdateOptions struct {
	Message        *string
	DueAt          *time.Time
	CronExpression *string
	AutoExecute    *bool
	TaskPrompt     *string
}

// UpdateReminder applies a partial update. A schedule change re-arms the
// timer and resets the escalation fields, since the job is no longer the
// same obligation.
func (e *Engine) UpdateReminder(id string, opts UpdateOptions) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}

	if opts.Message != nil {
		job.Message = *opts.Message
	}
	if opts.AutoExecute != nil {
		job.AutoExecute = *opts.AutoExecute
	}
	if opts.TaskPrompt != nil {
		job.TaskPrompt = *opts.TaskPrompt
	}

	rescheduled := false
	if opts.CronExpression != nil {
		if *opts.CronExpression != "" && !e.gron.IsValid(*opts.CronExpression) {
			return nil, fmt.Errorf("invalid cron expression %q", *opts.CronExpression)
		}
		job.CronExpression = *opts.CronExpression
		job.DueAt = nil
		rescheduled = true
	}
	if opts.DueAt != nil {
		ms := opts.DueAt.UnixMilli()
		job.DueAt = &ms
		job.CronExpression = ""
		rescheduled = true
	}
	if rescheduled {
		job.Status = StatusPending
		job.CompletedAt = nil
		job.Parasitic = false
		job.StressLevel = 0
		job.EscalationStage = 0
		if e.started {
			e.scheduleLocked(job)
		}
	}

	if err := e.persistLocked(); err != nil {
		logger.WarnCF("spark", "job store write failed, keeping update in memory", map[string]interface{}{
			"job_id": job.ID, "error": err.Error(),
		})
	}
	return job.clone(), nil
}

// DeleteReminder removes a job and stops its timer.
func (e *Engine) DeleteReminder(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.jobs[id]; !ok {
		return false
	}
	if timer, ok := e.timers[id]; ok {
		timer.Stop()
		delete(e.timers, id)
	}
	delete(e.jobs, id)
	if err := e.persistLocked(); err != nil {
		logger.ErrorCF("spark", "persist after delete failed", map[string]interface{}{"error": err.Error()})
	}
	return true
}

// ListReminders returns jobs ordered by creation time.
func (e *Engine) ListReminders(includeCompleted bool) []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		if !includeCompleted && job.Status == StatusCompleted {
			continue
		}
		out = append(out, job.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Get returns one job by id.
func (e *Engine) Get(id string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

// Summary is the scheduler roll-up exposed by the health surface.
type Summary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Parasitic int `json:"parasitic"`
}

func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{Total: len(e.jobs)}
	for _, job := range e.jobs {
		switch job.Status {
		case StatusPending:
			s.Pending++
		case StatusCompleted:
			s.Completed++
		}
		if job.Parasitic {
			s.Parasitic++
		}
	}
	return s
}

// ExecuteJob fires one job. Non-recurring jobs complete exactly once; a
// second call on a completed job is a no-op with no delivery and no state
// change. Completing a parasitic job injects relief and clears escalation.
func (e *Engine) ExecuteJob(ctx context.Context, id string) error {
	e.mu.Lock()
	job, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("job %s not found", id)
	}
	if !job.Recurring() && job.Status == StatusCompleted {
		e.mu.Unlock()
		logger.DebugCF("spark", "skipping already-completed job", map[string]interface{}{"job_id": id})
		return nil
	}

	wasParasitic := job.Parasitic
	if !job.Recurring() {
		job.Status = StatusCompleted
		ms := time.Now().UnixMilli()
		job.CompletedAt = &ms
	}
	job.Parasitic = false
	job.StressLevel = 0
	job.EscalationStage = 0

	if err := e.persistLocked(); err != nil {
		logger.WarnCF("spark", "job store write failed, completing in memory", map[string]interface{}{
			"job_id": job.ID, "error": err.Error(),
		})
	}
	fired := job.clone()
	e.mu.Unlock()

	if e.state != nil {
		if wasParasitic {
			e.state.Inject(reliefDrive, 0, reliefStress)
		} else {
			e.state.Inject(nudgeDrive, 0, nudgeStress)
		}
	}

	logger.InfoCF("spark", "job fired", map[string]interface{}{
		"job_id": fired.ID, "message": fired.Message, "auto": fired.AutoExecute, "was_parasitic": wasParasitic,
	})

	if fired.AutoExecute {
		if e.mission != nil {
			go e.mission(ctx, fired.Prompt())
		} else {
			logger.WarnCF("spark", "auto-execute job fired without mission runner", map[string]interface{}{"job_id": fired.ID})
		}
		return nil
	}

	if e.notify != nil {
		e.notify(bus.Notification{JobID: fired.ID, Message: fired.Message, FiredAt: time.Now().UnixMilli()})
	}
	if e.state != nil {
		e.state.Notify(fmt.Sprintf("Reminder fired: %s", fired.Message))
	}
	return nil
}

// scheduleLocked arms the timer for one pending job. Caller holds the lock.
func (e *Engine) scheduleLocked(job *Job) {
	if timer, ok := e.timers[job.ID]; ok {
		timer.Stop()
		delete(e.timers, job.ID)
	}
	if job.Status != StatusPending {
		return
	}

	var wait time.Duration
	if job.Recurring() {
		next, err := gronx.NextTick(job.CronExpression, false)
		if err != nil {
			logger.ErrorCF("spark", "cannot compute next cron tick", map[string]interface{}{
				"job_id": job.ID, "cron": job.CronExpression, "error": err.Error(),
			})
			return
		}
		wait = time.Until(next)
	} else {
		wait = time.Until(job.Due())
	}
	if wait < 0 {
		wait = 0
	}

	id := job.ID
	e.timers[id] = time.AfterFunc(wait, func() { e.fire(id) })
}

func (e *Engine) fire(id string) {
	if err := e.ExecuteJob(context.Background(), id); err != nil {
		logger.ErrorCF("spark", "job execution failed", map[string]interface{}{"job_id": id, "error": err.Error()})
	}

	// Recurring jobs re-arm for the next tick.
	e.mu.Lock()
	defer e.mu.Unlock()
	if job, ok := e.jobs[id]; ok && job.Recurring() && job.Status == StatusPending && e.started {
		e.scheduleLocked(job)
	}
}

// sweepEscalation runs once per minute. Every pending one-shot job overdue
// past the grace period turns parasitic and accumulates stress; the sweep
// injects the aggregate into the session state and publishes the overdue
// labels for status reporting.
func (e *Engine) sweepEscalation() {
	grace := time.Duration(e.cfg.GraceMinutes) * time.Minute
	now := time.Now()

	e.mu.Lock()
	var labels []string
	var total float64
	changed := false
	for _, job := range e.jobs {
		if job.Status != StatusPending || job.Recurring() || job.DueAt == nil {
			continue
		}
		if now.Sub(job.Due()) <= grace {
			continue
		}
		job.Parasitic = true
		inc := e.cfg.StressStep
		if job.StressLevel+inc > 100 {
			inc = 100 - job.StressLevel
		}
		job.StressLevel += inc
		job.EscalationStage = stageFor(job.StressLevel)
		total += inc
		labels = append(labels, job.Message)
		changed = true
	}
	if changed {
		if err := e.persistLocked(); err != nil {
			logger.ErrorCF("spark", "persist after escalation failed", map[string]interface{}{"error": err.Error()})
		}
	}
	e.mu.Unlock()

	if e.state != nil {
		e.state.SetParasitic(labels)
		if total > 0 {
			e.state.Inject(0, 0, total)
		}
	}
	if len(labels) > 0 {
		logger.WarnCF("spark", "parasitic jobs pending", map[string]interface{}{"count": len(labels)})
	}
}

// sweepCleanup deletes completed jobs older than the retention window.
func (e *Engine) sweepCleanup() {
	cutoff := time.Now().Add(-time.Duration(e.cfg.CleanupAfterHrs) * time.Hour).UnixMilli()

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, job := range e.jobs {
		if job.Status != StatusCompleted || job.CompletedAt == nil || *job.CompletedAt > cutoff {
			continue
		}
		if timer, ok := e.timers[id]; ok {
			timer.Stop()
			delete(e.timers, id)
		}
		delete(e.jobs, id)
		removed++
	}
	if removed > 0 {
		if err := e.persistLocked(); err != nil {
			logger.ErrorCF("spark", "persist after cleanup failed", map[string]interface{}{"error": err.Error()})
		}
		logger.InfoCF("spark", "cleaned up completed jobs", map[string]interface{}{"removed": removed})
	}
}

func (e *Engine) persistLocked() error {
	jobs := make([]*Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt < jobs[j].CreatedAt })
	return e.store.save(jobs)
}
