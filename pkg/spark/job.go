package spark

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Job is one scheduled unit. Exactly one of DueAt (one-shot, epoch millis)
// or CronExpression (recurring) is set. StressLevel only moves upward while
// the job is overdue; completion clears it.
type Job struct {
	ID              string `json:"id"`
	Message         string `json:"message"`
	DueAt           *int64 `json:"due_at,omitempty"`
	CronExpression  string `json:"cron_expression,omitempty"`
	Status          Status `json:"status"`
	AutoExecute     bool   `json:"auto_execute"`
	TaskPrompt      string `json:"task_prompt,omitempty"`
	StressLevel     float64 `json:"stress_level"`
	Parasitic       bool   `json:"parasitic"`
	EscalationStage int    `json:"escalation_stage"`
	CreatedAt       int64  `json:"created_at"`
	CompletedAt     *int64 `json:"completed_at,omitempty"`
}

// Recurring reports whether the job reschedules itself after firing.
func (j *Job) Recurring() bool {
	return j.CronExpression != ""
}

// Due returns the one-shot due time; zero for recurring jobs.
func (j *Job) Due() time.Time {
	if j.DueAt == nil {
		return time.Time{}
	}
	return time.UnixMilli(*j.DueAt)
}

// Prompt returns what an autonomous mission should run with.
func (j *Job) Prompt() string {
	if j.TaskPrompt != "" {
		return j.TaskPrompt
	}
	return j.Message
}

// stageFor maps a stress level onto the escalation stage thresholds.
func stageFor(stress float64) int {
	switch {
	case stress >= 80:
		return 3
	case stress >= 50:
		return 2
	case stress >= 20:
		return 1
	default:
		return 0
	}
}

func (j *Job) clone() *Job {
	c := *j
	if j.DueAt != nil {
		v := *j.DueAt
		c.DueAt = &v
	}
	if j.CompletedAt != nil {
		v := *j.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}
