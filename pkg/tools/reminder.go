package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hollisdev/ember/pkg/spark"
)

// ReminderTool is the model's CRUD surface over the spark engine.
type ReminderTool struct {
	engine *spark.Engine
}

func NewReminderTool(engine *spark.Engine) *ReminderTool {
	return &ReminderTool{engine: engine}
}

func (t *ReminderTool) Name() string { return "reminder" }

func (t *ReminderTool) Description() string {
	return "Create, list, update, or cancel scheduled reminders and recurring tasks."
}

func (t *ReminderTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"create", "list", "update", "delete"},
				"description": "What to do",
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Job id (update/delete)",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Human-readable reminder text",
			},
			"due_at": map[string]interface{}{
				"type":        "string",
				"description": "One-shot due time, RFC3339 (e.g. 2026-09-01T09:00:00Z)",
			},
			"cron": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression for a recurring task (mutually exclusive with due_at)",
			},
			"auto_execute": map[string]interface{}{
				"type":        "boolean",
				"description": "Run the task autonomously instead of just notifying",
			},
			"task_prompt": map[string]interface{}{
				"type":        "string",
				"description": "Prompt for the autonomous run (auto_execute only)",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ReminderTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	action, _ := args["action"].(string)
	switch action {
	case "create":
		return t.create(args)
	case "list":
		return t.list()
	case "update":
		return t.update(args)
	case "delete":
		return t.delete(args)
	default:
		return ErrorResult(fmt.Sprintf("unknown reminder action %q", action))
	}
}

func parseDueAt(args map[string]interface{}) (*time.Time, error) {
	raw, _ := args["due_at"].(string)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("due_at must be RFC3339: %v", err)
	}
	return &at, nil
}

func (t *ReminderTool) create(args map[string]interface{}) *ToolResult {
	message, _ := args["message"].(string)
	dueAt, err := parseDueAt(args)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	cron, _ := args["cron"].(string)
	auto, _ := args["auto_execute"].(bool)
	prompt, _ := args["task_prompt"].(string)

	job, err := t.engine.CreateReminder(spark.CreateOptions{
		Message:        message,
		DueAt:          dueAt,
		CronExpression: cron,
		AutoExecute:    auto,
		TaskPrompt:     prompt,
	})
	if spark.IsDuplicate(err) {
		// Not a failure: the obligation already exists.
		return Result(fmt.Sprintf("An equivalent reminder already exists (id %s); nothing new was scheduled.", job.ID))
	}
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return Result(fmt.Sprintf("Scheduled %s (id %s)", describeJob(job), job.ID))
}

func (t *ReminderTool) list() *ToolResult {
	jobs := t.engine.ListReminders(false)
	if len(jobs) == 0 {
		return Result("No pending reminders.")
	}
	lines := make([]string, 0, len(jobs))
	for _, job := range jobs {
		line := fmt.Sprintf("- %s: %s", job.ID, describeJob(job))
		if job.Parasitic {
			line += fmt.Sprintf(" [overdue, stress %.0f]", job.StressLevel)
		}
		lines = append(lines, line)
	}
	return Result(strings.Join(lines, "\n"))
}

func (t *ReminderTool) update(args map[string]interface{}) *ToolResult {
	id, _ := args["id"].(string)
	if id == "" {
		return ErrorResult("id is required for update")
	}

	var opts spark.UpdateOptions
	if message, ok := args["message"].(string); ok {
		opts.Message = &message
	}
	dueAt, err := parseDueAt(args)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	opts.DueAt = dueAt
	if cron, ok := args["cron"].(string); ok && cron != "" {
		opts.CronExpression = &cron
	}
	if auto, ok := args["auto_execute"].(bool); ok {
		opts.AutoExecute = &auto
	}
	if prompt, ok := args["task_prompt"].(string); ok {
		opts.TaskPrompt = &prompt
	}

	job, err := t.engine.UpdateReminder(id, opts)
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return Result(fmt.Sprintf("Updated reminder %s: %s", job.ID, describeJob(job)))
}

func (t *ReminderTool) delete(args map[string]interface{}) *ToolResult {
	id, _ := args["id"].(string)
	if id == "" {
		return ErrorResult("id is required for delete")
	}
	if !t.engine.DeleteReminder(id) {
		return ErrorResult(fmt.Sprintf("reminder %s not found", id))
	}
	return Result(fmt.Sprintf("Cancelled reminder %s", id))
}

func describeJob(job *spark.Job) string {
	if job.Recurring() {
		return fmt.Sprintf("%q every %q", job.Message, job.CronExpression)
	}
	return fmt.Sprintf("%q at %s", job.Message, job.Due().Format(time.RFC3339))
}
