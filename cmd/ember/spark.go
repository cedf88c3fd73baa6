package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hollisdev/ember/pkg/spark"
)

func newSparkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spark",
		Short: "Manage scheduled reminders",
		Long:  "List, add, and remove scheduled reminders. Talks to the running daemon; list falls back to the on-disk job store when the daemon is down.",
	}

	cmd.AddCommand(newSparkListCommand())
	cmd.AddCommand(newSparkAddCommand())
	cmd.AddCommand(newSparkRemoveCommand())

	return cmd
}

func newSparkListCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List scheduled reminders",
		Example: "  ember spark list --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sparkList(all)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include completed reminders")
	return cmd
}

func newSparkAddCommand() *cobra.Command {
	var (
		message  string
		at       string
		cronExpr string
		auto     bool
		prompt   string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a reminder (requires the daemon)",
		Example: strings.Join([]string{
			"  ember spark add -m \"water the plants\" --at 2026-09-01T09:00:00Z",
			"  ember spark add -m \"weekly report\" --cron \"0 9 * * 1\" --auto --prompt \"Write the weekly report\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sparkAdd(message, at, cronExpr, auto, prompt)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "Reminder message (required)")
	cmd.Flags().StringVar(&at, "at", "", "One-shot due time, RFC3339")
	cmd.Flags().StringVarP(&cronExpr, "cron", "c", "", "Recurring cron expression (e.g. '0 9 * * *')")
	cmd.Flags().BoolVar(&auto, "auto", false, "Execute autonomously instead of notifying")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Mission prompt for autonomous execution")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func newSparkRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <job-id>",
		Short:   "Remove a reminder by ID (requires the daemon)",
		Args:    cobra.ExactArgs(1),
		Example: "  ember spark remove 4f7c2c9a",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sparkRemove(args[0])
		},
	}
}

func daemonURL(path string) (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return fmt.Sprintf("http://%s:%d%s", cfg.Gateway.Host, cfg.Gateway.Port, path), nil
}

func sparkList(all bool) error {
	url, err := daemonURL("/reminders")
	if err != nil {
		return err
	}
	if all {
		url += "?all=true"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return sparkListOffline(all)
	}
	defer resp.Body.Close()

	var jobs []*spark.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("decode reminder list: %w", err)
	}
	printJobs(jobs)
	return nil
}

// sparkListOffline reads the job store directly when no daemon is running.
func sparkListOffline(all bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	jobs, err := spark.LoadJobs(filepath.Join(cfg.WorkspacePath(), "state", "jobs.json"))
	if err != nil {
		return fmt.Errorf("read job store: %w", err)
	}
	if !all {
		pending := jobs[:0]
		for _, job := range jobs {
			if job.Status == spark.StatusPending {
				pending = append(pending, job)
			}
		}
		jobs = pending
	}

	fmt.Println("(daemon not running, reading job store directly)")
	printJobs(jobs)
	return nil
}

func printJobs(jobs []*spark.Job) {
	if len(jobs) == 0 {
		fmt.Println("No scheduled reminders.")
		return
	}

	fmt.Println("\nScheduled Reminders:")
	fmt.Println("--------------------")
	for _, job := range jobs {
		schedule := "one-time"
		if job.Recurring() {
			schedule = job.CronExpression
		} else if job.DueAt != nil {
			schedule = time.UnixMilli(*job.DueAt).Format("2006-01-02 15:04")
		}

		flags := string(job.Status)
		if job.AutoExecute {
			flags += ", auto"
		}
		if job.Parasitic {
			flags += fmt.Sprintf(", overdue (stress %.0f)", job.StressLevel)
		}

		fmt.Printf("  %s (%s)\n", job.Message, job.ID)
		fmt.Printf("    Schedule: %s\n", schedule)
		fmt.Printf("    Status: %s\n", flags)
	}
}

func sparkAdd(message, at, cronExpr string, auto bool, prompt string) error {
	if at == "" && cronExpr == "" {
		return fmt.Errorf("one of --at or --cron is required")
	}
	if at != "" {
		if _, err := time.Parse(time.RFC3339, at); err != nil {
			return fmt.Errorf("--at must be RFC3339 (e.g. 2026-09-01T09:00:00Z): %w", err)
		}
	}

	url, err := daemonURL("/reminders")
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]interface{}{
		"message":         message,
		"due_at":          at,
		"cron_expression": cronExpr,
		"auto_execute":    auto,
		"task_prompt":     prompt,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("daemon not reachable, start it with: %s daemon", appName)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var job spark.Job
		if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
			return fmt.Errorf("decode created job: %w", err)
		}
		fmt.Printf("Created reminder %s\n", job.ID)
		return nil
	case http.StatusConflict:
		var job spark.Job
		if err := json.NewDecoder(resp.Body).Decode(&job); err == nil {
			fmt.Printf("An equivalent reminder already exists: %s\n", job.ID)
			return nil
		}
		return fmt.Errorf("duplicate reminder")
	default:
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon rejected reminder: %s", strings.TrimSpace(string(msg)))
	}
}

func sparkRemove(id string) error {
	url, err := daemonURL("/reminders/" + id)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable, start it with: %s daemon", appName)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		fmt.Printf("Removed reminder %s\n", id)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("no reminder with id %s", id)
	default:
		return fmt.Errorf("unexpected daemon response: %s", resp.Status)
	}
}
