package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type daemonHealth struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	AgentActive   bool   `json:"agent_active"`
	State         *struct {
		Drive  float64 `json:"drive"`
		Bond   float64 `json:"bond"`
		Stress float64 `json:"stress"`
	} `json:"state"`
	Scheduler *struct {
		Total     int `json:"total"`
		Pending   int `json:"pending"`
		Completed int `json:"completed"`
		Parasitic int `json:"parasitic"`
	} `json:"scheduler"`
	Parasitic []string `json:"parasitic"`
}

func runStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	configPath := getConfigPath()

	fmt.Printf("%s Status\n", appName)
	fmt.Printf("Version: %s\n", formatVersion())
	fmt.Println()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config:", configPath, "✓")
	} else {
		fmt.Println("Config:", configPath, "✗")
	}

	workspace := cfg.WorkspacePath()
	if _, err := os.Stat(workspace); err == nil {
		fmt.Println("Workspace:", workspace, "✓")
	} else {
		fmt.Println("Workspace:", workspace, "✗")
	}
	archiveDB := filepath.Join(workspace, "state", "archive.db")
	if _, err := os.Stat(archiveDB); err == nil {
		fmt.Println("Event archive:", archiveDB, "✓")
	} else {
		fmt.Println("Event archive:", archiveDB, "not initialized")
	}

	fmt.Printf("Model: %s\n", cfg.Brain.Model)

	ready := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "not set"
	}
	apiReady := strings.TrimSpace(cfg.GetAPIKey()) != ""
	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""
	fmt.Println("OpenRouter API:", ready(apiReady))
	fmt.Println("Discord token:", ready(discordReady))
	fmt.Println("Agent ready:", ready(apiReady))
	fmt.Println("Daemon ready:", ready(apiReady && discordReady))

	fmt.Println()
	printDaemonStatus(cfg.Gateway.Host, cfg.Gateway.Port)
	return nil
}

func printDaemonStatus(host string, port int) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s:%d/health", host, port))
	if err != nil {
		fmt.Println("Daemon: not running")
		return
	}
	defer resp.Body.Close()

	var payload daemonHealth
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Println("Daemon: unreadable health response")
		return
	}

	fmt.Printf("Daemon: running (uptime %s)\n", (time.Duration(payload.UptimeSeconds) * time.Second).String())
	if payload.AgentActive {
		fmt.Println("Agent: busy")
	} else {
		fmt.Println("Agent: idle")
	}
	if payload.State != nil {
		fmt.Printf("State: drive %.0f, bond %.0f, stress %.0f\n",
			payload.State.Drive, payload.State.Bond, payload.State.Stress)
	}
	if payload.Scheduler != nil {
		fmt.Printf("Scheduler: %d pending, %d completed, %d parasitic\n",
			payload.Scheduler.Pending, payload.Scheduler.Completed, payload.Scheduler.Parasitic)
	}
	for _, msg := range payload.Parasitic {
		fmt.Printf("  overdue: %s\n", msg)
	}
}
