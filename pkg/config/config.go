package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Brain     BrainConfig     `json:"brain"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	mu        sync.RWMutex
}

type AgentConfig struct {
	Workspace           string `json:"workspace" env:"EMBER_AGENT_WORKSPACE"`
	RestrictToWorkspace bool   `json:"restrict_to_workspace" env:"EMBER_AGENT_RESTRICT_TO_WORKSPACE"`
	MaxTurns            int    `json:"max_turns" env:"EMBER_AGENT_MAX_TURNS"`
	HistoryThreshold    int    `json:"history_threshold" env:"EMBER_AGENT_HISTORY_THRESHOLD"`
}

type BrainConfig struct {
	Model          string              `json:"model" env:"EMBER_BRAIN_MODEL"`
	FallbackModels FlexibleStringSlice `json:"fallback_models" env:"EMBER_BRAIN_FALLBACK_MODELS"`
	MaxTokens      int                 `json:"max_tokens" env:"EMBER_BRAIN_MAX_TOKENS"`
	Temperature    float64             `json:"temperature" env:"EMBER_BRAIN_TEMPERATURE"`
	RepairAttempts int                 `json:"repair_attempts" env:"EMBER_BRAIN_REPAIR_ATTEMPTS"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"EMBER_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"EMBER_CHANNELS_DISCORD_ALLOW_FROM"`
}

type ProvidersConfig struct {
	OpenRouter ProviderConfig `json:"openrouter"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"EMBER_PROVIDERS_OPENROUTER_API_KEY"`
	APIBase string `json:"api_base" env:"EMBER_PROVIDERS_OPENROUTER_API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"EMBER_PROVIDERS_OPENROUTER_PROXY"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"EMBER_GATEWAY_HOST"`
	Port int    `json:"port" env:"EMBER_GATEWAY_PORT"`
}

type SchedulerConfig struct {
	GraceMinutes     int     `json:"grace_minutes" env:"EMBER_SCHEDULER_GRACE_MINUTES"`
	StressStep       float64 `json:"stress_step" env:"EMBER_SCHEDULER_STRESS_STEP"`
	CleanupAfterHrs  int     `json:"cleanup_after_hours" env:"EMBER_SCHEDULER_CLEANUP_AFTER_HOURS"`
	DuplicateWindowS int     `json:"duplicate_window_seconds" env:"EMBER_SCHEDULER_DUPLICATE_WINDOW_SECONDS"`
}

type HeartbeatConfig struct {
	Enabled        bool `json:"enabled" env:"EMBER_HEARTBEAT_ENABLED"`
	DormantMinutes int  `json:"dormant_minutes" env:"EMBER_HEARTBEAT_DORMANT_MINUTES"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:           "~/.ember/workspace",
			RestrictToWorkspace: true,
			MaxTurns:            15,
			HistoryThreshold:    24,
		},
		Brain: BrainConfig{
			Model:          "openai/gpt-4o",
			FallbackModels: FlexibleStringSlice{"openai/gpt-4-turbo", "openai/gpt-3.5-turbo"},
			MaxTokens:      8192,
			Temperature:    0.7,
			RepairAttempts: 3,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Providers: ProvidersConfig{
			OpenRouter: ProviderConfig{},
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18920,
		},
		Scheduler: SchedulerConfig{
			GraceMinutes:     5,
			StressStep:       2,
			CleanupAfterHrs:  24,
			DuplicateWindowS: 60,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:        true,
			DormantMinutes: 60,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Agent.Workspace)
}

func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Providers.OpenRouter.APIKey
}

func (c *Config) GetAPIBase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Providers.OpenRouter.APIBase != "" {
		return c.Providers.OpenRouter.APIBase
	}
	return "https://openrouter.ai/api/v1"
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
