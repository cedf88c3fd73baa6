package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hollisdev/ember/pkg/config"
)

// ConfigTool lets the model adjust a small whitelist of runtime settings.
// Everything else in the config stays operator-only.
type ConfigTool struct {
	cfg  *config.Config
	path string
}

func NewConfigTool(cfg *config.Config, path string) *ConfigTool {
	return &ConfigTool{cfg: cfg, path: path}
}

func (t *ConfigTool) Name() string { return "update_config" }

func (t *ConfigTool) Description() string {
	return "Update a runtime setting. Allowed keys: brain.model, brain.temperature, agent.max_turns."
}

func (t *ConfigTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Setting name, e.g. brain.model",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "New value",
			},
		},
		"required": []string{"key", "value"},
	}
}

func (t *ConfigTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	key, _ := args["key"].(string)
	value, _ := args["value"].(string)
	if key == "" || value == "" {
		return ErrorResult("key and value are required")
	}

	switch strings.ToLower(strings.TrimSpace(key)) {
	case "brain.model":
		t.cfg.Brain.Model = value
	case "brain.temperature":
		temp, err := strconv.ParseFloat(value, 64)
		if err != nil || temp < 0 || temp > 2 {
			return ErrorResult("brain.temperature must be a number between 0 and 2")
		}
		t.cfg.Brain.Temperature = temp
	case "agent.max_turns":
		turns, err := strconv.Atoi(value)
		if err != nil || turns < 1 || turns > 100 {
			return ErrorResult("agent.max_turns must be an integer between 1 and 100")
		}
		t.cfg.Agent.MaxTurns = turns
	default:
		return ErrorResult(fmt.Sprintf("setting %q cannot be changed at runtime", key))
	}

	if err := config.SaveConfig(t.path, t.cfg); err != nil {
		return ErrorResult(fmt.Sprintf("save config: %v", err)).WithError(err)
	}
	return Result(fmt.Sprintf("Updated %s to %s", key, value))
}
