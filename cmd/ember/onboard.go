package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/hollisdev/ember/pkg/config"
	"github.com/hollisdev/ember/pkg/memory"
)

func runOnboard(force bool) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil && !force {
		fmt.Printf("Config already exists at %s\n", configPath)
		fmt.Print("Overwrite? (y/n): ")
		reader := bufio.NewReader(os.Stdin)
		response, readErr := reader.ReadString('\n')
		if readErr != nil {
			return fmt.Errorf("read input: %w", readErr)
		}
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	// Seeds the protected memory slots with their templates.
	if _, err := memory.NewProtectedStore(workspace); err != nil {
		return fmt.Errorf("seed memory slots: %w", err)
	}

	fmt.Printf("%s is ready!\n", appName)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your API key to", configPath)
	fmt.Println("     Get one at: https://openrouter.ai/keys")
	fmt.Println("  2. (Daemon mode) Add your Discord bot token to channels.discord.token")
	fmt.Println("  3. Chat locally: ember agent -m \"Hello!\"")
	fmt.Println("  4. Run the daemon: ember daemon")
	fmt.Println("  5. Check readiness: ember status")
	return nil
}
