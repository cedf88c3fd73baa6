package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/hollisdev/ember/pkg/agent"
)

func runAgent(message, sessionKey string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := validateRuntimeConfig(cfg, false); err != nil {
		return err
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The scheduler runs in CLI mode too, so reminders created here arm
	// immediately and overdue jobs surface as parasitic state.
	if err := rt.start(ctx); err != nil {
		return err
	}

	rt.messenger.SetContext("cli", "local")

	if strings.TrimSpace(message) != "" {
		resp, err := rt.orch.Run(ctx, message, agent.RunOptions{SessionKey: sessionKey, Channel: "cli", ChatID: "local"})
		if err != nil {
			return err
		}
		fmt.Printf("\n%s %s\n", appName, resp.Content)
		return nil
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", appName)
	return interactiveMode(ctx, rt, sessionKey)
}

func interactiveMode(ctx context.Context, rt *appRuntime, sessionKey string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".ember_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		resp, err := rt.orch.Run(ctx, input, agent.RunOptions{SessionKey: sessionKey, Channel: "cli", ChatID: "local"})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s %s\n\n", appName, resp.Content)
	}
}
