package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hollisdev/ember/pkg/logger"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   appName,
		Short: "Personal automation agent with a cognition loop and persistent scheduler",
		Long: strings.TrimSpace(`ember is a long-running personal automation agent.

Use CLI commands to onboard, chat with the agent locally, run the daemon
with the Discord gateway, manage scheduled reminders, and check readiness.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newAgentCommand())
	root.AddCommand(newDaemonCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newSparkCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newOnboardCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.ember config and workspace",
		Long:    "Create the default configuration, workspace directories, and memory seed files for a new ember installation.",
		Example: "  ember onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config without asking")
	return cmd
}

func newAgentCommand() *cobra.Command {
	var (
		message string
		session string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Chat with the agent locally (CLI mode)",
		Long:  "Run an interactive local agent session or send one-shot messages without the Discord gateway.",
		Example: strings.Join([]string{
			"  ember agent",
			"  ember agent --session cli:workspace",
			"  ember agent --message \"remind me to stretch at 15:00\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
			return runAgent(message, session)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot prompt to send to the agent")
	cmd.Flags().StringVarP(&session, "session", "s", "cli:local", "Session key for continuity")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func newDaemonCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run the daemon: Discord gateway, scheduler, heartbeat, status server",
		Long:    "Start the channel adapters, the task scheduler, the heartbeat worker, and the local status API, then run until interrupted.",
		Example: "  ember daemon --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
			return runDaemon()
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and runtime readiness",
		Example: "  ember status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
