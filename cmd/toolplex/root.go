package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolplex",
		Short: "Multiplex MCP toolboxes behind one tool registry",
		Long: "toolplex connects to a configured set of MCP toolboxes over stdio, SSE or streamable HTTP,\n" +
			"namespaces their tools, and lets you list, call, batch or re-serve them as one registry.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env")
			if err := loadDotEnv(envFile); err != nil {
				return exitError(exitConfig, "load %s: %v", envFile, err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "toolplex.yaml", "Toolbox configuration file or directory")
	flags.String("env", ".env", "Path to .env file (ignored if missing)")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("log-level", "warn", "Log level: debug | info | warn | error")
	flags.Bool("headless", false, "Disable confirmation prompts by clearing every confirm set")
	flags.String("approver", "line", "Confirmation frontend: line | form | http (serve --http only)")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("toolplex version %s\n", version))

	root.AddCommand(newListCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newPromptCmd())
	root.AddCommand(newValidateCmd())

	return root
}

// loadDotEnv loads environment variables from a .env file. A missing file is
// not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if verbose {
		level = slog.LevelDebug
	} else if err := level.UnmarshalText([]byte(strings.TrimSpace(levelName))); err != nil {
		return nil, exitError(exitConfig, "invalid --log-level %q", levelName)
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}
