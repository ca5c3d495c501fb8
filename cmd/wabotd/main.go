package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/matheus3301/wabot/internal/config"
	"github.com/matheus3301/wabot/internal/daemon"
	"github.com/matheus3301/wabot/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var instance, envFile string
	cmd := &cobra.Command{
		Use:          "wabotd",
		Short:        "WhatsApp operator daemon",
		Long:         "wabotd keeps one WhatsApp session connected and serves the operator API for it.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnv(envFile); err != nil {
				return err
			}
			name := session.Resolve(instance)
			if err := session.ValidateName(name); err != nil {
				return err
			}
			cfg, err := config.LoadOrDefault(session.ConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			fx.New(daemon.Module(daemon.Params{Instance: name, Config: cfg.Daemon})).Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&instance, "instance", "", "instance name (overrides config default)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with GEMINI_API_KEY and friends")
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadEnv reads path into the environment without overriding what is set.
// A missing file is fine.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wabotd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
