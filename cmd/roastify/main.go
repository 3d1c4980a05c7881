package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ahmedmhosni/roastify/internal/config"
	"github.com/ahmedmhosni/roastify/internal/db"
	"github.com/ahmedmhosni/roastify/internal/logger"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"
)

var (
	version   = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

var (
	configDir string
	debug     bool
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	rootCmd := &cobra.Command{
		Use:           "roastify",
		Short:         "Roastify backend: API server, database mirror and admin tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Default = logger.New(os.Stderr, debug)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(),
		newMirrorCmd(),
		newVerifyCmd(),
		newSeedAdminCmd(),
		newDBCmd(),
		newTimerCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// connectTarget opens the local or remote database named by target.
func connectTarget(ctx context.Context, cfg config.Config, target string) (*db.Connection, error) {
	dbCfg, err := cfg.Target(target)
	if err != nil {
		return nil, err
	}
	conn, err := db.NewConnection(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", target, err)
	}
	logger.Default.Debug("connected to %s database %s", target, dbCfg)
	return conn, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			if buildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "roastify %s (built %s)\n", version.String(), buildDate)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "roastify %s\n", version.String())
		},
	}
}
