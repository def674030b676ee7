// Package main implements the lifeos CLI: a personal assistant that keeps
// tasks, reminders and notes in SQLite and talks over Telegram or Discord.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vthunder/lifeos/internal/config"
	"github.com/vthunder/lifeos/internal/logging"
	"github.com/vthunder/lifeos/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand
type globalFlags struct {
	db       string
	config   string
	logLevel string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:           "lifeos",
	Short:         "Personal assistant for tasks, reminders and notes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().AddFlagSet(newGlobalFlagSet(&flags))
	rootCmd.AddCommand(serveCmd, chatCmd, sqlCmd, initCmd, statusCmd)
}

func newGlobalFlagSet(f *globalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.StringVar(&f.db, "db", "", "database path (overrides LIFEOS_DB_PATH)")
	fs.StringVar(&f.config, "config", "", "config file, .yaml or .toml (overrides LIFEOS_CONFIG)")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	return fs
}

// loadConfig reads .env, the config file and flags, then validates for mode
func loadConfig(mode config.Mode) (*config.Config, error) {
	if config.LoadDotenv() {
		logging.Debug("config", "Loaded .env file")
	}

	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.db != "" {
		cfg.DBPath = flags.db
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// setupLogging applies the configured level and optional log file
func setupLogging(cfg *config.Config) (io.Closer, error) {
	closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	if cfg.Source != "" {
		logging.Debug("config", "Using config file %s", cfg.Source)
	}
	return closer, nil
}

// openStore opens the database and makes sure the schema exists
func openStore(ctx context.Context, cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	db.SetLocation(cfg.Location)

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Initialize(initCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// exitError carries a non-zero exit status without an extra message
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e exitError) ExitCode() int { return e.code }
