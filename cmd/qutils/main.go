package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/g0mb4/qutils/internal/config"
	"github.com/g0mb4/qutils/internal/logging"
)

// app carries per-invocation state shared by subcommands.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	closeLog func() error
	cfgFile  string
}

// newRootCmd builds the command tree with its own viper instance.
// Callers release the log file with app.close once the command has run.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "qutils",
		Short:         "List, check, extract, and create Quake PAK and WAD2 archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "path to config file")

	// archive settings
	flags.StringP("format", "f", defaults.Format, "archive format (pak, wad); detected from magic or extension when empty")
	flags.Int("max-entries", defaults.MaxEntries, "maximum number of directory entries")
	flags.StringSlice("include", nil, "include path rule (repeatable)")
	flags.StringSlice("exclude", nil, "exclude path rule (repeatable)")

	// extraction
	flags.IntP("workers", "j", defaults.Workers, "number of extraction workers")
	flags.Bool("continue-on-error", defaults.ContinueOnError, "keep extracting after a failed entry")
	flags.String("file-mode", defaults.FileMode, "extracted file policy (auto, truncate, create_only)")

	// other opts
	flags.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.String("log-output-dir", defaults.LogOutputDir, "directory to write log files (if set, logs are written to both stderr and file)")

	bindings := map[string]string{
		"format":            "format",
		"max_entries":       "max-entries",
		"include":           "include",
		"exclude":           "exclude",
		"workers":           "workers",
		"continue_on_error": "continue-on-error",
		"file_mode":         "file-mode",
		"log_level":         "log-level",
		"log_output_dir":    "log-output-dir",
	}
	for key, flag := range bindings {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		a.newListCmd(),
		a.newCheckCmd(),
		a.newExtractCmd(),
		a.newExtractAllCmd(),
		a.newCreateCmd(),
	)

	return rootCmd, a
}

// close releases the log file opened by load, if any.
func (a *app) close() {
	if a.closeLog == nil {
		return
	}
	if err := a.closeLog(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
	a.closeLog = nil
}

// load reads in config file and environment variables, then sets up logging.
func (a *app) load() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".config", "qutils"))
		}
		a.v.AddConfigPath("/etc/qutils")
		a.v.SetConfigName("config")
		a.v.SetConfigType("toml")
	}

	a.v.SetEnvPrefix("QUTILS")
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", a.v.ConfigFileUsed())
	}

	cfg := config.Default()
	if err := a.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir)
	if err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}
	a.closeLog = closeLog

	a.cfg = &cfg
	slog.Debug("config loaded", "format", cfg.Format, "max_entries", cfg.MaxEntries, "workers", cfg.Workers)

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd, a := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	a.close()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
