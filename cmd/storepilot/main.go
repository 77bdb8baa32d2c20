// Package main provides the storepilot binary entry point.
// Storepilot turns natural-language merchant instructions into typed
// Shopify commands and executes them through the safety pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	// Register LLM providers via init()
	_ "github.com/storepilot/storepilot/llm/providers"

	"github.com/spf13/cobra"

	"github.com/storepilot/storepilot/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "storepilot"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "storepilot",
		Short: "Natural-language Shopify store assistant",
		Long: `Storepilot turns merchant instructions written in plain language
into typed Shopify commands, applies tier and safety policy checks,
and executes them against the Shopify Admin API with retry and
rate limiting.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(processCmd(&configPath, &logLevel))
	cmd.AddCommand(replCmd(&configPath, &logLevel))
	cmd.AddCommand(initCmd(&logLevel))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func processCmd(configPath, logLevel *string) *cobra.Command {
	var (
		tier      int
		tenantID  string
		confirmed bool
	)

	cmd := &cobra.Command{
		Use:   "process \"<instruction>\"",
		Short: "Process one merchant instruction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(*configPath, *logLevel, args[0], tier, tenantID, confirmed)
		},
	}

	cmd.Flags().IntVar(&tier, "tier", 1, "Subscription tier (1=launch, 2=growth, 3=enterprise)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant identifier (required)")
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "Execute even when the command requires confirmation")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func replCmd(configPath, logLevel *string) *cobra.Command {
	var (
		tier     int
		tenantID string
	)

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Process instructions interactively",
		Long: `Reads instructions from stdin, one per line, until EOF or "exit".
Commands that require confirmation prompt inline. When --config is
given, the file is watched and edits to keyword lists, rate limits,
or models apply to subsequent instructions without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(*configPath, *logLevel, tier, tenantID)
		},
	}

	cmd.Flags().IntVar(&tier, "tier", 1, "Subscription tier (1=launch, 2=growth, 3=enterprise)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant identifier (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runRepl(configPath, logLevel string, tier int, tenantID string) error {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			if err := app.ApplyConfig(next); err != nil {
				logger.Warn("Keeping previous config", "error", err)
			}
		}, config.WithWatcherLogger(logger))
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer watcher.Stop()
	}

	return app.Repl(ctx, os.Stdin, tier, tenantID)
}

func initCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the default user config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*logLevel)
			return config.NewLoader(logger).EnsureUserConfig()
		},
	}
}

func runProcess(configPath, logLevel, text string, tier int, tenantID string, confirmed bool) error {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	return app.Process(ctx, text, tier, tenantID, confirmed)
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
