package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/storepilot/storepilot/cache"
	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/config"
	"github.com/storepilot/storepilot/feedback"
	"github.com/storepilot/storepilot/history"
	"github.com/storepilot/storepilot/kvstore"
	"github.com/storepilot/storepilot/llm"
	"github.com/storepilot/storepilot/metrics"
	"github.com/storepilot/storepilot/model"
	"github.com/storepilot/storepilot/parser"
	"github.com/storepilot/storepilot/pipeline"
	"github.com/storepilot/storepilot/policy"
	"github.com/storepilot/storepilot/ratelimit"
	"github.com/storepilot/storepilot/router"
	"github.com/storepilot/storepilot/shopify"
)

// App wires the pipeline together from configuration. The store and
// metric collectors live for the process; the pipeline itself is
// rebuilt on each ApplyConfig so config reloads take effect without a
// restart.
type App struct {
	logger *slog.Logger

	embeddedServer *server.Server
	natsConn       *nats.Conn
	store          kvstore.Store
	collectors     *metrics.Collectors

	mu       sync.RWMutex
	cfg      *config.Config
	pipeline *pipeline.Pipeline
}

// NewApp creates and wires an application instance.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{logger: logger, cfg: cfg}

	store, err := app.startStore(ctx)
	if err != nil {
		return nil, err
	}
	app.store = store
	app.collectors = metrics.NewCollectors(prometheus.DefaultRegisterer)

	if err := app.ApplyConfig(cfg); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

// ApplyConfig validates cfg and swaps in a pipeline built from it. The
// previous pipeline stays active when cfg is rejected. The config
// watcher calls this on hot reload.
func (a *App) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	p, err := buildPipeline(cfg, a.store, a.collectors, a.logger)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.cfg = cfg
	a.pipeline = p
	a.mu.Unlock()
	return nil
}

func (a *App) currentPipeline() *pipeline.Pipeline {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pipeline
}

// buildPipeline constructs a pipeline from configuration over shared
// process-lifetime infrastructure.
func buildPipeline(cfg *config.Config, store kvstore.Store, collectors *metrics.Collectors, logger *slog.Logger) (*pipeline.Pipeline, error) {
	registry, err := model.NewRegistryFromConfig(&cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("build model registry: %w", err)
	}

	completer := llm.NewClient(registry, llm.WithLogger(logger))

	shopClient := shopify.NewRESTClient(
		cfg.Shop.Domain,
		cfg.Shop.ResolveAccessToken(),
		shopify.WithLogger(logger),
	)
	dispatcher := shopify.NewService(shopClient, completer, shopify.WithServiceLogger(logger))

	return pipeline.New(pipeline.Deps{
		Parser:     parser.New(completer, parser.WithLogger(logger)),
		Policy:     policy.New(append(cfg.PolicyOptions(), policy.WithLogger(logger))...),
		Limiter:    ratelimit.New(store, ratelimit.WithLimits(cfg.RateLimitTable()), ratelimit.WithLogger(logger)),
		Router:     router.New(dispatcher, router.WithRetryPolicy(cfg.RetryPolicy()), router.WithLogger(logger)),
		History:    history.New(store, history.WithLogger(logger)),
		Feedback:   feedback.New(completer, feedback.WithLogger(logger)),
		Cache:      cache.New(store, cache.WithPolicies(cfg.CacheTable()), cache.WithLogger(logger)),
		Tracker:    metrics.NewExecutionTracker(store, logger),
		Collectors: collectors,
		Logger:     logger,
	})
}

// startStore connects the shared key-value store. An external NATS URL
// is used when configured; otherwise an embedded server is started so
// the binary is self-contained.
func (a *App) startStore(ctx context.Context) (kvstore.Store, error) {
	if a.cfg.NATS.URL != "" {
		a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err == nil {
			a.natsConn = conn
			return a.natsStore(ctx, conn)
		}
		a.logger.Warn("NATS connection failed, starting embedded server", "error", err)
	}

	opts := &server.Options{
		Port:      -1, // random available port
		JetStream: true,
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start")
	}
	a.embeddedServer = ns

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded NATS: %w", err)
	}
	a.natsConn = conn

	return a.natsStore(ctx, conn)
}

func (a *App) natsStore(ctx context.Context, conn *nats.Conn) (kvstore.Store, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	store, err := kvstore.NewNATSStore(ctx, js, kvstore.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("initialize key-value store: %w", err)
	}
	return store, nil
}

// Process runs one instruction end to end: parse, policy, execute, and
// summarize. Confirmation-flagged commands are returned without
// execution unless confirmed.
func (a *App) Process(ctx context.Context, text string, tier int, tenantID string, confirmed bool) error {
	p := a.currentPipeline()

	outcome, err := p.ProcessCommand(ctx, text, tier, tenantID)
	if err != nil {
		return err
	}

	cmd := outcome.Command
	fmt.Printf("Parsed command: %s.%s\n", cmd.Type, cmd.Action)

	if outcome.Validation.RequiresConfirmation && !confirmed {
		fmt.Printf("Confirmation required: %s\n", outcome.Validation.Message)
		fmt.Println("Re-run with --confirm to execute.")
		return nil
	}

	return a.execute(ctx, p, cmd, tenantID)
}

// Repl reads instructions from r until EOF, processing each one.
// Confirmation-flagged commands prompt inline. Long-running, so config
// hot reloads apply between instructions.
func (a *App) Repl(ctx context.Context, r io.Reader, tier int, tenantID string) error {
	scanner := bufio.NewScanner(r)
	fmt.Println(`Type an instruction, or "exit" to quit.`)

	for ctx.Err() == nil {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if err := a.processInteractive(ctx, scanner, line, tier, tenantID); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (a *App) processInteractive(ctx context.Context, scanner *bufio.Scanner, text string, tier int, tenantID string) error {
	p := a.currentPipeline()

	outcome, err := p.ProcessCommand(ctx, text, tier, tenantID)
	if err != nil {
		return err
	}

	cmd := outcome.Command
	fmt.Printf("Parsed command: %s.%s\n", cmd.Type, cmd.Action)

	if outcome.Validation.RequiresConfirmation {
		fmt.Printf("%s Proceed? [y/N] ", outcome.Validation.Message)
		if !scanner.Scan() {
			return nil
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			fmt.Println("Skipped.")
			return nil
		}
	}

	return a.execute(ctx, p, cmd, tenantID)
}

func (a *App) execute(ctx context.Context, p *pipeline.Pipeline, cmd *command.Command, tenantID string) error {
	result, err := p.Execute(ctx, cmd, tenantID)
	if err != nil {
		return err
	}

	fmt.Printf("Executed in %d API call(s).\n", result.APICalls)
	a.printSummary(ctx, p, cmd, result)
	return nil
}

// printSummary asks the feedback generator for a merchant-facing
// summary. Best-effort: failures are logged, never surfaced.
func (a *App) printSummary(ctx context.Context, p *pipeline.Pipeline, cmd *command.Command, result *command.Result) {
	summary, err := p.SummarizeResult(ctx, cmd, result)
	if err != nil {
		a.logger.Debug("Result summary unavailable", "error", err)
		return
	}
	fmt.Println(summary.Message)
	for _, step := range summary.NextSteps {
		fmt.Printf("  - %s\n", step)
	}
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() {
	if a.natsConn != nil {
		a.natsConn.Drain()
		a.natsConn.Close()
	}
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}
