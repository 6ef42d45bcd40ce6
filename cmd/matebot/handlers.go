package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/channels/telegram"
	"github.com/hopfenspace/matebot-telegram/internal/commands"
	"github.com/hopfenspace/matebot-telegram/internal/config"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/observability"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

// runServe loads the configuration, connects to the core service and runs
// the Telegram adapter until SIGINT or SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateRemote(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: level, Format: cfg.Logging.Format})
	slog.SetDefault(logger)

	logger.Info("starting matebot",
		"version", version,
		"commit", commit,
		"config", configPath,
		"mode", cfg.Telegram.Mode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	identities := ledger.NewIdentities()
	client, err := ledger.NewClient(ledger.ClientConfig{
		BaseURL:     cfg.Ledger.URL,
		Application: cfg.Ledger.Application,
		Password:    cfg.Ledger.Password,
		UserAgent:   cfg.Ledger.UserAgent,
		Timeout:     cfg.Ledger.Timeout,
		Retry:       cfg.Ledger.Retry,
		Identities:  identities,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("failed to log in to the core service: %w", err)
	}

	registry, router, err := buildDispatch(ctx, cfg, client, logger, metrics)
	if err != nil {
		return err
	}

	adapter, err := telegram.NewAdapter(telegram.Config{
		Token:         cfg.Telegram.Token,
		Mode:          telegram.Mode(cfg.Telegram.Mode),
		WebhookURL:    cfg.Telegram.WebhookURL,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		ListenAddr:    cfg.Telegram.ListenAddr,
		RateLimit:     cfg.Telegram.RateLimit,
		RateBurst:     cfg.Telegram.RateBurst,
		Prefixes:      cfg.Commands.Prefixes,
		Logger:        logger,
		Metrics:       metrics,
	}, registry, router, identities)
	if err != nil {
		return fmt.Errorf("failed to create telegram adapter: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "listen", cfg.Metrics.Listen)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := adapter.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start telegram adapter: %w", err)
	}

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Warn("telegram adapter did not stop cleanly", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server did not stop cleanly", "error", err)
		}
	}
	return nil
}

// buildDispatch registers the built-in commands, the consumable commands
// when enabled, and their button handlers.
func buildDispatch(ctx context.Context, cfg *config.Config, backend ledger.Ledger, logger *slog.Logger, metrics *observability.Metrics) (*commands.Registry, *callbacks.Router, error) {
	amounts, err := parsing.NewAmountParser(cfg.Currency.Digits, cfg.Currency.MaxAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid currency settings: %w", err)
	}

	registry := commands.NewRegistry(logger, metrics)
	router := callbacks.NewRouter(logger, metrics)
	deps := commands.Deps{
		Ledger: backend,
		Currency: ledger.Currency{
			Digits: cfg.Currency.Digits,
			Factor: cfg.Currency.Factor,
			Symbol: cfg.Currency.Symbol,
		},
		Amounts:       amounts,
		AllowExternal: cfg.Commands.AllowExternal,
		Logger:        logger,
	}
	commands.RegisterBuiltins(registry, router, deps)

	if cfg.Commands.ConsumableCommands {
		names, err := commands.RegisterConsumables(ctx, registry, deps)
		if err != nil {
			// The bot stays usable through /consume.
			logger.Warn("failed to register consumable commands", "error", err)
		} else {
			logger.Info("registered consumable commands", "commands", names)
		}
	}
	return registry, router, nil
}

// loadOfflineConfig reads configPath when it exists and falls back to the
// defaults otherwise.
func loadOfflineConfig(configPath string) (*config.Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// openBackend returns the demo ledger when offline, or a logged-in client
// for the configured core service.
func openBackend(ctx context.Context, cfg *config.Config, offline bool, logger *slog.Logger) (ledger.Ledger, error) {
	if offline {
		mem := ledger.NewMemory(1, nil)
		mem.SeedDemo()
		return mem, nil
	}
	if err := cfg.ValidateRemote(); err != nil {
		return nil, fmt.Errorf("invalid config (use --offline to skip the core service): %w", err)
	}
	client, err := ledger.NewClient(ledger.ClientConfig{
		BaseURL:     cfg.Ledger.URL,
		Application: cfg.Ledger.Application,
		Password:    cfg.Ledger.Password,
		UserAgent:   cfg.Ledger.UserAgent,
		Timeout:     cfg.Ledger.Timeout,
		Retry:       cfg.Ledger.Retry,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("failed to log in to the core service: %w", err)
	}
	return client, nil
}

// setupRegistry builds the command registry for the commands and parse
// subcommands.
func setupRegistry(ctx context.Context, configPath string, offline bool) (*config.Config, *commands.Registry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadOfflineConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := openBackend(ctx, cfg, offline, logger)
	if err != nil {
		return nil, nil, err
	}
	registry, _, err := buildDispatch(ctx, cfg, backend, logger, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, registry, nil
}

// runCommands prints every registered command, grouped by category, with
// its usages.
func runCommands(ctx context.Context, out io.Writer, configPath string, offline bool) error {
	_, registry, err := setupRegistry(ctx, configPath, offline)
	if err != nil {
		return err
	}

	byCategory := registry.ListByCategory()
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		name := category
		if name == "" {
			name = "general"
		}
		fmt.Fprintf(out, "%s:\n", name)
		for _, cmd := range byCategory[category] {
			line := "  /" + cmd.Name
			if len(cmd.Aliases) > 0 {
				line += " (" + strings.Join(cmd.Aliases, ", ") + ")"
			}
			if cmd.Description != "" {
				line += " - " + cmd.Description
			}
			fmt.Fprintln(out, line)
			for _, usage := range cmd.UsageStrings() {
				fmt.Fprintf(out, "      %s\n", usage)
			}
		}
	}
	return nil
}

// runParse parses line with the grammar of the command it names and prints
// the bound arguments, or the reply a user would get.
func runParse(ctx context.Context, out io.Writer, configPath string, offline bool, line string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, registry, err := setupRegistry(ctx, configPath, offline)
	if err != nil {
		return err
	}

	parsed := commands.NewParser("", cfg.Commands.Prefixes...).ParseCommand(line, nil)
	if parsed == nil {
		return fmt.Errorf("%q is not a command", line)
	}
	cmd, ok := registry.Get(parsed.Name)
	if !ok {
		fmt.Fprintln(out, registry.Suggest(ctx, parsed.Name))
		return nil
	}

	ns, err := cmd.Grammar.Parse(ctx, parsed.Args, parsed.Entities)
	if err != nil {
		var failure *parsing.ParseFailure
		if !errors.As(err, &failure) {
			return err
		}
		fmt.Fprintf(out, "/%s: %s\n", cmd.Name, failure.Message())
		return nil
	}

	names := make([]string, 0, len(ns))
	for name := range ns {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(out, "/%s\n", cmd.Name)
	for _, name := range names {
		value, err := json.Marshal(ns[name])
		if err != nil {
			value = []byte(fmt.Sprintf("%v", ns[name]))
		}
		fmt.Fprintf(out, "  %s = %s\n", name, value)
	}
	return nil
}
