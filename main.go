package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/SqlAssist/internal/assistant"
	"github.com/JonMunkholm/SqlAssist/internal/config"
	"github.com/JonMunkholm/SqlAssist/internal/database"
	"github.com/JonMunkholm/SqlAssist/internal/executor"
	"github.com/JonMunkholm/SqlAssist/internal/llm"
	"github.com/JonMunkholm/SqlAssist/internal/observability"
	"github.com/JonMunkholm/SqlAssist/internal/prompt"
	"github.com/JonMunkholm/SqlAssist/internal/schema"
	"github.com/JonMunkholm/SqlAssist/internal/web"
)

const schemaLoadTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load() // loads .env if present, silently ignores if not

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	if err := run(cfg, logger); err != nil {
		logger.Error("exit", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The app still starts without a provider; generate actions then report
	// a generation error.
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.Warn("LLM not configured", slog.Any("error", err))
	} else {
		logger.Info("LLM provider initialized", slog.String("provider", provider.Name()))
	}

	opener := database.Opener(cfg.Database)

	schemaCache := schema.NewCache(opener, schema.DialectFor(cfg.Database.DriverName()))
	loadCtx, cancel := context.WithTimeout(ctx, schemaLoadTimeout)
	if err := schemaCache.Refresh(loadCtx); err != nil {
		logger.Warn("failed to load schema", slog.Any("error", err))
	} else {
		snap := schemaCache.Snapshot()
		logger.Info("loaded schema", slog.Int("tables", len(snap.Tables)))
		if missing := snap.Missing(schema.Expected...); len(missing) > 0 {
			logger.Warn("placement tables missing", slog.Any("tables", missing))
		}
	}
	cancel()

	catalog, err := prompt.LoadCatalog()
	if err != nil {
		return err
	}

	controller := &assistant.Controller{
		Generator: &llm.Generator{Provider: provider},
		Runner: &executor.Executor{
			Policy: cfg.Execution.Policy,
			Open:   opener,
			Logger: logger,
		},
		Prompts:           prompt.Builder{Config: cfg.Prompt},
		Policy:            cfg.Execution.Policy,
		ResetAfterExecute: cfg.Execution.ResetAfterExecute,
		Logger:            logger,
	}

	if cfg.Session.Secret == "" {
		logger.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	srv, err := web.New(web.Config{
		Controller:    controller,
		Catalog:       catalog,
		Schema:        schemaCache,
		SessionSecret: cfg.Session.Secret,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting",
		slog.String("driver", cfg.Database.DriverName()),
		slog.String("policy", string(cfg.Execution.Policy)),
	)
	return srv.Serve(ctx, cfg.HTTP.Addr)
}
