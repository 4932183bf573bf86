package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/salescoach/advisor/internal/advisor"
	"github.com/salescoach/advisor/internal/cache"
	"github.com/salescoach/advisor/internal/config"
	"github.com/salescoach/advisor/internal/llm"
	"github.com/salescoach/advisor/internal/search"
	"github.com/salescoach/advisor/internal/security"
	"github.com/salescoach/advisor/internal/server"
	"github.com/salescoach/advisor/internal/storage"
	"github.com/salescoach/advisor/internal/storage/document"
	"github.com/salescoach/advisor/internal/storage/local"
	"github.com/salescoach/advisor/internal/storage/object"
	"github.com/salescoach/advisor/internal/telemetry"
	"github.com/salescoach/advisor/internal/usage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("sales-advisor", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	apiKey, err := llm.ResolveAPIKey(context.Background(), cfg.LLM.APIKey, cfg.LLM.SecretName, nil)
	if err != nil {
		log.Fatalf("Failed to resolve provider credentials: %v", err)
	}

	guard := security.NewGuard(security.Options{
		MaxPromptLen:  cfg.Security.MaxPromptLen,
		BlockSeverity: cfg.Security.BlockSeverity,
		Logger:        logger,
	})
	respCache := cache.New(cfg.Cache.Size, cfg.Cache.TTL, logger)
	meter := usage.NewMeter(usage.Options{
		TokenLimit: cfg.Quota.TokenLimit,
		Hard:       cfg.Quota.Hard,
		Logger:     logger,
	})

	providerOpts := []llm.OpenAIOption{llm.WithTimeout(cfg.LLM.Timeout)}
	if cfg.LLM.BaseURL != "" {
		providerOpts = append(providerOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	provider := llm.NewOpenAIProvider(apiKey, cfg.LLM.Model, providerOpts...)

	invoker := llm.NewInvoker(provider, guard, respCache, meter,
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
		llm.WithLogger(logger),
	)

	backend, err := openBackend(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}
	sessions := storage.Guard(backend)
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	svc, err := advisor.NewService(invoker, sessions, advisor.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to initialize advice services: %v", err)
	}

	// The web search port has no in-tree implementation; the enhancer
	// still serves optimize and assess without one.
	enhancer, err := search.NewEnhancer(invoker, search.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to initialize search enhancer: %v", err)
	}

	handlers := server.NewHandlers(svc, enhancer, sessions, meter)
	srv := server.New(cfg.Server.Port, cfg.Server.TenantHeader, logger, handlers)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("advisor started",
		slog.String("storage", cfg.Storage.Provider),
		slog.String("model", cfg.LLM.Model),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("advisor shutdown complete")
}

// openBackend selects the session storage adapter from configuration. The
// object provider ships with the in-process client only; deployments that
// need durable object storage swap in a real object.Client here.
func openBackend(cfg *config.Config, logger *slog.Logger) (storage.Gateway, error) {
	switch cfg.Storage.Provider {
	case "object":
		logger.Warn("object storage backend is using the in-process client; sessions will not survive a restart",
			slog.String("prefix", cfg.Storage.Object.Prefix),
		)
		return object.New(object.NewMemoryClient(), cfg.Storage.Object.Prefix), nil
	case "document":
		return document.New(cfg.Storage.Document.DSN)
	default:
		return local.New(cfg.Storage.Local.Dir)
	}
}
