package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tutorgate/internal/adapter/audit"
	"tutorgate/internal/adapter/gateway"
	"tutorgate/internal/adapter/llm"
	"tutorgate/internal/domain"
	"tutorgate/internal/infra/config"
	"tutorgate/internal/infra/logger"
	"tutorgate/internal/infra/tracer"
	"tutorgate/internal/safety"
	"tutorgate/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`tutorgate - safety gateway for conversational tutoring

USAGE:
    tutorgate [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: TUTORGATE_* variables override config
    Secrets:     values prefixed "enc:" are decrypted with TUTORGATE_CONFIG_KEY`)
}

func configPath() string {
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--config" && i+1 < len(os.Args):
			return os.Args[i+1]
		case strings.HasPrefix(os.Args[i], "--config="):
			return strings.TrimPrefix(os.Args[i], "--config=")
		}
	}
	return "config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Audit store
	var recorder domain.AuditRecorder
	if cfg.Audit.Enabled {
		store, err := audit.NewSQLiteRecorder(cfg.Audit.DBPath)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	// 4. Model backends
	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	// 5. Safety pipeline
	policy := safety.NewPolicy(cfg.PlatformSafetyConfig())
	keyword := safety.NewKeywordFilter()
	classifier := safety.NewClassifier(registry, recorder, log)

	estimator, err := usecase.NewTokenEstimator()
	if err != nil {
		log.Warn("token estimator unavailable, usage fallback disabled", "error", err)
		estimator = nil
	}

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Providers:   registry,
		Policy:      policy,
		Keyword:     keyword,
		Classifier:  classifier,
		Logger:      log,
		Audit:       recorder,
		Usage:       estimator,
		CallTimeout: cfg.LLM.CallTimeout,
	})

	// 6. Gateway
	var auth gateway.Authenticator
	if cfg.Gateway.Auth.Enabled {
		entries := make([]struct {
			Name  string
			Token string
		}, len(cfg.Gateway.Auth.Tokens))
		for i, t := range cfg.Gateway.Auth.Tokens {
			entries[i].Name = t.Name
			entries[i].Token = t.Token
		}
		auth = gateway.NewStaticTokenAuth(entries)
	} else {
		log.Warn("gateway auth disabled")
	}

	handler := gateway.NewHandler(orch, registry.List, log)
	srv := gateway.NewServer(handler, auth, cfg.Gateway, log)

	log.Info("tutorgate starting",
		"addr", cfg.Gateway.Addr,
		"providers", registry.List(),
		"semantic_check", cfg.Safety.LLMSafety.Enabled,
	)

	return srv.Start(ctx)
}

// buildRegistry constructs every configured backend and registers it.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry()

	for _, pc := range cfg.LLM.Providers {
		var provider domain.ChatProvider
		var err error

		switch pc.Type {
		case "openai":
			provider = llm.NewOpenAIProvider(pc, log)
		case "anthropic":
			provider = llm.NewAnthropicProvider(pc, log)
		case "ollama":
			provider = llm.NewOllamaProvider(pc, log)
		case "openrouter":
			provider = llm.NewOpenRouterProvider(pc, log)
		case "bedrock":
			provider, err = llm.NewBedrockProvider(pc, log)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
			}
		default:
			return nil, fmt.Errorf("provider %q: unknown type %q", pc.Name, pc.Type)
		}

		if pc.Breaker.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, pc.Breaker, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
