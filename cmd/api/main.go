package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/macdonc2/llm-app-template/internal/app/migrate"
	httpx "github.com/macdonc2/llm-app-template/internal/http"
	"github.com/macdonc2/llm-app-template/internal/prompt"
	"github.com/macdonc2/llm-app-template/internal/provider"
	"github.com/macdonc2/llm-app-template/internal/repository"
	"github.com/macdonc2/llm-app-template/internal/repository/memory"
	"github.com/macdonc2/llm-app-template/internal/repository/postgres"
	"github.com/macdonc2/llm-app-template/internal/service/agentsvc"
	"github.com/macdonc2/llm-app-template/internal/service/auth"
	"github.com/macdonc2/llm-app-template/internal/service/providers"
	"github.com/macdonc2/llm-app-template/internal/service/rag"
	"github.com/macdonc2/llm-app-template/internal/service/summarize"
	"github.com/macdonc2/llm-app-template/internal/service/users"
	"github.com/macdonc2/llm-app-template/internal/ws"
	"github.com/macdonc2/llm-app-template/pkg/config"
	"github.com/macdonc2/llm-app-template/pkg/logger"
)

type userRepoFactory func(pool *pgxpool.Pool) repository.UserRepository

func userRepositories() *provider.Registry[userRepoFactory] {
	reg := provider.NewRegistry[userRepoFactory]("user repository")
	reg.Register("postgres", func(pool *pgxpool.Pool) repository.UserRepository { return postgres.New(pool) })
	reg.Register("memory", func(*pgxpool.Pool) repository.UserRepository { return memory.NewUsers() })
	return reg
}

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	newUserRepo, err := userRepositories().Lookup(cfg.UserRepository)
	if err != nil {
		log.Error("invalid user repository", "error", err)
		os.Exit(1)
	}
	userRepo := newUserRepo(pool)
	docs := postgres.NewDocumentStore(runner.DB())

	authSvc := auth.New(userRepo, log, cfg)
	if err := authSvc.Bootstrap(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		log.Error("bootstrap admin failed", "error", err)
		os.Exit(1)
	}
	userSvc := users.New(userRepo, cfg.APIKeyEncryptionKey, log)

	resolver := providers.New(cfg, userSvc, log)
	if err := resolver.Validate(); err != nil {
		log.Error("invalid provider configuration", "error", err)
		os.Exit(1)
	}
	prompts, err := prompt.New(cfg.PromptDir)
	if err != nil {
		log.Error("failed to load prompts", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub(log)
	defer hub.Stop()

	ragSvc := rag.New(docs, resolver, prompts, log)
	summarizeSvc := summarize.New(resolver, prompts, log)
	agentSvc := agentsvc.New(resolver, prompts, hub, agentsvc.Config{
		Model:    cfg.OpenAIChatModel,
		MaxTurns: cfg.AgentMaxTurns,
	}, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, httpx.RedisLimiterConfig{
			Addr:     addr,
			Password: cfg.RateLimitRedisPass,
			DB:       cfg.RateLimitRedisDB,
		}, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	proxies, err := httpx.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:    log,
		Auth:      authSvc,
		Users:     userSvc,
		RAG:       ragSvc,
		Summarize: summarizeSvc,
		Agent:     agentSvc,
		Events:    hub,
		Limiter:   limiter,
		DBHealth:  pool.Ping,

		TrustedProxies: proxies,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "env", cfg.Environment, "llm", cfg.LLMProvider, "embedding", cfg.EmbeddingProvider, "tools", resolver.ToolNames())
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
