package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/kiln/internal/cache/memory"
	rediscache "github.com/davidbz/kiln/internal/cache/redis"
	"github.com/davidbz/kiln/internal/config"
	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/executor"
	"github.com/davidbz/kiln/internal/http"
	"github.com/davidbz/kiln/internal/http/middleware"
	"github.com/davidbz/kiln/internal/manager"
	"github.com/davidbz/kiln/internal/observability"
	"github.com/davidbz/kiln/internal/provider/echo"
	"github.com/davidbz/kiln/internal/provider/openai"
	"github.com/davidbz/kiln/internal/provider/registry"
	"github.com/davidbz/kiln/internal/ratelimit"
	"github.com/davidbz/kiln/internal/retry"
)

// ErrProviderNotConfigured indicates that a provider is not configured and should be skipped.
var ErrProviderNotConfigured = errors.New("provider not configured")

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server, mgr *manager.Manager, logger *zap.Logger) {
		go func() {
			if err := server.Start(); err != nil {
				log.Fatalf("Server failed to start: %v", err)
			}
		}()

		// Block until interrupted, then drain.
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop

		cancelled := mgr.CancelAll()
		logger.Info("shutting down", zap.Int("cancelled_requests", cancelled))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(func(logger *zap.Logger) domain.EventPublisher {
		return observability.NewEventBus(logger)
	}); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Provider Registry
	if err := container.Provide(func() domain.ProviderRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// OpenAI Provider
	if err := container.Provide(func(cfg *openai.Config) (*openai.Provider, error) {
		if cfg.APIKey == "" {
			return nil, ErrProviderNotConfigured
		}

		return openai.NewProvider(*cfg)
	}); err != nil {
		log.Fatalf("Failed to provide OpenAI provider: %v", err)
	}

	// Register providers with registry (invoked for side effects)
	if err := container.Invoke(func(reg domain.ProviderRegistry) error {
		return reg.Register(context.Background(), echo.NewProvider())
	}); err != nil {
		log.Fatalf("Failed to register echo provider: %v", err)
	}
	if err := container.Invoke(func(
		reg domain.ProviderRegistry,
		openaiProvider *openai.Provider,
	) error {
		if openaiProvider == nil {
			return nil
		}
		if err := reg.Register(context.Background(), openaiProvider); err != nil {
			return fmt.Errorf("failed to register OpenAI provider: %w", err)
		}
		return nil
	}); err != nil {
		// Ignore ErrProviderNotConfigured as it's expected for optional providers
		if !errors.Is(err, ErrProviderNotConfigured) {
			log.Fatalf("Failed to register providers: %v", err)
		}
	}

	// Response Cache
	if err := container.Provide(func(cfg *config.RedisConfig) domain.ResponseCache {
		if !cfg.Enabled {
			return memory.NewCache()
		}

		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return rediscache.NewCache(client, time.Duration(cfg.CacheTTL)*time.Second)
	}); err != nil {
		log.Fatalf("Failed to provide response cache: %v", err)
	}

	// Rate Limiting
	if err := container.Provide(func(cfg *config.RateLimitConfig) *ratelimit.Registry {
		return ratelimit.NewRegistryWithDefaults(
			cfg.MaxRequests,
			time.Duration(cfg.WindowSeconds)*time.Second,
		)
	}); err != nil {
		log.Fatalf("Failed to provide rate limiters: %v", err)
	}

	// Executor
	if err := container.Provide(func(
		cache domain.ResponseCache,
		limiters *ratelimit.Registry,
		cfg *config.RetryConfig,
	) *executor.Executor {
		return executor.New(cache, limiters, retry.Config{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  time.Duration(cfg.BaseDelayMs) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.MaxDelayMs) * time.Millisecond,
			Multiplier: cfg.Multiplier,
		})
	}); err != nil {
		log.Fatalf("Failed to provide executor: %v", err)
	}

	// Request Manager
	if err := container.Provide(func(cfg *config.ManagerConfig, events domain.EventPublisher) *manager.Manager {
		return manager.NewManager(manager.Config{
			MaxCachedResponses: cfg.MaxCachedResponses,
			MaxResponseAge:     time.Duration(cfg.MaxResponseAgeSeconds) * time.Second,
		}, events)
	}); err != nil {
		log.Fatalf("Failed to provide request manager: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(cfg *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(cfg)
	}); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
