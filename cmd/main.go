package main

import (
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/brightpath/llmgate/internal/cache"
	"github.com/brightpath/llmgate/internal/config"
	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/http"
	"github.com/brightpath/llmgate/internal/http/middleware"
	"github.com/brightpath/llmgate/internal/observability"
	"github.com/brightpath/llmgate/internal/provider/anthropic"
	"github.com/brightpath/llmgate/internal/provider/echo"
	"github.com/brightpath/llmgate/internal/provider/openai"
	"github.com/brightpath/llmgate/internal/ratelimit"
	"github.com/brightpath/llmgate/internal/registry"
	"github.com/brightpath/llmgate/internal/retry"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
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

	// Model Registry
	if err := container.Provide(func(cfg *config.GatewayConfig) (*registry.Registry, error) {
		return registry.New(registry.Config{
			DefaultModelFast:      cfg.DefaultModelFast,
			DefaultModelReasoning: cfg.DefaultModelReasoning,
		})
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}
	if err := container.Provide(func(r *registry.Registry) domain.ModelRegistry {
		return r
	}); err != nil {
		log.Fatalf("Failed to provide model registry: %v", err)
	}

	// Register providers with registry (invoked for side effects)
	if err := container.Invoke(registerProviders); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	// Rate limiter
	if err := container.Provide(func(cfg *config.RedisConfig) ratelimit.Store {
		if cfg.Addr == "" {
			return ratelimit.NewMemoryStore()
		}
		return ratelimit.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}))
	}); err != nil {
		log.Fatalf("Failed to provide rate limit store: %v", err)
	}
	if err := container.Provide(func(store ratelimit.Store, cfg *config.GatewayConfig) (domain.RateLimiter, error) {
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		return ratelimit.NewDailyLimiter(store, ratelimit.Config{
			DailyLimit: cfg.DailyRequestLimit,
			Whitelist:  cfg.Whitelist,
			Location:   loc,
		}), nil
	}); err != nil {
		log.Fatalf("Failed to provide rate limiter: %v", err)
	}

	// Response cache
	if err := container.Provide(func(cacheCfg *config.CacheConfig, redisCfg *config.RedisConfig) domain.ResponseCache {
		if !cacheCfg.Enabled {
			return nil
		}
		var store domain.CacheStore
		if redisCfg.Addr == "" {
			store = cache.NewMemoryStore()
		} else {
			store = cache.NewRedisStore(redis.NewClient(&redis.Options{
				Addr:     redisCfg.Addr,
				Password: redisCfg.Password,
				DB:       redisCfg.DB,
			}))
		}
		return domain.NewResponseCacheService(store, cacheCfg.TTL)
	}); err != nil {
		log.Fatalf("Failed to provide response cache: %v", err)
	}

	// Retry policy
	if err := container.Provide(func(cfg *config.GatewayConfig) domain.Retrier {
		return retry.New(retry.Config{
			MaxAttempts: cfg.MaxRetryAttempts,
			BaseDelay:   cfg.BaseRetryDelay,
			MaxDelay:    cfg.MaxRetryDelay,
		})
	}); err != nil {
		log.Fatalf("Failed to provide retry policy: %v", err)
	}

	// Domain services
	if err := container.Provide(func() domain.CostCalculator {
		return domain.NewStandardCostCalculator()
	}); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}
	if err := container.Provide(domain.NewGateway); err != nil {
		log.Fatalf("Failed to provide gateway: %v", err)
	}
	if err := container.Provide(func(gateway *domain.Gateway, cfg *config.GatewayConfig) *domain.BatchScheduler {
		return domain.NewBatchScheduler(gateway, cfg.BatchDefaultConcurrency)
	}); err != nil {
		log.Fatalf("Failed to provide batch scheduler: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(func(cfg *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(cfg)
	}); err != nil {
		log.Fatalf("Failed to provide middleware: %v", err)
	}
	if err := container.Provide(http.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(http.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}

// registerProviders wires every configured provider adapter into the
// registry, each behind a circuit breaker. Providers without an API key
// are skipped; the echo provider is always available.
func registerProviders(reg *registry.Registry, cfg *config.Config) error {
	breakerCfg := retry.DefaultBreakerConfig()
	breakerCfg.Enabled = cfg.Gateway.CircuitBreakerEnabled

	if cfg.OpenAI.APIKey != "" {
		provider, err := openai.NewProvider(cfg.OpenAI)
		if err != nil {
			return fmt.Errorf("failed to build OpenAI provider: %w", err)
		}
		if err := reg.RegisterProvider(retry.WrapWithBreaker(provider, breakerCfg)); err != nil {
			return fmt.Errorf("failed to register OpenAI provider: %w", err)
		}
	}

	if cfg.Anthropic.APIKey != "" {
		provider, err := anthropic.NewProvider(cfg.Anthropic)
		if err != nil {
			return fmt.Errorf("failed to build Anthropic provider: %w", err)
		}
		if err := reg.RegisterProvider(retry.WrapWithBreaker(provider, breakerCfg)); err != nil {
			return fmt.Errorf("failed to register Anthropic provider: %w", err)
		}
	}

	if err := reg.RegisterProvider(echo.NewProvider()); err != nil {
		return fmt.Errorf("failed to register echo provider: %w", err)
	}

	return nil
}
