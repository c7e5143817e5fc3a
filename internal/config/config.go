package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/brightpath/llmgate/internal/provider/anthropic"
	"github.com/brightpath/llmgate/internal/provider/openai"
)

// Config represents the gateway configuration. All values are supplied
// at process start and are immutable for the process lifetime.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	Gateway   GatewayConfig
	Cache     CacheConfig
	Redis     RedisConfig
	OpenAI    openai.Config
	Anthropic anthropic.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"120"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,X-User-Id"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// GatewayConfig contains the gateway's recognized options: quota, retry
// schedule, model role aliases and batch defaults.
type GatewayConfig struct {
	DailyRequestLimit       int           `env:"DAILY_REQUEST_LIMIT"       envDefault:"50"`
	Whitelist               []string      `env:"REQUEST_WHITELIST"         envSeparator:","`
	MaxRetryAttempts        int           `env:"MAX_RETRY_ATTEMPTS"        envDefault:"3"`
	BaseRetryDelay          time.Duration `env:"BASE_RETRY_DELAY"          envDefault:"1s"`
	MaxRetryDelay           time.Duration `env:"MAX_RETRY_DELAY"           envDefault:"30s"`
	RateLimitTimezone       string        `env:"RATE_LIMIT_TIMEZONE"       envDefault:"UTC"`
	DefaultModelFast        string        `env:"DEFAULT_MODEL_FAST"        envDefault:"gpt-4o-mini"`
	DefaultModelReasoning   string        `env:"DEFAULT_MODEL_REASONING"   envDefault:"o4-mini"`
	BatchDefaultConcurrency int           `env:"BATCH_DEFAULT_CONCURRENCY" envDefault:"50"`
	CircuitBreakerEnabled   bool          `env:"CIRCUIT_BREAKER_ENABLED"   envDefault:"true"`
}

// Location resolves the configured rate-limit time zone.
func (g GatewayConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.RateLimitTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit timezone %q: %w", g.RateLimitTimezone, err)
	}
	return loc, nil
}

// CacheConfig controls the response cache. Identical non-streaming
// requests within the TTL are answered from the cache instead of a
// provider call.
type CacheConfig struct {
	Enabled bool          `env:"CACHE_ENABLED" envDefault:"true"`
	TTL     time.Duration `env:"CACHE_TTL"     envDefault:"1h"`
}

// RedisConfig selects the optional Redis-backed rate-limit store. When
// Addr is empty the in-memory store is used.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*GatewayConfig
	*CacheConfig
	*RedisConfig
	OpenAI    *openai.Config
	Anthropic *anthropic.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		dig.Out{},
		&cfg.Server,
		&cfg.CORS,
		&cfg.Gateway,
		&cfg.Cache,
		&cfg.Redis,
		&cfg.OpenAI,
		&cfg.Anthropic,
	}
}
