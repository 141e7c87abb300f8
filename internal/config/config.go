package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/kiln/internal/provider/openai"
)

// Config represents the orchestrator configuration.
type Config struct {
	Server    ServerConfig
	CORS      CORSConfig
	OpenAI    openai.Config
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Manager   ManagerConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"30"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// RedisConfig contains the optional Redis response cache settings. When
// disabled, the in-memory cache is used.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED"   envDefault:"false"`
	Addr     string `env:"REDIS_ADDR"      envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"        envDefault:"0"`
	CacheTTL int    `env:"REDIS_CACHE_TTL" envDefault:"3600"` // seconds
}

// RateLimitConfig contains the default per-provider admission budget.
type RateLimitConfig struct {
	MaxRequests   int `env:"RATE_LIMIT_MAX_REQUESTS"   envDefault:"60"`
	WindowSeconds int `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
}

// RetryConfig contains the executor's backoff parameters.
type RetryConfig struct {
	MaxRetries  int     `env:"RETRY_MAX_RETRIES"   envDefault:"3"`
	BaseDelayMs int     `env:"RETRY_BASE_DELAY_MS" envDefault:"500"`
	MaxDelayMs  int     `env:"RETRY_MAX_DELAY_MS"  envDefault:"30000"`
	Multiplier  float64 `env:"RETRY_MULTIPLIER"    envDefault:"2.0"`
}

// ManagerConfig contains response retention bounds.
type ManagerConfig struct {
	MaxCachedResponses    int `env:"MANAGER_MAX_CACHED_RESPONSES"     envDefault:"100"`
	MaxResponseAgeSeconds int `env:"MANAGER_MAX_RESPONSE_AGE_SECONDS" envDefault:"3600"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out
	*ServerConfig
	*CORSConfig
	*openai.Config
	*RedisConfig
	*RateLimitConfig
	*RetryConfig
	*ManagerConfig
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
		&cfg.OpenAI,
		&cfg.Redis,
		&cfg.RateLimit,
		&cfg.Retry,
		&cfg.Manager,
	}
}
