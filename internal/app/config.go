package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	redisstore "github.com/xenking/coupon-engine/internal/storage/redis"
)

// Storage drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (COUPON_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Redis     redisstore.Config
	Engine    EngineConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects the coupon store.
type StorageConfig struct {
	Driver string `default:"redis" usage:"Coupon storage driver: redis or memory"`
}

// EngineConfig tunes the discount engine.
type EngineConfig struct {
	ApplyAttempts int `default:"5" usage:"Attempts to apply a coupon when its usage count changes concurrently" flag:"apply-attempts"`
}

// AuthConfig controls API key authentication of coupon management routes.
type AuthConfig struct {
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (COUPON_AUTH_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Disabled     bool   `default:"false" usage:"Leave coupon management routes unauthenticated" flag:"auth-disabled"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max     int           `default:"100" usage:"Max requests per window"`
	Window  time.Duration `default:"1m"  usage:"Rate limit window duration"`
	Backend string        `default:"memory" usage:"Rate limit counters: memory (per process) or redis (shared)"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "COUPON",
		Files:     []string{"config.yaml", "/etc/coupon-engine/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverRedis, DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q: use %s or %s", c.Storage.Driver, DriverRedis, DriverMemory)
	}
	switch c.RateLimit.Backend {
	case DriverMemory:
	case DriverRedis:
		if c.Storage.Driver != DriverRedis {
			return errors.New("redis rate limiting requires the redis storage driver")
		}
	default:
		return errors.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	if !c.Auth.Disabled && c.Auth.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set COUPON_AUTH_API_KEY_PEPPER or disable auth")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like REDIS_URL and PORT to the
// application's COUPON_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Redis.URL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
