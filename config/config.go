package config

import (
	"flag"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service. Values come from the
// environment (after an optional .env file is loaded) and can be overridden
// with command line flags.
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"localhost:8080"`
	BaseURL       string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Durable store: memory, sqlite or postgres.
	StorageType string `env:"STORAGE_TYPE" envDefault:"memory"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"linkcut.db"`

	// Volatile cache: memory or redis.
	CacheType     string        `env:"CACHE_TYPE" envDefault:"memory"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`

	// Sliding-window rate limiter.
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1h"`
	// What to do when the limiter backend is unreachable: closed denies
	// requests, open admits them.
	RateLimitPolicy string `env:"RATE_LIMIT_POLICY" envDefault:"closed"`

	// Short code generation.
	CodeLength     int `env:"CODE_LENGTH" envDefault:"6"`
	CodeMaxRetries int `env:"CODE_MAX_RETRIES" envDefault:"5"`

	// Analytics recorder.
	ClickQueueSize    int           `env:"CLICK_QUEUE_SIZE" envDefault:"1024"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`

	// Applied to every external store call.
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`

	// When set, logs rotate through this file instead of going to stderr.
	LogFile string `env:"LOG_FILE"`
}

// GetConfig parses the environment and flags and returns the resulting config.
func GetConfig() *Config {
	// A missing .env file is fine, the environment is simply used as is.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic("cannot parse config from environment: " + err.Error())
	}

	flag.StringVar(&cfg.ServerAddress, "a", cfg.ServerAddress, "server listen address")
	flag.StringVar(&cfg.BaseURL, "b", cfg.BaseURL, "short URL base")
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "postgres DSN")
	flag.StringVar(&cfg.StorageType, "s", cfg.StorageType, "storage type: memory, sqlite or postgres")
	flag.Parse()

	return cfg
}
