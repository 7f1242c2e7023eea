package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ClientConfig configures the storefront side: where the cart API lives and
// where the local cart is kept. Variables are read with the CARTSYNC_ prefix,
// e.g. CARTSYNC_API_BASE_URL.
type ClientConfig struct {
	APIBaseURL     string        `envconfig:"API_BASE_URL" default:"http://localhost:8080/api/v1"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`

	// Storage selects the durable backend: memory, sqlite or redis.
	Storage       string `envconfig:"STORAGE" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"cartsync.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"cartsync:"`

	NotificationDelay time.Duration `envconfig:"NOTIFICATION_DELAY" default:"3s"`
	AllowStaleRemote  bool          `envconfig:"ALLOW_STALE_REMOTE" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"warn"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

var validStorages = map[string]bool{"memory": true, "sqlite": true, "redis": true}

// LoadClient reads .env (if present) and the CARTSYNC_ environment.
func LoadClient() (*ClientConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg ClientConfig
	if err := envconfig.Process("cartsync", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process client config: %w", err)
	}
	if !validStorages[cfg.Storage] {
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
	if cfg.NotificationDelay <= 0 {
		cfg.NotificationDelay = 3 * time.Second
	}
	return &cfg, nil
}
