package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr        string        `env:"CVRD_ADDR" envDefault:"127.0.0.1:8790"`
	APIURL      string        `env:"CVRD_API_URL" envDefault:"http://localhost:8080"`
	RealtimeURL string        `env:"CVRD_REALTIME_URL" envDefault:"ws://localhost:8080/ws"`
	HTTPTimeout time.Duration `env:"CVRD_HTTP_TIMEOUT" envDefault:"15s"`
	CORSOrigin  string        `env:"CVRD_CORS_ORIGIN" envDefault:"*"`
	DeviceID    string        `env:"CVRD_DEVICE_ID"`

	// Preference storage: Redis wins over Postgres, SQLite is the on-device default.
	PrefsPath   string `env:"CVRD_PREFS_PATH" envDefault:"./data/prefs.db"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	StaleAfter     time.Duration `env:"CVRD_STALE_AFTER" envDefault:"5m"`
	FetchRetries   int           `env:"CVRD_FETCH_RETRIES" envDefault:"3"`
	ReconnectDelay time.Duration `env:"CVRD_RECONNECT_DELAY" envDefault:"5s"`

	Backup BackupConfig `envPrefix:"CVRD_BACKUP_"`
}

// BackupConfig is disabled while Endpoint is empty.
type BackupConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"cvrd-preferences"`
	Secure    bool   `env:"SECURE" envDefault:"false"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadFrom parses cfg from the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load reads the process environment, falling back to defaults when a variable is
// malformed.
func Load() Config {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		log.Printf("config: %v; using defaults", err)
		cfg, _ = LoadFrom(map[string]string{})
	}
	return cfg
}
