package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProviderBaseURL      string // Required: identity provider base URL
	ProviderClientID     string // Required: client identifier registered with the provider
	ProviderClientSecret string // Required: shared secret for request signing

	DatabaseFile   string        // Optional: path to SQLite credential store (default: ./gestor.db)
	StoreKeyPath   string        // Optional: path to the renewal-credential sealing key
	RedisAddr      string        // Optional: shared credential mirror, disabled when empty
	WatchInterval  time.Duration // Optional: external-change poll interval (default: 15s)
	AllowedOrigins []string      // Optional: CORS origins (default: *)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

// LoadConfig reads configuration from the environment, first merging a
// local .env file when one exists.
func LoadConfig() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Config{
		ProviderBaseURL:      os.Getenv("GESTOR_PROVIDER_URL"),
		ProviderClientID:     os.Getenv("GESTOR_CLIENT_ID"),
		ProviderClientSecret: os.Getenv("GESTOR_CLIENT_SECRET"),

		DatabaseFile:  getEnvOrDefault("GESTOR_DATABASE_FILE", "gestor.db"),
		StoreKeyPath:  os.Getenv("GESTOR_STORE_KEY_FILE"),
		RedisAddr:     os.Getenv("GESTOR_REDIS_ADDR"),
		WatchInterval: getEnvDurationOrDefault("GESTOR_WATCH_INTERVAL", 15*time.Second),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if origins := os.Getenv("GESTOR_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if cfg.ProviderBaseURL == "" {
		return cfg, fmt.Errorf("GESTOR_PROVIDER_URL is required")
	}
	if cfg.ProviderClientID == "" {
		return cfg, fmt.Errorf("GESTOR_CLIENT_ID is required")
	}
	if cfg.ProviderClientSecret == "" {
		return cfg, fmt.Errorf("GESTOR_CLIENT_SECRET is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
