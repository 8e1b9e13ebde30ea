package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddress   string
	ShutdownTimeout time.Duration

	DatabasePath string

	// Adaptive engine
	AdaptiveEnabled    bool
	AdaptiveConfigFile string // optional TOML overriding engine defaults

	// Completed sessions older than this are removed at startup.
	SessionRetention time.Duration

	// Event stream; no brokers means events are only logged.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads the environment (and .env if present) and exits on a missing
// or malformed required setting.
func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()
	cfg, err := FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// FromEnv builds the configuration from the current environment.
func FromEnv() (*Config, error) {
	addr, err := requireEnv("SERVER_ADDRESS")
	if err != nil {
		return nil, err
	}
	shutdown, err := requireDuration("SHUTDOWN_TIMEOUT")
	if err != nil {
		return nil, err
	}
	enabled, err := getBoolDefault("ADAPTIVE_ENABLED", true)
	if err != nil {
		return nil, err
	}
	days, err := getIntDefault("SESSION_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	if days < 1 {
		return nil, fmt.Errorf("SESSION_RETENTION_DAYS must be at least 1, got %d", days)
	}

	return &Config{
		ServerAddress:      addr,
		ShutdownTimeout:    shutdown,
		DatabasePath:       getenvDefault("DATABASE_PATH", "adaptive.db"),
		AdaptiveEnabled:    enabled,
		AdaptiveConfigFile: os.Getenv("ADAPTIVE_CONFIG_FILE"),
		SessionRetention:   time.Duration(days) * 24 * time.Hour,
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getenvDefault("KAFKA_TOPIC", "practice.adaptive"),
	}, nil
}

func requireEnv(k string) (string, error) {
	v := os.Getenv(k)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", k)
	}
	return v, nil
}

func requireDuration(k string) (time.Duration, error) {
	v, err := requireEnv(k)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration: %w", k, v, err)
	}
	return d, nil
}

func getenvDefault(k, fallback string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return fallback
}

func getBoolDefault(k string, fallback bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean: %w", k, v, err)
	}
	return b, nil
}

func getIntDefault(k string, fallback int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer: %w", k, v, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
