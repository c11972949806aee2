package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ApiPort        string
	TerminalUser   string
	TerminalPass   string
	BusProvider    string
	NatsHost       string
	NatsPort       string
	StoreAccountID string
	StoreOpening   int64
	MetricsEnabled bool
}

// New loads and validates configuration from environment variables.
// The event bus is optional: with ACQUISIM_BUS_PROVIDER=none transaction
// events are simply dropped.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ApiPort:        getEnv("ACQUISIM_API_PORT", "8080"),
		TerminalUser:   os.Getenv("ACQUISIM_TERMINAL_USER"),
		TerminalPass:   os.Getenv("ACQUISIM_TERMINAL_PASSWORD"),
		BusProvider:    getEnv("ACQUISIM_BUS_PROVIDER", "none"),
		NatsHost:       os.Getenv("ACQUISIM_NATS_HOST"),
		NatsPort:       os.Getenv("ACQUISIM_NATS_PORT"),
		StoreAccountID: getEnv("ACQUISIM_STORE_ACCOUNT", "store"),
		StoreOpening:   getEnvInt64("ACQUISIM_STORE_OPENING_BALANCE", 0),
		MetricsEnabled: getEnv("ACQUISIM_METRICS_ENABLED", "true") == "true",
	}

	// Required: terminal credentials guard the system API
	if cfg.TerminalUser == "" || cfg.TerminalPass == "" {
		return nil, fmt.Errorf("missing required env: ACQUISIM_TERMINAL_USER/PASSWORD")
	}

	if cfg.BusProvider != "nats" && cfg.BusProvider != "none" {
		return nil, fmt.Errorf("invalid bus provider %q, must be 'nats' or 'none'", cfg.BusProvider)
	}
	if cfg.BusProvider == "nats" && (cfg.NatsHost == "" || cfg.NatsPort == "") {
		return nil, fmt.Errorf("missing required env for nats bus: ACQUISIM_NATS_HOST/PORT")
	}

	if cfg.StoreOpening < 0 {
		return nil, fmt.Errorf("ACQUISIM_STORE_OPENING_BALANCE must be >= 0")
	}

	return cfg, nil
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt64(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultVal
	}
	return intVal
}
