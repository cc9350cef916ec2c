package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource    string
	Port        string
	Env         string
	StoreDriver string
	LogLevel    slog.Level
	// BootstrapAdminToken seeds an administrator when the memory driver is used.
	BootstrapAdminToken string
}

func Load() (*Config, error) {
	driver := strings.ToLower(os.Getenv("STORE_DRIVER"))
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, driver)
	}

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" && driver == DriverPostgres {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	var level slog.Level
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", raw, err)
		}
	}

	return &Config{
		DBSource:            dbSource,
		Port:                port,
		Env:                 env,
		StoreDriver:         driver,
		LogLevel:            level,
		BootstrapAdminToken: os.Getenv("BOOTSTRAP_ADMIN_TOKEN"),
	}, nil
}

// NewLogger returns a JSON logger in production and a text logger elsewhere.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
