// Package config reads the desktop app settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every CASHCOUNT_* setting.
type Config struct {
	Locale            string `env:"CASHCOUNT_LOCALE" envDefault:"ru-RU"`
	ClientSeed        string `env:"CASHCOUNT_CLIENT_SEED"`
	ClockThroughInput bool   `env:"CASHCOUNT_CLOCK_THROUGH_INPUT" envDefault:"false"`

	HTTPEnabled bool `env:"CASHCOUNT_HTTP_ENABLED" envDefault:"true"`
	HTTPPort    int  `env:"CASHCOUNT_HTTP_PORT" envDefault:"17890"`

	LogLevel  string `env:"CASHCOUNT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CASHCOUNT_LOG_FORMAT" envDefault:"console"`
	Dev       bool   `env:"CASHCOUNT_DEV" envDefault:"false"`
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load applies the optional dotenv file, then parses and validates the environment.
func Load(dotEnvPath string) (Config, error) {
	if dotEnvPath != "" {
		if err := LoadDotEnv(dotEnvPath); err != nil {
			return Config{}, err
		}
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Locale = strings.TrimSpace(cfg.Locale)
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the app cannot start with.
func (c Config) Validate() error {
	if c.Locale == "" {
		return errors.New("CASHCOUNT_LOCALE must not be empty")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("CASHCOUNT_HTTP_PORT %d out of range", c.HTTPPort)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("CASHCOUNT_LOG_FORMAT %q must be console or json", c.LogFormat)
	}
	return nil
}
