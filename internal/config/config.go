// Package config loads tokenseal settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/navagetur/tokenseal/internal/logging"
	"github.com/navagetur/tokenseal/internal/security"
)

const (
	EnvDir       = "TOKENSEAL_DIR"
	EnvSaltFile  = "TOKENSEAL_SALT_FILE"
	EnvVaultFile = "TOKENSEAL_VAULT_FILE"
	EnvLogLevel  = "TOKENSEAL_LOG_LEVEL"
)

// Config holds the settings shared by every command.
type Config struct {
	Dir       string // storage directory holding the salt and vault files
	SaltFile  string
	VaultFile string
	LogLevel  slog.Level
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set take precedence over .env entries.
func Load() (*Config, error) {
	// Missing .env is the common case
	_ = godotenv.Load()

	level, err := logging.ParseLevel(getEnv(EnvLogLevel, "warn"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
	}

	cfg := &Config{
		Dir:       getEnv(EnvDir, "."),
		SaltFile:  getEnv(EnvSaltFile, "salt.txt"),
		VaultFile: getEnv(EnvVaultFile, ".tokenseal"),
		LogLevel:  level,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the salt and vault files stay inside Dir.
func (c *Config) Validate() error {
	salt, err := security.ValidateName(c.SaltFile)
	if err != nil {
		return fmt.Errorf("invalid salt file: %w", err)
	}
	vault, err := security.ValidateName(c.VaultFile)
	if err != nil {
		return fmt.Errorf("invalid vault file: %w", err)
	}
	if salt == vault {
		return fmt.Errorf("salt file and vault file must differ: %s", c.SaltFile)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
