// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for all databases (always absolute)
	BaseCurrency string // Reporting currency for aggregation (defaults to "EUR")
	LogLevel     string
	Port         int
	DevMode      bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRACKFOLIO_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".trackfolio")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory to absolute path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	port := 8080
	if portStr := getEnv("TRACKFOLIO_PORT", ""); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid TRACKFOLIO_PORT value %q: %w", portStr, err)
		}
		port = p
	}

	return &Config{
		DataDir:      absDataDir,
		BaseCurrency: getEnv("TRACKFOLIO_BASE_CURRENCY", "EUR"),
		LogLevel:     getEnv("TRACKFOLIO_LOG_LEVEL", "info"),
		Port:         port,
		DevMode:      getEnv("TRACKFOLIO_DEV_MODE", "") == "true",
	}, nil
}

// LedgerDBPath returns the path of the transaction ledger database
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// PortfolioDBPath returns the path of the derived portfolio state database
func (c *Config) PortfolioDBPath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// ClientDataDBPath returns the path of the external client cache database
func (c *Config) ClientDataDBPath() string {
	return filepath.Join(c.DataDir, "client_data.db")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
