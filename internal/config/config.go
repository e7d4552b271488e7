package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// MongoDB configuration
	MongoURI       string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"booksdb"`
	ConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`

	// Dataset file; the bundled booksdb dataset is used when empty
	DatasetPath string `env:"SEED_DATASET_PATH"`

	// Application account
	AccountUser     string `env:"SEED_ACCOUNT_USER"`
	AccountPassword string `env:"SEED_ACCOUNT_PASSWORD"`
	SkipAccount     bool   `env:"SEED_SKIP_ACCOUNT" envDefault:"false"`

	HistoryCollection string `env:"SEED_HISTORY_COLLECTION" envDefault:"seed_runs"`
	SkipHistory       bool   `env:"SEED_SKIP_HISTORY" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	UseMockDB bool `env:"USE_MOCK_DB" envDefault:"false"`
}

// LoadDotEnv loads a .env file into the environment if one exists
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if !config.UseMockDB && config.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required when USE_MOCK_DB is not set")
	}
	if config.Database == "" {
		return nil, fmt.Errorf("MONGO_DATABASE must not be empty")
	}
	if config.ConnectTimeout <= 0 {
		return nil, fmt.Errorf("MONGO_CONNECT_TIMEOUT must be positive, got %s", config.ConnectTimeout)
	}

	switch config.LogFormat {
	case "json", "console":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be json or console, got %q", config.LogFormat)
	}

	return config, nil
}
