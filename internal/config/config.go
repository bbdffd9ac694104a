// /internal/config/config.go
package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is populated from the environment, .env file first when present.
type Config struct {
	// RelationshipID keys the persisted snapshot.
	RelationshipID string `env:"RELATIONSHIP_ID" envDefault:"default"`

	// StorageBackend selects "file" or "redis".
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"file"`
	StoragePath    string `env:"STORAGE_PATH" envDefault:"relationship.json"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// New loads configuration from .env and the process environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.StorageBackend != "file" && cfg.StorageBackend != "redis" {
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	return cfg, nil
}
