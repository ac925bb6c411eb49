// Package config loads giftkeep configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything the process needs at startup.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// Listen is the HTTP listen address for the admin API.
	Listen string `yaml:"listen"`

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string `yaml:"jwt_secret"`

	// AdminCredentialHash is the bcrypt hash of the administrative
	// credential demanded as fresh proof by restore. Generate with
	// `giftkeep hash-credential`.
	AdminCredentialHash string `yaml:"admin_credential_hash"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath: "giftkeep.db",
		Listen: "127.0.0.1:8642",
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides: GIFTKEEP_DB, GIFTKEEP_LISTEN, GIFTKEEP_JWT_SECRET,
// GIFTKEEP_ADMIN_HASH.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("GIFTKEEP_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GIFTKEEP_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("GIFTKEEP_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("GIFTKEEP_ADMIN_HASH"); v != "" {
		cfg.AdminCredentialHash = v
	}

	return cfg, nil
}
