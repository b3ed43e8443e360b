// Copyright 2025 Ahmed Salah ALghzaly
// SPDX-License-Identifier: Apache-2.0

// Package config loads the storefront client configuration from the
// environment, with a .env file as optional convenience during
// development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all settings of the offline-first storefront client.
type Config struct {
	// Remote API
	APIBaseURL    string
	SessionSecret string
	TokenExpiry   time.Duration

	// Local database
	DatabasePath string

	// Sync engine
	PushLimit   int
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration

	// Query cache staleness windows
	VolatileTTL time.Duration // products, favorites
	TaxonomyTTL time.Duration // categories, brands, models
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		APIBaseURL:    "http://localhost:8000",
		SessionSecret: "dev-secret-change-in-production",
		TokenExpiry:   24 * time.Hour,
		DatabasePath:  "lats.db",
		PushLimit:     200,
		MaxAttempts:   5,
		BackoffMin:    1 * time.Second,
		BackoffMax:    60 * time.Second,
		VolatileTTL:   2 * time.Minute,
		TaxonomyTTL:   5 * time.Minute,
	}
}

// Load reads configuration from the environment on top of the
// defaults. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if v := os.Getenv("LATS_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("LATS_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("LATS_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	var err error
	if cfg.PushLimit, err = intEnv("LATS_PUSH_LIMIT", cfg.PushLimit); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = intEnv("LATS_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.BackoffMin, err = durationEnv("LATS_BACKOFF_MIN", cfg.BackoffMin); err != nil {
		return nil, err
	}
	if cfg.BackoffMax, err = durationEnv("LATS_BACKOFF_MAX", cfg.BackoffMax); err != nil {
		return nil, err
	}
	if cfg.VolatileTTL, err = durationEnv("LATS_VOLATILE_TTL", cfg.VolatileTTL); err != nil {
		return nil, err
	}
	if cfg.TaxonomyTTL, err = durationEnv("LATS_TAXONOMY_TTL", cfg.TaxonomyTTL); err != nil {
		return nil, err
	}
	if cfg.TokenExpiry, err = durationEnv("LATS_TOKEN_EXPIRY", cfg.TokenExpiry); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
