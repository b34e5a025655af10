package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes: "normalize",
// "review" and "db". Every problem is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "normalize":
		if c.Normalize.Workers < 1 || c.Normalize.Workers > 64 {
			errs = append(errs, "normalize.workers must be between 1 and 64")
		}
		if c.Normalize.Year < 0 {
			errs = append(errs, "normalize.year must be >= 0")
		}
	case "review":
		if c.Anthropic.Key != "" && c.Anthropic.Model == "" {
			errs = append(errs, "anthropic.model is required when anthropic.key is set")
		}
		if c.Anthropic.Key != "" && c.Anthropic.MaxTokens <= 0 {
			errs = append(errs, "anthropic.max_tokens must be > 0")
		}
		if c.Scorer.MinScore < 0 {
			errs = append(errs, "scorer.min_score must be >= 0")
		}
		if c.Scorer.Limit < 1 {
			errs = append(errs, "scorer.limit must be > 0")
		}
	case "db":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateStore(mode)...)
	errs = append(errs, c.validateRetry()...)

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore(mode string) []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if mode == "db" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 {
		errs = append(errs, "store.max_conns and store.min_conns must be >= 0")
	}
	if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
		errs = append(errs, "store.min_conns must be <= store.max_conns")
	}
	return errs
}

func (c *Config) validateRetry() []string {
	var errs []string
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelayMs < 0 || c.Retry.MaxDelayMs < 0 {
		errs = append(errs, "retry delays must be >= 0")
	}
	if c.Retry.MaxDelayMs > 0 && c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		errs = append(errs, "retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	return errs
}
