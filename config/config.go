// Package config loads server settings from the environment. A .env file
// in the working directory is read first when present; real environment
// variables always win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	// HTTP server
	Port        string
	CORSOrigins []string

	// Database
	DatabasePath string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// AMQP, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string // prefix of the published routing keys

	// Background reconciliation
	ReconcileEnabled     bool
	ReconcileInterval    time.Duration
	ReconcileConcurrency int

	// problems collects unparsable values so Validate can report them all.
	problems []string
}

// Load reads .env (if any) and then the process environment. A .env file
// that exists but cannot be read or parsed is reported by Validate.
func Load() *Config {
	err := godotenv.Load()
	c := FromEnv()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.problems = append(c.problems, fmt.Sprintf("invalid .env file: %v", err))
	}
	return c
}

// FromEnv reads the process environment only.
func FromEnv() *Config {
	c := &Config{
		Port:         getEnv("PORT", "8080"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "*")),
		DatabasePath: getEnv("DATABASE_PATH", "wallets.db"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "wallets"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "wallet"),
	}
	c.ReconcileEnabled = c.getBool("RECONCILE_ENABLED", true)
	c.ReconcileInterval = c.getDuration("RECONCILE_INTERVAL", time.Hour)
	c.ReconcileConcurrency = c.getInt("RECONCILE_CONCURRENCY", 4)
	return c
}

// Validate reports every problem at once instead of stopping at the first.
func (c *Config) Validate() error {
	errs := append([]string(nil), c.problems...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DatabasePath == "" {
		errs = append(errs, "database path cannot be empty")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ReconcileEnabled {
		if c.ReconcileInterval < time.Minute {
			errs = append(errs, fmt.Sprintf("invalid reconcile interval %v: must be at least 1 minute", c.ReconcileInterval))
		}
		if c.ReconcileConcurrency < 1 || c.ReconcileConcurrency > 64 {
			errs = append(errs, fmt.Sprintf("invalid reconcile concurrency %d: must be between 1 and 64", c.ReconcileConcurrency))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// PublishingEnabled reports whether balance changes go to a broker.
func (c *Config) PublishingEnabled() bool { return c.AMQPURL != "" }

// =============================================================================
// HELPERS
// =============================================================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: '%s' is not a number", key, value))
		return defaultValue
	}
	return i
}

func (c *Config) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: '%s' is not a boolean", key, value))
		return defaultValue
	}
	return b
}

func (c *Config) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: '%s' is not a duration", key, value))
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
