package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"kilometers/internal/ledger"
)

type Config struct {
	// HTTP Server
	Port        string
	BindAddress string

	// Storage
	DataBackend   string
	SQLiteDBPath  string
	DataDirectory string
	ArchiveDir    string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Archiver
	ArchiveConcurrency int
	ArchiveInterval    time.Duration

	// Invoice defaults used until settings are saved
	DefaultRatePerKm     decimal.Decimal
	DefaultCurrency      string
	DefaultVATPercentage decimal.Decimal

	// Rate limiting of mutating requests
	RateLimitPerMinute int
	RateLimitBurst     int

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8081"),
		BindAddress: getEnv("BIND_ADDRESS", "127.0.0.1"),

		DataBackend:   getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/kilometers.db"),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),
		ArchiveDir:    getEnv("ARCHIVE_DIR", "./data/archive"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "kilometers"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "archive_requests"),

		ArchiveConcurrency: getEnvInt("ARCHIVE_CONCURRENCY", 2),
		ArchiveInterval:    getEnvDuration("ARCHIVE_INTERVAL", time.Hour),

		DefaultRatePerKm:     getEnvDecimal("DEFAULT_RATE_PER_KM", decimal.RequireFromString("0.23")),
		DefaultCurrency:      getEnv("DEFAULT_CURRENCY", "€"),
		DefaultVATPercentage: getEnvDecimal("DEFAULT_VAT_PERCENTAGE", decimal.Zero),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindAddress, c.Port)
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// InvoiceDefaults returns the settings defaults for the storage backends.
func (c *Config) InvoiceDefaults() ledger.Defaults {
	return ledger.Defaults{
		RatePerKm:      c.DefaultRatePerKm,
		CurrencySymbol: c.DefaultCurrency,
		VATPercentage:  c.DefaultVATPercentage,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.BindAddress != "localhost" && net.ParseIP(c.BindAddress) == nil {
		errors = append(errors, fmt.Sprintf("invalid bind address '%s': must be an IP address or localhost", c.BindAddress))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.ArchiveDir == "" {
		errors = append(errors, "archive directory cannot be empty")
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
		// km-archiver only reads the SQLite store
		if c.DataBackend == "memory" {
			errors = append(errors, "AMQP requires the sqlite data backend: the archiver cannot read the memory backend")
		}
	}

	// Validate archiver configuration
	if c.ArchiveConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid archive concurrency %d: must be at least 1", c.ArchiveConcurrency))
	} else if c.ArchiveConcurrency > 16 {
		errors = append(errors, fmt.Sprintf("invalid archive concurrency %d: must be at most 16", c.ArchiveConcurrency))
	}

	if c.ArchiveInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid archive interval %v: must be at least 1 minute", c.ArchiveInterval))
	} else if c.ArchiveInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid archive interval %v: must be at most 24 hours", c.ArchiveInterval))
	}

	// Validate invoice defaults
	if c.DefaultRatePerKm.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid default rate per km %s: cannot be negative", c.DefaultRatePerKm))
	}
	if c.DefaultVATPercentage.IsNegative() || c.DefaultVATPercentage.GreaterThan(decimal.NewFromInt(100)) {
		errors = append(errors, fmt.Sprintf("invalid default VAT percentage %s: must be between 0 and 100", c.DefaultVATPercentage))
	}
	if n := utf8.RuneCountInString(c.DefaultCurrency); n < 1 || n > 3 {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be 1 to 3 characters", c.DefaultCurrency))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvDecimal accepts a dot or comma decimal separator.
func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.Replace(strings.TrimSpace(value), ",", ".", 1)); err == nil {
			return d
		}
	}
	return defaultValue
}
