// Package config has the configuration for the indicator harvester: process
// settings from the environment and the topic registry from topics.yaml.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when a configuration value fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Env               string
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes

	BaseURL          string        // GHO OData API root
	HTTPTimeout      time.Duration // Per request timeout
	FetchConcurrency int           // 1 means strictly sequential observation fetching

	OutputDir       string
	OutputFormat    string // csv or tsv
	OutputXLSX      bool   // Also write an xlsx workbook per topic
	DuplicatePolicy string // last, reject or mean
	TopicsFile      string

	Port          string
	Address       string
	ScheduleTimes string // gocron At() format, e.g. "06:00;18:00"
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Env:               getEnvWithDefault("ENV", "dev"),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default

		BaseURL:          strings.TrimRight(getEnvWithDefault("GHO_BASE_URL", "https://ghoapi.azureedge.net/api"), "/"),
		HTTPTimeout:      getDurationEnvWithDefault("HTTP_TIMEOUT", 60*time.Second),
		FetchConcurrency: getIntEnvWithDefault("FETCH_CONCURRENCY", 1),

		OutputDir:       getEnvWithDefault("OUTPUT_DIR", "output"),
		OutputFormat:    strings.ToLower(getEnvWithDefault("OUTPUT_FORMAT", "csv")),
		OutputXLSX:      getBoolEnvWithDefault("OUTPUT_XLSX", false),
		DuplicatePolicy: strings.ToLower(getEnvWithDefault("DUPLICATE_POLICY", "last")),
		TopicsFile:      getEnvWithDefault("TOPICS_FILE", "topics.yaml"),

		Port:          getEnvWithDefault("PORT", "8000"),
		Address:       getEnvWithDefault("ADDRESS", "127.0.0.1"),
		ScheduleTimes: getEnvWithDefault("SCHEDULE_TIMES", "06:00;18:00"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every configuration value; failures wrap ErrInvalidConfig
func Validate(cfg *Config) error {
	checks := []struct {
		name string
		err  error
	}{
		{"ENV", validateEnv(cfg.Env)},
		{"LOG_LEVEL", validateLogLevel(cfg.LogLevel)},
		{"LOG_RETENTION_WEEKS", validateLogRetentionWeeks(cfg.LogRetentionWeeks)},
		{"MAX_LOG_FILE_SIZE", validateMaxLogFileSize(cfg.MaxLogFileSize)},
		{"GHO_BASE_URL", validateBaseURL(cfg.BaseURL)},
		{"HTTP_TIMEOUT", validateTimeout(cfg.HTTPTimeout)},
		{"FETCH_CONCURRENCY", validateConcurrency(cfg.FetchConcurrency)},
		{"OUTPUT_DIR", validateNotEmpty(cfg.OutputDir)},
		{"OUTPUT_FORMAT", validateOneOf(cfg.OutputFormat, []string{"csv", "tsv"})},
		{"DUPLICATE_POLICY", validateOneOf(cfg.DuplicatePolicy, []string{"last", "reject", "mean"})},
		{"TOPICS_FILE", validateNotEmpty(cfg.TopicsFile)},
		{"PORT", validatePort(cfg.Port)},
		{"ADDRESS", validateAddress(cfg.Address)},
		{"SCHEDULE_TIMES", validateScheduleTimes(cfg.ScheduleTimes)},
	}

	for _, check := range checks {
		if check.err != nil {
			return fmt.Errorf("%w: invalid %s: %w", ErrInvalidConfig, check.name, check.err)
		}
	}
	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1024 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1024 and 65535, got %d", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	if ip := net.ParseIP(address); ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	return nil
}

// validateEnv validates the ENV environment variable
func validateEnv(env string) error {
	return validateOneOf(strings.ToLower(env), []string{"dev", "staging", "prod", "test"})
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	return validateOneOf(strings.ToLower(logLevel), []string{"debug", "info", "warn", "error"})
}

func validateOneOf(value string, allowed []string) error {
	if value == "" {
		return fmt.Errorf("value cannot be empty")
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %v, got: %s", allowed, value)
}

func validateNotEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value cannot be empty")
	}
	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("must be positive, got: %d", weeks)
	}

	if weeks > 52 { // 1 year maximum
		return fmt.Errorf("too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

func validateTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("must be positive, got: %s", d)
	}
	if d > 10*time.Minute {
		return fmt.Errorf("too large (max 10m), got: %s", d)
	}
	return nil
}

func validateConcurrency(n int) error {
	if n < 1 || n > 32 {
		return fmt.Errorf("must be between 1 and 32, got: %d", n)
	}
	return nil
}

// validateScheduleTimes accepts semicolon separated HH:MM values
func validateScheduleTimes(times string) error {
	if strings.TrimSpace(times) == "" {
		return fmt.Errorf("value cannot be empty")
	}
	for _, t := range strings.Split(times, ";") {
		if _, err := time.Parse("15:04", strings.TrimSpace(t)); err != nil {
			return fmt.Errorf("%q is not a HH:MM time", t)
		}
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getDurationEnvWithDefault accepts Go durations ("90s") or plain seconds ("90")
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"GHO_BASE_URL",
		"HTTP_TIMEOUT",
		"FETCH_CONCURRENCY",
		"OUTPUT_DIR",
		"OUTPUT_FORMAT",
		"OUTPUT_XLSX",
		"DUPLICATE_POLICY",
		"TOPICS_FILE",
		"PORT",
		"ADDRESS",
		"SCHEDULE_TIMES",
	}
}
