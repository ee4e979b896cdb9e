// Package config provides centralized configuration management for the
// gateway. Configuration is loaded from environment variables with sensible
// defaults. Required configuration that is missing will cause the
// application to fail fast with helpful error messages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// HTTP server configuration
	Port int
	DB   string

	// TLS configuration for the gateway's own listener (separate from any
	// VeNCrypt/TLS negotiated with the remote RFB server)
	TLSCertFile string
	TLSKeyFile  string

	// RFB client defaults applied to connections that don't override them
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	CompressionLevel  int
	QualityLevel      int

	// Session configuration
	SessionIdleTimeout     time.Duration
	SessionCleanupInterval time.Duration

	// JWT authentication configuration
	JWTSecret         string
	JWTAccessExpiry   time.Duration
	JWTRefreshExpiry  time.Duration
	AdminUsername     string
	AdminPassword     string
	AllowRegistration bool
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors holds multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Default values
const (
	DefaultPort                   = 8080
	DefaultDBPath                 = "rfbgo.db"
	DefaultConnectTimeout          = 10 * time.Second
	DefaultDisconnectTimeout       = 3 * time.Second
	DefaultCompressionLevel        = 6
	DefaultQualityLevel            = 8
	DefaultSessionIdleTimeout      = 2 * time.Hour
	DefaultSessionCleanupInterval  = 5 * time.Minute
	DefaultJWTAccessExpiry         = 15 * time.Minute
	DefaultJWTRefreshExpiry        = 24 * time.Hour
	DefaultAdminUsername           = "admin"
)

// Load reads configuration from environment variables and returns a Config.
// It applies defaults for optional values and validates the configuration.
// Returns an error if validation fails.
func Load() (*Config, error) {
	cfg := &Config{
		Port: DefaultPort,
		DB:   DefaultDBPath,

		ConnectTimeout:    DefaultConnectTimeout,
		DisconnectTimeout: DefaultDisconnectTimeout,
		CompressionLevel:  DefaultCompressionLevel,
		QualityLevel:      DefaultQualityLevel,

		SessionIdleTimeout:     DefaultSessionIdleTimeout,
		SessionCleanupInterval: DefaultSessionCleanupInterval,

		JWTAccessExpiry:  DefaultJWTAccessExpiry,
		JWTRefreshExpiry: DefaultJWTRefreshExpiry,
		AdminUsername:    DefaultAdminUsername,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}

	return cfg, nil
}

// loadFromEnv populates the config from environment variables.
func (c *Config) loadFromEnv() error {
	var parseErrors ValidationErrors

	if v := os.Getenv("RFBGO_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_PORT",
				Message: fmt.Sprintf("invalid port number: %q (must be an integer)", v),
			})
		} else {
			c.Port = port
		}
	}

	if v := os.Getenv("RFBGO_DB"); v != "" {
		c.DB = v
	}

	if v := os.Getenv("RFBGO_TLS_CERT_FILE"); v != "" {
		c.TLSCertFile = v
	}

	if v := os.Getenv("RFBGO_TLS_KEY_FILE"); v != "" {
		c.TLSKeyFile = v
	}

	if v := os.Getenv("RFBGO_CONNECT_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_CONNECT_TIMEOUT",
				Message: fmt.Sprintf("invalid timeout: %q (must be an integer representing seconds)", v),
			})
		} else if seconds <= 0 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_CONNECT_TIMEOUT",
				Message: fmt.Sprintf("timeout must be positive: %d", seconds),
			})
		} else {
			c.ConnectTimeout = time.Duration(seconds) * time.Second
		}
	}

	if v := os.Getenv("RFBGO_COMPRESSION_LEVEL"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil || level < 0 || level > 9 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_COMPRESSION_LEVEL",
				Message: fmt.Sprintf("invalid compression level: %q (must be 0-9)", v),
			})
		} else {
			c.CompressionLevel = level
		}
	}

	if v := os.Getenv("RFBGO_QUALITY_LEVEL"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil || level < 0 || level > 9 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_QUALITY_LEVEL",
				Message: fmt.Sprintf("invalid quality level: %q (must be 0-9)", v),
			})
		} else {
			c.QualityLevel = level
		}
	}

	if v := os.Getenv("RFBGO_SESSION_IDLE_TIMEOUT"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_SESSION_IDLE_TIMEOUT",
				Message: fmt.Sprintf("invalid timeout: %q (must be an integer representing minutes)", v),
			})
		} else if minutes <= 0 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_SESSION_IDLE_TIMEOUT",
				Message: fmt.Sprintf("timeout must be positive: %d", minutes),
			})
		} else {
			c.SessionIdleTimeout = time.Duration(minutes) * time.Minute
		}
	}

	if v := os.Getenv("RFBGO_SESSION_CLEANUP_INTERVAL"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_SESSION_CLEANUP_INTERVAL",
				Message: fmt.Sprintf("invalid interval: %q (must be an integer representing minutes)", v),
			})
		} else if minutes <= 0 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_SESSION_CLEANUP_INTERVAL",
				Message: fmt.Sprintf("interval must be positive: %d", minutes),
			})
		} else {
			c.SessionCleanupInterval = time.Duration(minutes) * time.Minute
		}
	}

	if v := os.Getenv("RFBGO_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}

	if v := os.Getenv("RFBGO_JWT_ACCESS_EXPIRY"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_JWT_ACCESS_EXPIRY",
				Message: fmt.Sprintf("invalid expiry: %q (must be an integer representing minutes)", v),
			})
		} else if minutes <= 0 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_JWT_ACCESS_EXPIRY",
				Message: fmt.Sprintf("expiry must be positive: %d", minutes),
			})
		} else {
			c.JWTAccessExpiry = time.Duration(minutes) * time.Minute
		}
	}

	if v := os.Getenv("RFBGO_JWT_REFRESH_EXPIRY"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_JWT_REFRESH_EXPIRY",
				Message: fmt.Sprintf("invalid expiry: %q (must be an integer representing hours)", v),
			})
		} else if hours <= 0 {
			parseErrors = append(parseErrors, ValidationError{
				Field:   "RFBGO_JWT_REFRESH_EXPIRY",
				Message: fmt.Sprintf("expiry must be positive: %d", hours),
			})
		} else {
			c.JWTRefreshExpiry = time.Duration(hours) * time.Hour
		}
	}

	if v := os.Getenv("RFBGO_ADMIN_USERNAME"); v != "" {
		c.AdminUsername = v
	}

	if v := os.Getenv("RFBGO_ADMIN_PASSWORD"); v != "" {
		c.AdminPassword = v
	}

	if v := os.Getenv("RFBGO_ALLOW_REGISTRATION"); v != "" {
		c.AllowRegistration = strings.EqualFold(v, "true") || v == "1"
	}

	if len(parseErrors) > 0 {
		return parseErrors
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "RFBGO_PORT",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port),
		})
	}

	if c.DB == "" {
		errs = append(errs, ValidationError{
			Field:   "RFBGO_DB",
			Message: "database path cannot be empty",
		})
	}

	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		errs = append(errs, ValidationError{
			Field:   "RFBGO_COMPRESSION_LEVEL",
			Message: fmt.Sprintf("compression level must be 0-9, got %d", c.CompressionLevel),
		})
	}

	if c.QualityLevel < 0 || c.QualityLevel > 9 {
		errs = append(errs, ValidationError{
			Field:   "RFBGO_QUALITY_LEVEL",
			Message: fmt.Sprintf("quality level must be 0-9, got %d", c.QualityLevel),
		})
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, ValidationError{
			Field:   "RFBGO_TLS_CERT_FILE",
			Message: "TLS cert and key must both be set, or both left empty",
		})
	}

	return errs
}

// MustLoad loads configuration and exits the process with status 1 if it
// fails.
// Use this for application startup where configuration errors are fatal.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: failed to load configuration\n\n%s\n", err)
		os.Exit(1)
	}
	return cfg
}

// LoadWithFlags loads configuration from environment variables,
// then applies command-line flag overrides.
func LoadWithFlags(port int, db string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if port != 0 && port != DefaultPort {
		cfg.Port = port
	}
	if db != "" && db != DefaultDBPath {
		cfg.DB = db
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}

	return cfg, nil
}
