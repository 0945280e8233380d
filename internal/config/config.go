// Package config provides configuration loading and validation for the API
// server. It uses koanf to merge environment variables with optional file
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Shared stores
	RedisAddr   string `koanf:"redis_addr"`
	DatabaseURL string `koanf:"database_url"`

	// Audit
	AuditSecret        string   `koanf:"audit_secret"`
	AuditAlertCritical bool     `koanf:"audit_alert_critical"`
	AuditAnonymizeIPs  bool     `koanf:"audit_anonymize_ips"`
	AuditExcludedPaths []string `koanf:"audit_excluded_paths"`
	AuditExcludedUsers []string `koanf:"audit_excluded_users"`

	// Bearer tokens
	JWTSecret string `koanf:"jwt_secret"`

	// Rate limiting
	RateLimitLegacyHeaders bool `koanf:"rate_limit_legacy_headers"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingOTLPEndpoint string  `koanf:"tracing_otlp_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingRedisAddr   = errors.New("REDIS_ADDR is required")
	ErrMissingAuditSecret = errors.New("AUDIT_SECRET is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultTracingSamplingRate = 0.1
)

// DefaultAuditExcludedPaths are never audited: they are probed constantly
// and carry no actor.
var DefaultAuditExcludedPaths = []string{"/health", "/ready", "/metrics"}

// envPrefix namespaces this service's environment variables.
const envPrefix = "BASTION_"

// Load reads configuration from environment variables and an optional YAML
// file; environment variables take precedence. Returns the loaded config and
// a slice of validation errors (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	cfg := &Config{
		Port:                DefaultPort,
		Env:                 DefaultEnv,
		AuditExcludedPaths:  DefaultAuditExcludedPaths,
		TracingSamplingRate: DefaultTracingSamplingRate,
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, []error{fmt.Errorf("failed to unmarshal config: %w", err)}
	}

	var errs []error
	applyEnv(cfg, &errs)

	if cfg.RedisAddr == "" {
		errs = append(errs, ErrMissingRedisAddr)
	}
	if cfg.AuditSecret == "" {
		errs = append(errs, ErrMissingAuditSecret)
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	return cfg, errs
}

// applyEnv overlays BASTION_* environment variables onto the config.
func applyEnv(cfg *Config, errs *[]error) {
	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, ErrInvalidPort)
		} else {
			cfg.Port = port
		}
	}
	setString(&cfg.Env, "ENV")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.AuditSecret, "AUDIT_SECRET")
	setBool(&cfg.AuditAlertCritical, "AUDIT_ALERT_CRITICAL")
	setBool(&cfg.AuditAnonymizeIPs, "AUDIT_ANONYMIZE_IPS")
	setStrings(&cfg.AuditExcludedPaths, "AUDIT_EXCLUDED_PATHS")
	setStrings(&cfg.AuditExcludedUsers, "AUDIT_EXCLUDED_USERS")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setBool(&cfg.RateLimitLegacyHeaders, "RATE_LIMIT_LEGACY_HEADERS")
	setBool(&cfg.TracingEnabled, "TRACING_ENABLED")
	setString(&cfg.TracingExporter, "TRACING_EXPORTER")
	setString(&cfg.TracingOTLPEndpoint, "TRACING_OTLP_ENDPOINT")
	setBool(&cfg.TracingInsecure, "TRACING_INSECURE")
	if v := os.Getenv(envPrefix + "TRACING_SAMPLING_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("TRACING_SAMPLING_RATE must be a number: %w", err))
		} else {
			cfg.TracingSamplingRate = rate
		}
	}
}

func setString(dst *string, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setStrings(dst *[]string, name string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*dst = parts
	}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
