// Package config provides configuration management for vehicert services
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Service identification
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`

	// Upstreams
	KratosURL  string `mapstructure:"kratos_url"`
	BackendURL string `mapstructure:"backend_url"`
	RedisURL   string `mapstructure:"redis_url"`

	// LoginURL is the public login entry point the browser is sent to for
	// step-up and forbidden redirects.
	LoginURL string `mapstructure:"login_url"`

	// Profile cache
	ProfileCacheEnabled bool          `mapstructure:"profile_cache_enabled"`
	ProfileCacheTTL     time.Duration `mapstructure:"profile_cache_ttl"`

	// Security settings
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`
	EnableCSRF         bool   `mapstructure:"enable_csrf"`
	TrustedDomain      string `mapstructure:"trusted_domain"`

	// Rate limiting
	EnableRateLimit   bool `mapstructure:"enable_rate_limit"`
	RateLimitRequests int  `mapstructure:"rate_limit_requests"`
	RateLimitWindow   int  `mapstructure:"rate_limit_window"`

	// Tracing
	EnableTracing bool   `mapstructure:"enable_tracing"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
}

// Load reads configuration from file and environment variables
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/vehicert")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix("VEHICERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Also support non-prefixed env vars for common settings
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ServiceName = serviceName

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8010)

	// Upstream defaults
	v.SetDefault("kratos_url", "http://localhost:4433")
	v.SetDefault("backend_url", "http://localhost:8080")
	v.SetDefault("redis_url", "redis://localhost:6379")
	v.SetDefault("login_url", "http://localhost:3000/login")

	// Profile cache defaults
	v.SetDefault("profile_cache_enabled", true)
	v.SetDefault("profile_cache_ttl", "30s")

	// Rate limiting defaults
	v.SetDefault("enable_rate_limit", true)
	v.SetDefault("rate_limit_requests", 100)
	v.SetDefault("rate_limit_window", 60)

	// CORS defaults
	v.SetDefault("cors_allowed_origins", "*")

	// CSRF defaults
	v.SetDefault("enable_csrf", true)
	v.SetDefault("trusted_domain", "")

	// Tracing defaults
	v.SetDefault("enable_tracing", false)
	v.SetDefault("otlp_endpoint", "localhost:4317")
}

func bindEnvVars(v *viper.Viper) {
	// Common environment variable mappings
	envMappings := map[string]string{
		"environment": "APP_ENV",
		"log_level":   "LOG_LEVEL",
		"port":        "PORT",
		"kratos_url":  "KRATOS_URL",
		"backend_url": "BACKEND_URL",
		"redis_url":   "REDIS_URL",
		"login_url":   "LOGIN_URL",
	}

	for key, env := range envMappings {
		v.BindEnv(key, env)
	}
}

func validate(cfg *Config) error {
	if cfg.KratosURL == "" {
		return fmt.Errorf("kratos_url is required")
	}
	if cfg.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// GetCORSOrigins returns CORS allowed origins as a slice
func (c *Config) GetCORSOrigins() []string {
	if c.CORSAllowedOrigins == "*" {
		return []string{"*"}
	}
	return strings.Split(c.CORSAllowedOrigins, ",")
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
