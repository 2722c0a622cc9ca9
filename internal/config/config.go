// Package config loads chainwatch settings from defaults, an optional
// chainwatch.yaml, CHAINWATCH_* environment variables and caller overrides,
// in increasing order of precedence.
package config

import (
	"time"

	"chainwatch/internal/observability"
)

// Config is the complete runtime configuration.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Regions RegionsConfig `mapstructure:"regions"`
	Server  ServerConfig  `mapstructure:"server"`
	Chat    ChatConfig    `mapstructure:"chat"`

	// Observability is read from the same file's observability section.
	Observability observability.Config `mapstructure:"-"`
}

// ServiceConfig locates the remote risk service.
type ServiceConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
	Breaker          BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the transport circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// RegionsConfig holds the built-in fallback catalog.
type RegionsConfig struct {
	Defaults []string `mapstructure:"defaults"`
}

// ServerConfig configures the dashboard gateway.
type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	EnableCORS      bool     `mapstructure:"enable_cors"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	SessionCapacity int      `mapstructure:"session_capacity"`
}

// ChatConfig configures the assistant chat.
type ChatConfig struct {
	FallbackMessage string `mapstructure:"fallback_message"`
}

// Defaults.
const (
	DefaultBaseURL          = "http://localhost:8000"
	DefaultTimeout          = 120 * time.Second
	DefaultMaxResponseBytes = int64(4 << 20)
	DefaultServerHost       = "127.0.0.1"
	DefaultServerPort       = 8080
	DefaultSessionCapacity  = 256
	DefaultFallbackMessage  = "Sorry, I encountered an error. Please try again."
)

// DefaultRegions mirrors the risk service's demo regions.
var DefaultRegions = []string{"Shanghai", "Rotterdam", "Los Angeles"}

func defaults() map[string]any {
	return map[string]any{
		"service.base_url":                  DefaultBaseURL,
		"service.timeout":                   DefaultTimeout,
		"service.max_response_bytes":        DefaultMaxResponseBytes,
		"service.breaker.failure_threshold": 5,
		"service.breaker.success_threshold": 2,
		"service.breaker.timeout":           30 * time.Second,
		"regions.defaults":                  DefaultRegions,
		"server.host":                       DefaultServerHost,
		"server.port":                       DefaultServerPort,
		"server.enable_cors":                true,
		"server.allowed_origins":            []string{},
		"server.session_capacity":           DefaultSessionCapacity,
		"chat.fallback_message":             DefaultFallbackMessage,
	}
}
