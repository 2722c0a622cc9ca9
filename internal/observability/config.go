package observability

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			PrometheusPort: 0,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "chainwatch",
			ServiceVersion: "1.0.0",
		},
	}
}

// DefaultConfigPath returns ~/.chainwatch/chainwatch.yaml.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".chainwatch", "chainwatch.yaml")
}

// LoadConfig loads the observability section from a chainwatch config file.
// A missing file yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		configPath = DefaultConfigPath()
	}
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig struct {
		Observability struct {
			Logging LoggingConfig `yaml:"logging"`
			Metrics struct {
				Enabled        *bool `yaml:"enabled"`
				PrometheusPort int   `yaml:"prometheus_port"`
			} `yaml:"metrics"`
			Tracing TracingConfig `yaml:"tracing"`
		} `yaml:"observability"`
	}

	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}
	file := fileConfig.Observability

	if file.Logging.Level != "" {
		config.Logging.Level = file.Logging.Level
	}
	if file.Logging.Format != "" {
		config.Logging.Format = file.Logging.Format
	}

	if file.Metrics.Enabled != nil {
		config.Metrics.Enabled = *file.Metrics.Enabled
	}
	if file.Metrics.PrometheusPort > 0 {
		config.Metrics.PrometheusPort = file.Metrics.PrometheusPort
	}

	// Tracing is opt-in: the file always decides Enabled.
	config.Tracing.Enabled = file.Tracing.Enabled
	if file.Tracing.Exporter != "" {
		config.Tracing.Exporter = file.Tracing.Exporter
	}
	if file.Tracing.OTLPEndpoint != "" {
		config.Tracing.OTLPEndpoint = file.Tracing.OTLPEndpoint
	}
	if file.Tracing.ZipkinEndpoint != "" {
		config.Tracing.ZipkinEndpoint = file.Tracing.ZipkinEndpoint
	}
	// A sample rate of exactly 0 cannot be expressed here; disable tracing instead.
	if file.Tracing.SampleRate > 0 && file.Tracing.SampleRate <= 1.0 {
		config.Tracing.SampleRate = file.Tracing.SampleRate
	}
	if file.Tracing.ServiceName != "" {
		config.Tracing.ServiceName = file.Tracing.ServiceName
	}
	if file.Tracing.ServiceVersion != "" {
		config.Tracing.ServiceVersion = file.Tracing.ServiceVersion
	}

	return config, nil
}
