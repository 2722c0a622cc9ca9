package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"chainwatch/internal/observability"
)

// ValueSource records where a configuration value came from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "env"
	SourceOverride ValueSource = "override"
)

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	configFile string
	sources    map[string]ValueSource
	loadedAt   time.Time
}

// ConfigFile returns the file that was read, or "" when none was found.
func (m Metadata) ConfigFile() string {
	return m.configFile
}

// Source returns the origin for the given key, e.g. "service.base_url".
func (m Metadata) Source(key string) ValueSource {
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup   EnvLookup
	configPath  string
	searchPaths []string
	overrides   map[string]any
}

// WithConfigPath forces the loader to read a specific file, which must exist.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithSearchPaths replaces the directories searched for chainwatch.yaml.
func WithSearchPaths(paths ...string) Option {
	return func(o *loadOptions) { o.searchPaths = paths }
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithOverride sets a key with the highest precedence, typically from a CLI flag.
func WithOverride(key string, value any) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = map[string]any{}
		}
		o.overrides[key] = value
	}
}

// EnvName maps a key such as "service.base_url" to CHAINWATCH_SERVICE_BASE_URL.
func EnvName(key string) string {
	return "CHAINWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func defaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".chainwatch"))
	}
	return paths
}

// Load builds the configuration.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{
		envLookup:   DefaultEnvLookup,
		searchPaths: defaultSearchPaths(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	v := viper.New()
	defaultValues := defaults()
	keys := make([]string, 0, len(defaultValues))
	for key, value := range defaultValues {
		v.SetDefault(key, value)
		keys = append(keys, key)
	}
	sort.Strings(keys)

	v.SetConfigType("yaml")
	if options.configPath != "" {
		v.SetConfigFile(options.configPath)
	} else {
		v.SetConfigName("chainwatch")
		for _, path := range options.searchPaths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.configPath != "" || !errors.As(err, &notFound) {
			return Config{}, Metadata{}, fmt.Errorf("read config: %w", err)
		}
	}
	meta.configFile = v.ConfigFileUsed()

	for _, key := range keys {
		if v.InConfig(key) {
			meta.sources[key] = SourceFile
		}
		if value, ok := options.envLookup(EnvName(key)); ok && strings.TrimSpace(value) != "" {
			v.Set(key, envValue(key, value))
			meta.sources[key] = SourceEnv
		}
	}
	for key, value := range options.overrides {
		v.Set(key, value)
		meta.sources[key] = SourceOverride
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)

	cfg.Observability = observability.DefaultConfig()
	if meta.configFile != "" {
		observabilityConfig, err := observability.LoadConfig(meta.configFile)
		if err != nil {
			return Config{}, Metadata{}, err
		}
		cfg.Observability = observabilityConfig
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, Metadata{}, err
	}
	return cfg, meta, nil
}

// envValue splits list-valued keys on commas.
func envValue(key, value string) any {
	switch key {
	case "regions.defaults", "server.allowed_origins":
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	return strings.TrimSpace(value)
}

func normalize(cfg *Config) {
	cfg.Service.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Service.BaseURL), "/")
	cfg.Server.Host = strings.TrimSpace(cfg.Server.Host)

	regions := cfg.Regions.Defaults[:0:0]
	for _, region := range cfg.Regions.Defaults {
		if region = strings.TrimSpace(region); region != "" {
			regions = append(regions, region)
		}
	}
	if len(regions) == 0 {
		regions = append(regions, DefaultRegions...)
	}
	cfg.Regions.Defaults = regions
}

// Validate rejects settings the components cannot run with.
func (c Config) Validate() error {
	parsed, err := url.Parse(c.Service.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("service.base_url must be an http(s) URL, got %q", c.Service.BaseURL)
	}
	if c.Service.Timeout <= 0 {
		return fmt.Errorf("service.timeout must be positive, got %s", c.Service.Timeout)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.SessionCapacity <= 0 {
		return fmt.Errorf("server.session_capacity must be positive, got %d", c.Server.SessionCapacity)
	}
	return nil
}

// Address is the dashboard listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
