// Package config loads hurrycache's static configuration: CAS and
// metadata-service client settings, the optional local blob cache, logging,
// telemetry, and the metrics server. It follows the teacher's
// viper+mapstructure+validator layering, scoped down to this system's
// actual config surface.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (HURRYCACHE_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hurrycache/hurrycache/internal/bytesize"
	"github.com/hurrycache/hurrycache/internal/logger"
	"github.com/hurrycache/hurrycache/internal/telemetry"
)

// defaultRequestTimeout bounds a single CAS or metadata-service HTTP call
// when the config file leaves RequestTimeout unset.
const defaultRequestTimeout = 15 * time.Second

// Config is hurrycache's static configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and Pyroscope
	// continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics configures the Prometheus metrics HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// CAS configures the Content-Addressed Store client.
	CAS CASConfig `mapstructure:"cas" yaml:"cas"`

	// Metadata configures the cache-plane metadata-service client.
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// LocalCache configures the optional on-disk persistent blob cache.
	LocalCache LocalCacheConfig `mapstructure:"local_cache" yaml:"local_cache"`

	// Engine configures the cache engine's fan-out and workspace root.
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ToLoggerConfig converts LoggingConfig to internal/logger's Config.
func (c LoggingConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Level,
		Format: c.Format,
		Output: c.Output,
	}
}

// TelemetryConfig controls OpenTelemetry distributed tracing and
// Pyroscope continuous profiling.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName is reported to the trace backend.
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// ServiceVersion is reported alongside ServiceName.
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling configures Pyroscope continuous profiling.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ToTelemetryConfig converts TelemetryConfig to internal/telemetry's Config.
func (c TelemetryConfig) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Enabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		SampleRate:     c.SampleRate,
	}
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect.
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// ToProfilingConfig converts ProfilingConfig to internal/telemetry's
// ProfilingConfig.
func (c ProfilingConfig) ToProfilingConfig(serviceName, serviceVersion string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Endpoint:       c.Endpoint,
		ProfileTypes:   c.ProfileTypes,
	}
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CASConfig configures the Content-Addressed Store client (pkg/cas).
type CASConfig struct {
	// BaseURL is the metadata service's CAS plane base, e.g.
	// "https://cache.example.com/api/v1/cas".
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// BearerToken authenticates every CAS request.
	BearerToken string `mapstructure:"bearer_token" validate:"required" yaml:"bearer_token"`

	// UploadConcurrency bounds in-flight uploads.
	UploadConcurrency int `mapstructure:"upload_concurrency" validate:"omitempty,min=1" yaml:"upload_concurrency"`

	// DownloadConcurrency bounds in-flight downloads.
	DownloadConcurrency int `mapstructure:"download_concurrency" validate:"omitempty,min=1" yaml:"download_concurrency"`

	// AllowedKeysCacheSize bounds the client-side visibility LRU.
	AllowedKeysCacheSize int `mapstructure:"allowed_keys_cache_size" validate:"omitempty,min=1" yaml:"allowed_keys_cache_size"`

	// RequestTimeout bounds a single HTTP call.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// AcceptZstd enables requesting zstd-compressed bodies on reads.
	AcceptZstd bool `mapstructure:"accept_zstd" yaml:"accept_zstd"`
}

// MetadataConfig configures the cache-plane metadata-service client
// (pkg/metadataclient).
type MetadataConfig struct {
	// BaseURL is the cache plane's base, e.g.
	// "https://cache.example.com/api/v1/cache/cargo".
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// BearerToken authenticates every metadata-service request.
	BearerToken string `mapstructure:"bearer_token" validate:"required" yaml:"bearer_token"`

	// RequestTimeout bounds a single HTTP call.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LocalCacheConfig configures the optional on-disk persistent blob cache
// (pkg/cas/localcache).
type LocalCacheConfig struct {
	// Enabled controls whether restored/saved blobs are also checked
	// against and written through a local badger-backed cache.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the directory for the local cache database.
	Path string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path"`

	// Size is an advisory capacity budget for operator planning.
	// Supports human-readable formats: "1Gi", "500Mi", "10GB".
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size,omitempty"`
}

// EngineConfig configures the cache engine (pkg/cacheengine).
type EngineConfig struct {
	// MaxConcurrentUnits bounds fan-out across unit marshallings.
	MaxConcurrentUnits int `mapstructure:"max_concurrent_units" validate:"omitempty,min=1" yaml:"max_concurrent_units"`

	// TargetDir is the workspace's build output directory, the root all
	// Qualified Paths resolve against.
	TargetDir string `mapstructure:"target_dir" validate:"required" yaml:"target_dir"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (HURRYCACHE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if no
// config file exists at the requested (or default) location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  hurrycache init\n\n"+
				"Or specify a custom config file:\n"+
				"  hurrycache <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  hurrycache init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600 because bearer tokens live in this file.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variable and config file
// search settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HURRYCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if present. Returns
// (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the custom type decode hooks used when
// unmarshalling into Config.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// enabling config values like "1Gi", "500Mi", "100MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, enabling config
// values like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/hurrycache,
// falling back to ~/.config/hurrycache, or "." if the home directory can't
// be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hurrycache")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hurrycache")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
