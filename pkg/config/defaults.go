package config

import (
	"github.com/hurrycache/hurrycache/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. It is called after unmarshalling so that a partial config file
// (or none at all) still yields a usable Config.
//
// Default Strategy:
//   - Zero values (0, "", false) are replaced with defaults
//   - Explicit values from file/environment are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyCASDefaults(&cfg.CAS)
	applyMetadataDefaults(&cfg.Metadata)
	applyLocalCacheDefaults(&cfg.LocalCache)
	applyEngineDefaults(&cfg.Engine)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hurrycache"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Enabled && len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyCASDefaults(cfg *CASConfig) {
	if cfg.UploadConcurrency == 0 {
		cfg.UploadConcurrency = 16
	}
	if cfg.DownloadConcurrency == 0 {
		cfg.DownloadConcurrency = 16
	}
	if cfg.AllowedKeysCacheSize == 0 {
		cfg.AllowedKeysCacheSize = 10_000_000
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
}

func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
}

func applyLocalCacheDefaults(cfg *LocalCacheConfig) {
	if cfg.Enabled && cfg.Size == 0 {
		cfg.Size = 10 * bytesize.GiB
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.MaxConcurrentUnits == 0 {
		cfg.MaxConcurrentUnits = 8
	}
}

// GetDefaultConfig returns a Config with all default values applied,
// suitable for `hurrycache init` and as the fallback when no config file
// is present.
func GetDefaultConfig() *Config {
	cfg := &Config{
		CAS: CASConfig{
			BaseURL:     "https://cache.example.com/api/v1/cas",
			BearerToken: "changeme",
		},
		Metadata: MetadataConfig{
			BaseURL:     "https://cache.example.com/api/v1/cache/cargo",
			BearerToken: "changeme",
		},
		Engine: EngineConfig{
			TargetDir: "target",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
