package config

import "time"

// Default values, chosen to work for most callers without a config file.
const (
	defaultMaxRetries          = 5
	defaultResumableRetryLimit = 5
	defaultProbeTimeout        = 30 * time.Second
	defaultValidation          = "both"
	defaultLogLevel            = "info"
)

// DefaultConfig returns a Config populated with all default values. This is
// both the starting point for TOML decoding (so unset fields retain
// defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:          defaultMaxRetries,
		ResumableRetryLimit: defaultResumableRetryLimit,
		ProbeTimeout:        defaultProbeTimeout,
		DefaultValidation:   defaultValidation,
		LogLevel:            defaultLogLevel,
	}
}
