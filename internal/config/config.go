// Package config loads the client-side TOML configuration: upload/JSON API
// base URL overrides for emulators and tests, retry tuning, the default
// validation mode, and the resumable Probe timeout. It decodes once,
// straight into the typed Config, and rejects unknown keys from the
// decoder's list of undecoded keys; it keeps a flat (no per-drive
// sections) shape.
package config

import "time"

// Config is the fully-resolved client configuration.
type Config struct {
	// UploadBaseURL overrides transport.UploadBaseURL. Empty means use the
	// built-in default.
	UploadBaseURL string `toml:"upload_base_url"`

	// JSONAPIBaseURL overrides transport.JSONAPIBaseURL.
	JSONAPIBaseURL string `toml:"json_api_base_url"`

	// MaxRetries bounds the generic transport retry loop.
	MaxRetries int `toml:"max_retries"`

	// ResumableRetryLimit caps session-restart/backoff retries in the
	// resumable upload state machine. This field exists so an
	// emulator/test harness can shrink it rather than so production
	// callers loosen the documented contract of 5.
	ResumableRetryLimit int `toml:"resumable_retry_limit"`

	// ProbeTimeout bounds a single resumable-upload offset-probe request.
	ProbeTimeout time.Duration `toml:"probe_timeout"`

	// DefaultValidation is the validation mode used by CLI commands and any
	// caller that does not set UploadConfig.Validation/DownloadConfig.Validation
	// explicitly. One of "both", "md5", "crc32c", "none".
	DefaultValidation string `toml:"default_validation"`

	// LogLevel is "debug", "info", "warn", or "error".
	LogLevel string `toml:"log_level"`
}
