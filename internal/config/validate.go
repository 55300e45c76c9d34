package config

import "fmt"

var validValidationModes = map[string]bool{
	"both": true, "md5": true, "crc32c": true, "none": true,
}

// Validate checks configuration values, accumulating every error found
// rather than stopping at the first problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("config: max_retries must be >= 0, got %d", cfg.MaxRetries))
	}

	if cfg.ResumableRetryLimit < 0 {
		errs = append(errs, fmt.Errorf("config: resumable_retry_limit must be >= 0, got %d", cfg.ResumableRetryLimit))
	}

	if cfg.ProbeTimeout < 0 {
		errs = append(errs, fmt.Errorf("config: probe_timeout must be >= 0, got %s", cfg.ProbeTimeout))
	}

	if cfg.DefaultValidation != "" && !validValidationModes[cfg.DefaultValidation] {
		errs = append(errs, fmt.Errorf(
			"config: default_validation must be one of both/md5/crc32c/none, got %q", cfg.DefaultValidation))
	}

	return joinErrs(errs)
}
