package config

import (
	"fmt"
	"strings"

	"github.com/wolkabout/filelink-go/internal/ferrors"
)

// FieldError describes one failed field with a concrete suggestion,
// distinct from the single hard stop Validate returns.
type FieldError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("config validation error in '%s': %s", e.Field, e.Message)
}

// ValidateDetailed runs every soft check and collects all of them,
// instead of stopping at the first problem the way Validate does.
func (c *Config) ValidateDetailed() []FieldError {
	var errs []FieldError

	if c.Version != 1 {
		errs = append(errs, FieldError{
			Field: "version", Value: c.Version,
			Message:    fmt.Sprintf("unsupported version: %d", c.Version),
			Suggestion: "set version: 1",
		})
	}
	if c.General.DataRoot == "" {
		errs = append(errs, FieldError{
			Field:      "general.data_root",
			Message:    "required field missing",
			Suggestion: "set a directory for the repository database:\n  data_root: ~/.local/share/filelink",
		})
	}
	if c.General.StoreRoot == "" {
		errs = append(errs, FieldError{
			Field:      "general.store_root",
			Message:    "required field missing",
			Suggestion: "set a directory for materialized files:\n  store_root: ~/.local/share/filelink/store",
		})
	}
	if c.General.MaxFileSizeBytes == 0 {
		errs = append(errs, FieldError{
			Field:      "general.max_file_size_bytes",
			Message:    "unset (0 disables the upload size ceiling)",
			Suggestion: "set a ceiling, e.g. 104857600 for 100MB",
		})
	}
	if c.General.MaxChunkSizeBytes == 0 {
		errs = append(errs, FieldError{
			Field:      "general.max_chunk_size_bytes",
			Message:    "unset (the serve demo falls back to 64KB chunks)",
			Suggestion: "set a chunk size, e.g. 262144 for 256KB",
		})
	}
	if c.Network.TimeoutSeconds < 1 {
		errs = append(errs, FieldError{
			Field: "network.timeout_seconds", Value: c.Network.TimeoutSeconds,
			Message:    "must be at least 1 second",
			Suggestion: "recommended: 30-120 seconds",
		})
	}
	if c.Network.TimeoutSeconds > 3600 {
		errs = append(errs, FieldError{
			Field: "network.timeout_seconds", Value: c.Network.TimeoutSeconds,
			Message:    "very long timeout (>1 hour)",
			Suggestion: "consider reducing to 30-300 seconds",
		})
	}
	if c.Network.MaxRedirects < 0 {
		errs = append(errs, FieldError{
			Field: "network.max_redirects", Value: c.Network.MaxRedirects,
			Message: "must be >= 0", Suggestion: "recommended: 5-10 redirects",
		})
	}
	if c.Retry.MaxChunkRetries < 0 {
		errs = append(errs, FieldError{
			Field: "retry.max_chunk_retries", Value: c.Retry.MaxChunkRetries,
			Message: "must be >= 0", Suggestion: "recommended: 3 retries",
		})
	}
	if c.Retry.BackoffMinMS < 0 {
		errs = append(errs, FieldError{
			Field: "retry.backoff_min_ms", Value: c.Retry.BackoffMinMS,
			Message: "must be >= 0", Suggestion: "recommended: 100-1000 ms",
		})
	}
	if c.Retry.BackoffMaxMS < c.Retry.BackoffMinMS {
		errs = append(errs, FieldError{
			Field: "retry.backoff_max_ms", Value: c.Retry.BackoffMaxMS,
			Message:    "must be >= retry.backoff_min_ms",
			Suggestion: fmt.Sprintf("set backoff_max_ms to at least %d", c.Retry.BackoffMinMS),
		})
	}
	if c.Firmware.CurrentVersion == "" {
		errs = append(errs, FieldError{
			Field:      "firmware.current_version",
			Message:    "required field missing",
			Suggestion: "set the version string this build reports after boot",
		})
	}
	if c.Firmware.MarkerPath == "" {
		errs = append(errs, FieldError{
			Field:      "firmware.marker_path",
			Message:    "required field missing",
			Suggestion: "set a path for the pending-install marker, e.g. ~/.local/share/filelink/firmware.marker",
		})
	}

	lvl := strings.ToLower(c.Logging.Level)
	switch lvl {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field: "logging.level", Value: c.Logging.Level,
			Message: "invalid log level", Suggestion: "use one of: debug, info, warn, error",
		})
	}
	fmtVal := strings.ToLower(c.Logging.Format)
	switch fmtVal {
	case "", "human", "json":
	default:
		errs = append(errs, FieldError{
			Field: "logging.format", Value: c.Logging.Format,
			Message: "invalid log format", Suggestion: "use one of: human, json",
		})
	}

	return errs
}

// ValidateWithFriendlyErrors runs Validate, then ValidateDetailed, and
// folds every collected FieldError into one ferrors.UserFriendlyError
// a human can act on directly.
func (c *Config) ValidateWithFriendlyErrors() error {
	if err := c.Validate(); err != nil {
		return err
	}

	errs := c.ValidateDetailed()
	if len(errs) == 0 {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("Configuration validation failed:\n\n")
	for i, e := range errs {
		msg.WriteString(fmt.Sprintf("%d. %s\n", i+1, e.Error()))
		if e.Value != nil {
			msg.WriteString(fmt.Sprintf("   Current value: %v\n", e.Value))
		}
		if e.Suggestion != "" {
			for _, line := range strings.Split(e.Suggestion, "\n") {
				msg.WriteString(fmt.Sprintf("   -> %s\n", line))
			}
		}
		msg.WriteString("\n")
	}

	return ferrors.New("config validation failed", msg.String())
}
