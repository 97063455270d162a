package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrInvalidConfig) match any validation failure.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// HasField reports whether any error concerns field.
func (e ValidationErrors) HasField(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig validates every section of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateExpander(&c.Expander)...)
	errs = append(errs, validatePlaceholders(&c.Placeholders)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIME(&c.IME)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateExpander(e *ExpanderConfig) ValidationErrors {
	var errs ValidationErrors

	if e.IdleTimeoutMs < 1 {
		errs = append(errs, *RangeError("expander.idle_timeout_ms", 1, "unbounded"))
	}
	if e.MaxBuffer < 1 || e.MaxBuffer > 1024 {
		errs = append(errs, *RangeError("expander.max_buffer", 1, 1024))
	}

	if len(e.Separators) == 0 {
		errs = append(errs, *RequiredFieldError("expander.separators"))
	}
	for _, s := range e.Separators {
		switch s {
		case "space", "enter", "tab":
		default:
			errs = append(errs, ValidationError{
				Field:   "expander.separators",
				Message: fmt.Sprintf("unknown separator: %s (valid: space, enter, tab)", s),
			})
		}
	}

	return errs
}

func validatePlaceholders(p *PlaceholderConfig) ValidationErrors {
	var errs ValidationErrors

	layouts := []struct {
		field, layout string
	}{
		{"placeholders.date_layout", p.DateLayout},
		{"placeholders.time_layout", p.TimeLayout},
		{"placeholders.datetime_layout", p.DateTimeLayout},
	}
	probe := time.Date(2019, 11, 23, 21, 7, 9, 0, time.UTC)
	for _, l := range layouts {
		if l.layout == "" {
			errs = append(errs, *RequiredFieldError(l.field))
			continue
		}
		// A layout without any reference component formats to itself.
		if probe.Format(l.layout) == l.layout {
			errs = append(errs, ValidationError{
				Field:   l.field,
				Message: fmt.Sprintf("layout %q contains no time fields", l.layout),
			})
		}
	}

	if p.ClipboardTimeoutMs < 1 || p.ClipboardTimeoutMs > 10000 {
		errs = append(errs, *RangeError("placeholders.clipboard_timeout_ms", 1, 10000))
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case "json", "sqlite":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: json, sqlite)", s.Type),
		})
	}

	if s.Path == "" {
		errs = append(errs, *RequiredFieldError("storage.path"))
	}
	if s.Type == "sqlite" && s.PollIntervalMs < 10 {
		errs = append(errs, ValidationError{
			Field:   "storage.poll_interval_ms",
			Message: "poll interval must be at least 10 ms",
		})
	}
	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateIME(i *IMEConfig) ValidationErrors {
	var errs ValidationErrors

	if i.BusName == "" {
		errs = append(errs, *RequiredFieldError("ime.bus_name"))
	} else if !strings.Contains(i.BusName, ".") {
		errs = append(errs, ValidationError{
			Field:   "ime.bus_name",
			Message: fmt.Sprintf("not a well-known D-Bus name: %s", i.BusName),
		})
	}
	if i.EngineName == "" {
		errs = append(errs, *RequiredFieldError("ime.engine_name"))
	}

	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
