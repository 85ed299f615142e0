package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers sessionsync-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// go_duration: validates time.ParseDuration syntax with a positive value.
	if err := v.RegisterValidation("go_duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register go_duration validator: %w", err)
	}
	return nil
}

// validateDuration accepts a parseable, strictly positive duration string.
func validateDuration(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // omitempty semantics; defaults fill blanks
	}
	d, err := time.ParseDuration(raw)
	return err == nil && d > 0
}

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error with actionable messages when validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	return c.validateTimeoutOrdering()
}

// validateTimeoutOrdering rejects a high-priority timeout shorter than the
// base timeout, which would silently demote elevated contexts.
func (c *Config) validateTimeoutOrdering() error {
	base, err1 := time.ParseDuration(c.Timeouts.Base)
	high, err2 := time.ParseDuration(c.Timeouts.HighPriority)
	if err1 != nil || err2 != nil {
		return nil // already reported by the go_duration tag
	}
	if high < base {
		return fmt.Errorf("timeouts: high_priority (%s) must not be shorter than base (%s)", c.Timeouts.HighPriority, c.Timeouts.Base)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "go_duration":
		return fmt.Sprintf("%s must be a positive duration like \"30s\" or \"4h\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
