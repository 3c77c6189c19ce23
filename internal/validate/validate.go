// Package validate provides configuration validation utilities for workrelay
// components.
//
// This package implements common validation patterns used across the relay's
// config structs to ensure consistency and reduce duplication. All functions
// leverage the go-playground/validator library for standardized validation
// behavior.
//
// VALIDATION UTILITIES:
//   - Field validation: Generic tag-based validation for single values
//   - Port validation: Standard port range checking (1-65535)
//   - String validation: Required field and non-empty string checking
//   - Timeout validation: Positive duration validation for timeouts
//   - Address validation: "host:port" listen address checking
//   - URL validation: Upstream endpoint URL checking
//
// These utilities replace manual validation code scattered across config
// packages with centralized, consistent validation using the validator
// library's built-in tags and error handling.
package validate

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// Global validator instance using built-in validations
	validate *validator.Validate
)

func init() {
	validate = validator.New()
	// Using built-in validators: url, min, max, required - no custom registration needed
}

// ValidateField validates a single value against a validator tag expression.
// Provides the generic building block for the specialized helpers below and
// for one-off field checks in config structs.
func ValidateField(value any, tag string) error {
	return validate.Var(value, tag)
}

// ValidateStruct validates a struct using its `validate` tags. Used by config
// types that declare constraints directly on their fields.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}

// ValidatePortRange validates that a port number is within the valid range (1-65535).
// Uses the validator library for consistent error handling and messaging.
//
// Rejects port 0 (OS-assigned) since the relay daemon needs a predictable
// address that CLI tools and collaborators can reach.
func ValidatePortRange(port int) error {
	return ValidateField(port, "required,min=1,max=65535")
}

// ValidateRequiredString validates that a string field is not empty.
// Uses the validator library for consistent error handling across config validation.
//
// Prevents runtime failures from missing essential configuration parameters
// like upstream URLs and listen addresses.
func ValidateRequiredString(value, fieldName string) error {
	if err := ValidateField(value, "required"); err != nil {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidatePositiveTimeout validates that a timeout duration is positive (> 0).
// Ensures timeout configurations don't cause infinite waits or immediate
// failures in pool shutdown, coordinator join, and HTTP client operations.
func ValidatePositiveTimeout(timeout time.Duration, name string) error {
	if timeout <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// ValidateURL validates that a string is a well-formed URL suitable for the
// upstream workspace API endpoint.
func ValidateURL(raw, fieldName string) error {
	if err := ValidateField(raw, "required,url"); err != nil {
		return fmt.Errorf("%s must be a valid URL, got %q", fieldName, raw)
	}
	return nil
}

// ParseListenAddress parses and validates a "host:port" address string for the
// relay daemon's HTTP listener. Provides format checking and port range
// verification for user-provided addresses from configuration and CLI flags.
func ParseListenAddress(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address format %q: expected host:port", address)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q in address %q", portStr, address)
	}

	if err := ValidatePortRange(port); err != nil {
		return "", 0, fmt.Errorf("port %d out of range in address %q", port, address)
	}

	if host == "" {
		host = "0.0.0.0"
	}

	return host, port, nil
}
