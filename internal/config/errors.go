package config

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the configuration file does not exist.
var ErrNotFound = errors.New("config file not found")

// ParseError wraps a YAML syntax or type error.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config parse error: %v", e.Err)
	}
	return fmt.Sprintf("config parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a value outside the range the daemon accepts.
type ValidationError struct {
	Page   string // Empty for daemon-wide settings
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Page != "" {
		return fmt.Sprintf("config error: page '%s': %s", e.Page, e.Reason)
	}
	return fmt.Sprintf("config error: %s %s", e.Field, e.Reason)
}
