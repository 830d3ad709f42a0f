package definition

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports malformed, empty or inconsistent pipeline definitions.
// It is fatal at startup.
type ConfigError struct {
	// Source names the file or key the document came from.
	Source string

	// Line is the 1-based source line, when known.
	Line int

	// Pipeline names the affected pipeline, when known.
	Pipeline string

	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	} else if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Pipeline != "" {
		fmt.Fprintf(&b, "pipeline [%s]: ", e.Pipeline)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// withSource stamps source onto a ConfigError that does not carry one.
func withSource(err error, source string) error {
	var ce *ConfigError
	if errors.As(err, &ce) && ce.Source == "" {
		ce.Source = source
		return err
	}
	if err != nil && ce == nil {
		return &ConfigError{Source: source, Message: "load definitions", Err: err}
	}
	return err
}
