package ingest

import (
	"context"
	"errors"
	"fmt"
)

// ErrInterrupted is returned when the watchdog stops a pipeline that ran
// past its maximum execution time.
var ErrInterrupted = errors.New("execution interrupted by watchdog")

// ProcessorError wraps a failure raised by one processor.
type ProcessorError struct {
	Pipeline string
	Type     string
	Tag      string
	Err      error
}

func (e *ProcessorError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("pipeline [%s] processor [%s] tag [%s]: %v", e.Pipeline, e.Type, e.Tag, e.Err)
	}
	return fmt.Sprintf("pipeline [%s] processor [%s]: %v", e.Pipeline, e.Type, e.Err)
}

func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// FailError is raised by the fail processor.
type FailError struct {
	Message string
}

func (e *FailError) Error() string {
	return e.Message
}

// ConfigurationError reports an invalid pipeline or processor definition.
type ConfigurationError struct {
	Pipeline      string
	ProcessorType string
	Tag           string
	Property      string
	Message       string
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Property != "" {
		msg = fmt.Sprintf("[%s] %s", e.Property, msg)
	}
	if e.ProcessorType != "" {
		msg = fmt.Sprintf("processor [%s]: %s", e.ProcessorType, msg)
	}
	if e.Pipeline != "" {
		msg = fmt.Sprintf("pipeline [%s]: %s", e.Pipeline, msg)
	}
	return msg
}

// IsInterrupted reports whether err came from the watchdog.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// IsFailError reports whether err was raised by a fail processor.
func IsFailError(err error) bool {
	var fe *FailError
	return errors.As(err, &fe)
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// fatal errors bypass ignore_failure and on_failure.
func fatal(err error) bool {
	return errors.Is(err, ErrInterrupted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
