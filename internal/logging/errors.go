package logging

import (
	"fmt"
)

// ConfigError is returned when the sink cannot be activated with the given
// options. The sink never starts after one.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Field, e.Reason)
}

func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConnectionError covers every transport level failure: dial, I/O, timeouts
// and pushes against a connection that is not up.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication with %s failed: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DataRejectionError is a store side refusal of a command on a healthy
// connection, e.g. OOM or WRONGTYPE replies.
type DataRejectionError struct {
	Endpoint string
	Err      error
}

func (e *DataRejectionError) Error() string {
	return fmt.Sprintf("store at %s rejected data: %v", e.Endpoint, e.Err)
}

func (e *DataRejectionError) Unwrap() error { return e.Err }

type EncodingError struct {
	Logger string
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode record from %q: %v", e.Logger, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
