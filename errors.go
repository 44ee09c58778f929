package dynamodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godoes/dynamodel/dialect"
)

var (
	ErrConfiguration = errors.New("dynamodel: configuration error")
	ErrUnsupported   = errors.New("dynamodel: unsupported feature")
	ErrProvider      = errors.New("dynamodel: provider error")
	ErrSchema        = errors.New("dynamodel: schema error")
)

// ConfigurationError reports invalid caller input, detected before any command is issued.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dynamodel: %s: %s", e.Op, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configError(op, format string, args ...any) error {
	return &ConfigurationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedFeatureError is returned when the dialect cannot provide a requested capability.
type UnsupportedFeatureError struct {
	Dialect string
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("dynamodel: %s does not support %s", e.Dialect, e.Feature)
}

func (e *UnsupportedFeatureError) Is(target error) bool {
	return target == ErrUnsupported
}

// ParamSnapshot is the state of one argument at the time a command failed.
type ParamSnapshot struct {
	Name      string
	Direction dialect.Direction
	Value     any
}

// ProviderError wraps a failure reported by the database driver.
type ProviderError struct {
	Op        string
	SQL       string
	Params    []ParamSnapshot
	Explained string
	// Code is the driver error code, e.g. a SQLSTATE or a MySQL error number.
	Code  string
	Cause error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("dynamodel: ")
	b.WriteString(e.Op)
	if e.Code != "" {
		b.WriteString(" [")
		b.WriteString(e.Code)
		b.WriteString("]")
	}
	b.WriteString(": ")
	if e.Cause != nil {
		b.WriteString(e.Cause.Error())
	}
	if e.SQL != "" {
		b.WriteString(" (sql: ")
		b.WriteString(e.SQL)
		b.WriteString(")")
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// SchemaError is returned when table metadata cannot be loaded or does not fit the request.
type SchemaError struct {
	Table  string
	Reason string
	Cause  error
}

func (e *SchemaError) Error() string {
	msg := fmt.Sprintf("dynamodel: table %s: %s", e.Table, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}
