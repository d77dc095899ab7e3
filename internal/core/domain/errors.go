package domain

import (
	"errors"
	"fmt"
)

// Category sentinels so callers can classify with errors.Is without
// caring about the concrete type.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrModelTransient = errors.New("model transient error")
	ErrDataInvariant  = errors.New("data invariant violation")
)

// TransientKind distinguishes why a model call failed in a retryable way.
type TransientKind string

const (
	TransientEmpty     TransientKind = "empty_response"
	TransientMalformed TransientKind = "malformed_output"
	TransientTransport TransientKind = "transport_error"
)

// ConfigurationError signals invalid or missing configuration. It is fatal
// and never retried.
type ConfigurationError struct {
	ConfigKey   string
	Message     string
	UserMessage string
}

func (e *ConfigurationError) Error() string {
	if e.ConfigKey != "" {
		return fmt.Sprintf("configuration: %s (key: %s)", e.Message, e.ConfigKey)
	}
	return "configuration: " + e.Message
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError builds a ConfigurationError with an operator-facing
// message and an optional user-facing one.
func NewConfigurationError(key, message, userMessage string) *ConfigurationError {
	if userMessage == "" {
		userMessage = message
	}
	return &ConfigurationError{ConfigKey: key, Message: message, UserMessage: userMessage}
}

// ModelTransientError signals a model call that may succeed on retry:
// an empty response, malformed structured output, or a transport failure.
// The orchestrator retries such calls exactly once.
type ModelTransientError struct {
	Kind    TransientKind
	Message string
	Err     error
}

func (e *ModelTransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("model %s: %s", e.Kind, e.Message)
}

func (e *ModelTransientError) Unwrap() error { return e.Err }

func (e *ModelTransientError) Is(target error) bool { return target == ErrModelTransient }

// NewModelTransientError wraps a retryable model failure.
func NewModelTransientError(kind TransientKind, message string, err error) *ModelTransientError {
	return &ModelTransientError{Kind: kind, Message: message, Err: err}
}

// DataInvariantError signals impossible domain data detected at
// construction time, such as a process with zero steps or scorer weights
// that do not sum to 1.0.
type DataInvariantError struct {
	Field   string
	Message string
}

func (e *DataInvariantError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invariant: %s (field: %s)", e.Message, e.Field)
	}
	return "invariant: " + e.Message
}

func (e *DataInvariantError) Is(target error) bool { return target == ErrDataInvariant }

// NewDataInvariantError builds a DataInvariantError for the given field.
func NewDataInvariantError(field, message string) *DataInvariantError {
	return &DataInvariantError{Field: field, Message: message}
}
