package endpoint

import (
	"errors"
	"fmt"
)

// Endpoint errors.
var (
	// ErrInvalidConfig is matched by every ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownEngine is returned for a transport name with no registered engine.
	ErrUnknownEngine = errors.New("unknown transport engine")

	// ErrEndpointClosed is returned by a closed client or server, and is the
	// close reason of the sessions it closed.
	ErrEndpointClosed = errors.New("endpoint closed")

	// ErrAlreadyListening is returned by a second Listen.
	ErrAlreadyListening = errors.New("server already listening")
)

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string // config field name
	Value   any    // the invalid value (nil if missing)
	Message string // human-readable explanation
}

func (e *ConfigError) Error() string {
	msg := "config: " + e.Field
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	return msg + ": " + e.Message
}

// Is matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configErr(field string, value any, format string, args ...any) error {
	return &ConfigError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}
