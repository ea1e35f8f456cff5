package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is matched by every *ConfigError
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrUnknownRule is returned when no rule exists for a metric
	ErrUnknownRule = errors.New("unknown rule")
	// ErrOutOfOrder is returned when a sample is older than the newest buffered one
	ErrOutOfOrder = errors.New("sample is older than the newest buffered sample")
)

// ConfigError describes a rejected setting or rule
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidConfiguration) hold for any ConfigError
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}
