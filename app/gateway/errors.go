package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported          = errors.New("operation not supported by gateway")
	ErrGatewayNotRegistered = errors.New("gateway type not registered")
	ErrInvalidConfig        = errors.New("invalid gateway configuration")
)

// UnsupportedError reports an operation a gateway does not implement.
type UnsupportedError struct {
	Gateway   string
	Operation string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s is not supported", e.Gateway, e.Operation)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

func unsupported(gatewayType, operation string) error {
	return &UnsupportedError{Gateway: gatewayType, Operation: operation}
}

// ConfigError carries every validation failure for a configuration.
type ConfigError struct {
	Type   string
	Errors []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Type, e.Errors)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
