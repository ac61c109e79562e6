package toolconfig

import (
	"errors"
	"fmt"
)

// Configuration error kinds. They are fatal: a run cannot proceed with any
// of them.
var (
	ErrUnknownToolbox       = errors.New("unknown toolbox")
	ErrUnsupportedTransport = errors.New("unsupported transport")
	ErrMissingParameter     = errors.New("missing parameter")
	ErrDuplicateToolbox     = errors.New("duplicate toolbox")
)

// ConfigError reports a configuration problem with one toolbox.
type ConfigError struct {
	Toolbox string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Toolbox == "" {
		return fmt.Sprintf("toolconfig: %v", e.Err)
	}
	return fmt.Sprintf("toolconfig: toolbox %q: %v", e.Toolbox, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(toolbox string, err error) *ConfigError {
	return &ConfigError{Toolbox: toolbox, Err: err}
}

func missing(toolbox, param string) *ConfigError {
	return configErr(toolbox, fmt.Errorf("%w: %s", ErrMissingParameter, param))
}
