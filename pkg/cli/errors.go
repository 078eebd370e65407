package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by the sextant command. Scripts key off these, so
// they are part of the CLI contract.
const (
	// ExitOK means the command succeeded.
	ExitOK = 0
	// ExitFailure means a command failed during execution.
	ExitFailure = 1
	// ExitConfig means the configuration was invalid or unloadable.
	ExitConfig = 2
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Section string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Section, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError for a config section.
func NewConfigError(section, message string) *ConfigError {
	return &ConfigError{
		Section: section,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error to the process exit code it should produce.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ExitConfig
	}
	return ExitFailure
}
