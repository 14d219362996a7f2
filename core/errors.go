package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeMissingAuth       = "MISSING_AUTH"
	ErrCodeMissingConfig     = "MISSING_CONFIG"
	ErrCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrCodeInvalidConfigFile = "INVALID_CONFIG_FILE"
	ErrCodeInvalidServerURL  = "INVALID_SERVER_URL"
)

// ErrMissingAuth returns an error for a missing FAL credential.
// The action lists the export syntax for the common shells.
func ErrMissingAuth(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingAuth,
		Message: fmt.Sprintf("%s environment variable not set", varName),
		Action: fmt.Sprintf("Set your FAL.ai API key: export %s='your_api_key_here' (Unix), "+
			"set %s=your_api_key_here (Windows CMD), $env:%s='your_api_key_here' (PowerShell), "+
			"or add it to a .env file", varName, varName, varName),
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your environment or .env file", varName),
	}
}

// ErrInvalidParameter returns an error for a generation parameter outside its range.
func ErrInvalidParameter(name string, value interface{}, lo, hi interface{}) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidParameter,
		Message: fmt.Sprintf("%s must be between %v and %v, got %v", name, lo, hi, value),
	}
}

// ErrInvalidConfigFile returns an error for an unreadable or malformed YAML config file.
func ErrInvalidConfigFile(path string, reason error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfigFile,
		Message: fmt.Sprintf("Invalid config file %s: %v", path, reason),
		Action:  "Fix the YAML syntax or remove the --config flag",
	}
}

// ErrInvalidServerURL returns an error for a malformed FAL queue URL.
func ErrInvalidServerURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidServerURL,
		Message: fmt.Sprintf("Invalid FAL_QUEUE_URL '%s': %s", url, reason),
		Action:  "Set FAL_QUEUE_URL to a valid URL (e.g., https://queue.fal.run)",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
