package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a TCP port number
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", port)
	}
	return nil
}

// ValidateSharedSecret validates the gateway shared secret. Empty is
// allowed here; the serve command refuses to start without one.
func (v *Validator) ValidateSharedSecret(secret string) error {
	if secret == "" {
		return nil
	}
	if len(secret) < 8 {
		return fmt.Errorf("gateway shared secret must be at least 8 characters")
	}
	return nil
}

// ValidateApprovalMode validates the approval gate mode
func (v *Validator) ValidateApprovalMode(mode string) error {
	if mode == "" {
		return nil // Use default
	}

	validModes := []string{"prompt", "auto-approve", "deny-all"}
	for _, valid := range validModes {
		if mode == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid approval mode: %s (must be one of: %s)", mode, strings.Join(validModes, ", "))
}

// ValidateTickInterval validates the gateway heartbeat interval
func (v *Validator) ValidateTickInterval(ms int) error {
	if ms < 0 {
		return fmt.Errorf("gateway tick_interval_ms must be >= 0, got %d", ms)
	}
	return nil
}

// ValidateSampleRatio validates the tracing sample ratio
func (v *Validator) ValidateSampleRatio(ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("tracing sample_ratio must be between 0 and 1, got %g", ratio)
	}
	return nil
}

// ValidateExecTimeout validates the tool execution timeout
func (v *Validator) ValidateExecTimeout(seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("tools exec_timeout_seconds must be >= 0, got %d", seconds)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging max_age must be >= 0"))
	}

	// Validate gateway
	if err := v.ValidatePort(cfg.Gateway.Port); err != nil {
		errors = append(errors, fmt.Errorf("gateway: %w", err))
	}
	if err := v.ValidateSharedSecret(cfg.Gateway.SharedSecret); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTickInterval(cfg.Gateway.TickInterval); err != nil {
		errors = append(errors, err)
	}
	if cfg.Gateway.RequestsPerMinute < 0 {
		errors = append(errors, fmt.Errorf("gateway requests_per_minute must be >= 0"))
	}
	if cfg.Gateway.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("gateway max_concurrent_requests must be >= 0"))
	}

	// Validate approval
	if err := v.ValidateApprovalMode(cfg.Approval.Mode); err != nil {
		errors = append(errors, err)
	}

	// Validate tools
	if err := v.ValidateExecTimeout(cfg.Tools.ExecTimeoutSeconds); err != nil {
		errors = append(errors, err)
	}

	// Validate tracing
	if err := v.ValidateSampleRatio(cfg.Tracing.SampleRatio); err != nil {
		errors = append(errors, err)
	}

	return errors
}
