package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main dispatch configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Approval gate
	Approval ApprovalConfig `json:"approval" mapstructure:"approval"`

	// Tool execution
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// OpenTelemetry tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port              int    `json:"port" mapstructure:"port"`
	Host              string `json:"host" mapstructure:"host"`
	SharedSecret      string `json:"shared_secret" mapstructure:"shared_secret"`
	TickInterval      int    `json:"tick_interval_ms" mapstructure:"tick_interval_ms"`
	RequestsPerMinute int    `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int    `json:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
}

// ApprovalConfig holds approval gate configuration
type ApprovalConfig struct {
	Mode string `json:"mode" mapstructure:"mode"` // prompt, auto-approve, deny-all
}

// ToolsConfig holds tool execution configuration
type ToolsConfig struct {
	ExecTimeoutSeconds int `json:"exec_timeout_seconds" mapstructure:"exec_timeout_seconds"` // 0 = unbounded
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"` // (0, 1]; out of range samples everything
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		DataDir: "",
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Port:              8090,
			Host:              "0.0.0.0",
			SharedSecret:      "",
			TickInterval:      30000,
			RequestsPerMinute: 60,
			MaxConcurrent:     10,
		},
		Approval: ApprovalConfig{
			Mode: "prompt",
		},
		Tools: ToolsConfig{
			ExecTimeoutSeconds: 120,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "dispatch",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Gateway.TickInterval < 0 {
		return fmt.Errorf("gateway tick_interval_ms must be >= 0")
	}
	if c.Gateway.RequestsPerMinute < 0 {
		return fmt.Errorf("gateway requests_per_minute must be >= 0")
	}
	if c.Gateway.MaxConcurrent < 0 {
		return fmt.Errorf("gateway max_concurrent_requests must be >= 0")
	}

	validModes := []string{"prompt", "auto-approve", "deny-all"}
	modeOK := false
	for _, m := range validModes {
		if c.Approval.Mode == m {
			modeOK = true
			break
		}
	}
	if !modeOK {
		return fmt.Errorf("invalid approval mode: %s (must be: prompt, auto-approve, deny-all)", c.Approval.Mode)
	}

	if c.Tools.ExecTimeoutSeconds < 0 {
		return fmt.Errorf("tools exec_timeout_seconds must be >= 0")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample_ratio must be between 0 and 1")
	}

	return nil
}
