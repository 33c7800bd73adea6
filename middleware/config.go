// Package middleware exposes a goadsrt client over HTTP and WebSocket, for
// applications that want to reach a PLC without speaking AMS themselves.
package middleware

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	PLC     PLCConfig     `yaml:"plc"`
	Gateway GatewayConfig `yaml:"gateway"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string     `yaml:"host"`
	Port int        `yaml:"port"`
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// PLCConfig contains the PLC connection parameters.
type PLCConfig struct {
	// Target is the TCP address of the ADS router, host:port.
	Target string `yaml:"target"`
	// AMSNetID is the NetID of the PLC, e.g. "10.0.10.20.1.1".
	AMSNetID string `yaml:"ams_net_id"`
	// AMSPort is the AMS port of the runtime, usually 851.
	AMSPort uint16 `yaml:"ams_port"`
	// SourceNetID optionally pins the source address; empty means derive
	// it from the local IP.
	SourceNetID    string `yaml:"source_net_id"`
	SourcePort     uint16 `yaml:"source_port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// GatewayConfig contains gateway-specific limits.
type GatewayConfig struct {
	MaxSubscriptions    int `yaml:"max_subscriptions"`
	WebSocketBufferSize int `yaml:"websocket_buffer_size"`
	MaxReadSize         int `yaml:"max_read_size"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			CORS: CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: false,
			},
		},
		PLC: PLCConfig{
			Target:         "localhost:48898",
			AMSNetID:       "10.0.10.20.1.1",
			AMSPort:        851,
			TimeoutSeconds: 5,
		},
		Gateway: GatewayConfig{
			MaxSubscriptions:    1000,
			WebSocketBufferSize: 256,
			MaxReadSize:         1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file, on top of the defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.PLC.Target == "" {
		return fmt.Errorf("PLC target address is required")
	}

	if c.PLC.AMSNetID == "" {
		return fmt.Errorf("PLC AMS Net ID is required")
	}

	if c.PLC.TimeoutSeconds < 1 {
		return fmt.Errorf("PLC timeout must be at least 1 second")
	}

	if c.Gateway.MaxSubscriptions < 1 {
		return fmt.Errorf("max subscriptions must be at least 1")
	}

	if c.Gateway.MaxReadSize < 1 {
		return fmt.Errorf("max read size must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// Address returns the server address (host:port).
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Timeout returns the PLC timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.PLC.TimeoutSeconds) * time.Second
}

// SaveExample saves an example configuration file.
func SaveExample(filename string) error {
	config := DefaultConfig()
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
