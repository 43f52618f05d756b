/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the pinglog configuration
type Config struct {
	LogDir  string  `yaml:"log_dir"`
	Reader  Reader  `yaml:"reader"`
	Writer  Writer  `yaml:"writer"`
	Archive Archive `yaml:"archive"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

// Reader contains sensor log decoding options
type Reader struct {
	MaxRecoveryAttempts int  `yaml:"max_recovery_attempts"`
	StrictHeader        bool `yaml:"strict_header"`
}

// Writer contains sensor log encoding options
type Writer struct {
	BufferSize   int    `yaml:"buffer_size"`
	OutputSuffix string `yaml:"output_suffix"`
}

// Archive contains the record archive location
type Archive struct {
	Dir string `yaml:"dir"`
}

// Server contains the inspection service settings
type Server struct {
	Port   int    `yaml:"port"`
	Bind   string `yaml:"bind"`
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		LogDir: "./logs",
		Reader: Reader{
			MaxRecoveryAttempts: 4096,
		},
		Writer: Writer{
			BufferSize:   64 * 1024,
			OutputSuffix: "_processed",
		},
		Archive: Archive{
			Dir: "./archive",
		},
		Server: Server{
			Port:   8080,
			Bind:   "127.0.0.1",
			APIKey: "auto",
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Validate checks values that would otherwise fail later in a confusing way
func (c *Config) Validate() error {
	if c.LogDir == "" {
		return fmt.Errorf("log_dir must be set")
	}
	if c.Reader.MaxRecoveryAttempts < 0 {
		return fmt.Errorf("reader.max_recovery_attempts must not be negative")
	}
	if c.Writer.BufferSize < 0 {
		return fmt.Errorf("writer.buffer_size must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// LoadConfig loads configuration from the specified path.
// Fields missing from the file keep their default values.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	// Validate path to prevent directory traversal
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	// Ensure config directory exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with secure permissions (0600)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a new configuration with a generated API key
func BootstrapConfig(configPath string, logDir string) (*Config, error) {
	config := DefaultConfig()
	if logDir != "" {
		config.LogDir = logDir
		config.Archive.Dir = filepath.Join(logDir, ".archive")
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	config.Server.APIKey = apiKey

	// Save the configuration
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./pinglog.yaml"
	}

	// For Linux/macOS, use ~/.config/pinglog/config.yaml
	configDir := filepath.Join(homeDir, ".config", "pinglog")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
