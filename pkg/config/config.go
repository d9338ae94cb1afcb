/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendLog    = "log"
)

// Config represents the tweetdb configuration
type Config struct {
	DataDir  string   `yaml:"data_dir"`
	Port     int      `yaml:"port"`
	Bind     string   `yaml:"bind"`
	Storage  Storage  `yaml:"storage"`
	Ledger   Ledger   `yaml:"ledger"`
	Security Security `yaml:"security"`
	Logging  Logging  `yaml:"logging"`
	Client   Client   `yaml:"client"`
	Wallet   Wallet   `yaml:"wallet"`
}

// Storage selects and tunes the record backend
type Storage struct {
	Backend       string        `yaml:"backend"`
	FsyncInterval time.Duration `yaml:"fsync_interval"`
}

// Ledger contains transaction execution settings
type Ledger struct {
	Commitment  string        `yaml:"commitment"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// Security contains security-related configuration
type Security struct {
	ClientAPIKey string `yaml:"client_api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Client configures remote access to a tweetdb server
type Client struct {
	Endpoint    string        `yaml:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Wallet locates the signing keypair
type Wallet struct {
	KeypairPath string `yaml:"keypair_path"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    8899,
		Bind:    "127.0.0.1",
		Storage: Storage{
			Backend: BackendPebble,
		},
		Ledger: Ledger{
			Commitment:  "processed",
			LockTimeout: 5 * time.Second,
		},
		Security: Security{
			ClientAPIKey: "auto",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Client: Client{
			Endpoint:    "http://127.0.0.1:8899",
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			Backoff:     250 * time.Millisecond,
		},
		Wallet: Wallet{
			KeypairPath: defaultKeypairPath(),
		},
	}
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory, BackendPebble, BackendLog:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be memory, pebble or log, got %q", c.Storage.Backend))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Ledger.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("ledger.commitment must be processed, confirmed or finalized, got %q", c.Ledger.Commitment))
	}
	if c.Ledger.LockTimeout < 0 {
		errs = append(errs, errors.New("ledger.lock_timeout cannot be negative"))
	}
	if c.Client.MaxAttempts < 0 {
		errs = append(errs, errors.New("client.max_attempts cannot be negative"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// LoadConfig loads configuration from the specified path. Settings missing
// from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

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

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

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

// BootstrapConfig creates a new configuration with a generated client API key and saves it
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	clientAPIKey, err := GenerateSecureKey(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client API key: %w", err)
	}
	config.Security.ClientAPIKey = clientAPIKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./tweetdb.yaml"
	}

	// For Linux/macOS, use ~/.config/tweetdb/config.yaml
	return filepath.Join(homeDir, ".config", "tweetdb", "config.yaml")
}

func defaultKeypairPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./id.json"
	}
	return filepath.Join(homeDir, ".config", "tweetdb", "id.json")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
