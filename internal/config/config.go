package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for fsindex.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Log        LogConfig        `toml:"log"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
}

// LogConfig controls the log file and the minimum level written.
type LogConfig struct {
	Level      string `toml:"level"`       // "trace", "debug", "info", "warn" or "error"
	MaxSizeMB  int    `toml:"max_size_mb"` // rotate after this many megabytes
	MaxBackups int    `toml:"max_backups"` // rotated files to keep
}

// EncryptionConfig holds paths to the age key pair used to encrypt the published index.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "none" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the index database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided values and defaults for everything else.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "fsindex.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "fsindex.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may carry S3 credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if c.HostID == "" {
		return fmt.Errorf("host_id is required")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir is required")
	}
	switch c.Encryption.Type {
	case "", "age", "none", "test":
	default:
		return fmt.Errorf("unknown encryption type: %s", c.Encryption.Type)
	}
	names := make(map[string]bool)
	for _, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vault of type %q has no name", v.Type)
		}
		if names[v.Name] {
			return fmt.Errorf("duplicate vault name: %s", v.Name)
		}
		names[v.Name] = true
	}
	return nil
}
