package appconfig

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Storage       StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Execution     ExecutionConfig `mapstructure:"execution" yaml:"execution"`
	Python        PythonConfig    `mapstructure:"python" yaml:"python"`
	Preview       PreviewConfig   `mapstructure:"preview" yaml:"preview"`
	Shell         ShellConfig     `mapstructure:"shell" yaml:"shell"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// StorageConfig selects where the session and settings are persisted.
type StorageConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	Obfuscate bool   `mapstructure:"obfuscate" yaml:"obfuscate"`
}

// ExecutionConfig controls the execution bridge.
type ExecutionConfig struct {
	TimeoutSeconds     int  `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	InitTimeoutSeconds int  `mapstructure:"init_timeout_seconds" yaml:"init_timeout_seconds"`
	JavaScript         bool `mapstructure:"javascript" yaml:"javascript"`
}

// Timeout returns the run timeout. Zero disables it.
func (c ExecutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// InitTimeout returns the runtime initialization timeout. Zero disables it.
func (c ExecutionConfig) InitTimeout() time.Duration {
	return time.Duration(c.InitTimeoutSeconds) * time.Second
}

// PythonConfig locates the Python interpreter.
type PythonConfig struct {
	Source        string `mapstructure:"source" yaml:"source"`
	CacheDir      string `mapstructure:"cache_dir" yaml:"cache_dir"`
	MemoryLimitMB int    `mapstructure:"memory_limit_mb" yaml:"memory_limit_mb"`
}

// MaxMemoryLimitMB is the largest memory a wasm32 interpreter can address.
const MaxMemoryLimitMB = 4096

// MemoryLimitPages converts the memory limit to 64KB wasm pages.
func (c PythonConfig) MemoryLimitPages() uint32 {
	if c.MemoryLimitMB <= 0 {
		return 0
	}
	return uint32(c.MemoryLimitMB) * 16
}

// PreviewConfig configures the HTML preview server.
type PreviewConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// ShellConfig configures the interactive editor shell.
type ShellConfig struct {
	HistoryFile     string `mapstructure:"history_file" yaml:"history_file"`
	DefaultLanguage string `mapstructure:"default_language" yaml:"default_language"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	root := filepath.Join(home, ".codeflow")
	cfg := Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(root, "state"),
		Storage: StorageConfig{
			Driver:    DriverSQLite,
			Obfuscate: true,
		},
		Execution: ExecutionConfig{
			TimeoutSeconds:     30,
			InitTimeoutSeconds: 120,
			JavaScript:         false,
		},
		Python: PythonConfig{
			Source:        filepath.Join(root, "python.wasm"),
			MemoryLimitMB: 256,
		},
		Preview: PreviewConfig{
			Addr: "127.0.0.1:27481",
		},
		Shell: ShellConfig{
			DefaultLanguage: "javascript",
		},
	}
	cfg.deriveStatePaths()
	return cfg, nil
}

// deriveStatePaths fills the database, compilation cache and history paths
// that are unset with their locations under StateDir.
func (c *Config) deriveStatePaths() {
	if c.StateDir == "" {
		return
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.StateDir, "codeflow.db")
	}
	if c.Python.CacheDir == "" {
		c.Python.CacheDir = filepath.Join(c.StateDir, "cache")
	}
	if c.Shell.HistoryFile == "" {
		c.Shell.HistoryFile = filepath.Join(c.StateDir, "history")
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codeflow", "config.yaml"), nil
}
