package appconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/codeflow/language"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.obfuscate", cfg.Storage.Obfuscate)
	v.SetDefault("execution.timeout_seconds", cfg.Execution.TimeoutSeconds)
	v.SetDefault("execution.init_timeout_seconds", cfg.Execution.InitTimeoutSeconds)
	v.SetDefault("execution.javascript", cfg.Execution.JavaScript)
	v.SetDefault("python.source", cfg.Python.Source)
	v.SetDefault("python.memory_limit_mb", cfg.Python.MemoryLimitMB)
	v.SetDefault("preview.addr", cfg.Preview.Addr)
	v.SetDefault("shell.default_language", cfg.Shell.DefaultLanguage)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else if v.GetInt("config_version") != CurrentConfigVersion {
		return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
	}

	// Paths the file leaves unset are derived from state_dir.
	cfg.Storage.Path, cfg.Python.CacheDir, cfg.Shell.HistoryFile = "", "", ""
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	cfg.deriveStatePaths()
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Storage.Driver {
	case DriverSQLite:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", DriverSQLite)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported storage.driver %q", cfg.Storage.Driver)
	}
	if cfg.Execution.TimeoutSeconds < 0 {
		return fmt.Errorf("execution.timeout_seconds must not be negative")
	}
	if cfg.Python.MemoryLimitMB < 0 || cfg.Python.MemoryLimitMB > MaxMemoryLimitMB {
		return fmt.Errorf("python.memory_limit_mb must be between 0 and %d", MaxMemoryLimitMB)
	}
	if _, ok := language.Parse(cfg.Shell.DefaultLanguage); !ok {
		return fmt.Errorf("unsupported shell.default_language %q", cfg.Shell.DefaultLanguage)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Storage.Path = expandEnv(cfg.Storage.Path)
	cfg.Python.Source = expandEnv(cfg.Python.Source)
	cfg.Python.CacheDir = expandEnv(cfg.Python.CacheDir)
	cfg.Shell.HistoryFile = expandEnv(cfg.Shell.HistoryFile)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
