package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	appConfig *Config
	appMu     sync.RWMutex
)

// Init loads the configuration and stores it for Get.
func Init() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	appMu.Lock()
	appConfig = cfg
	appMu.Unlock()
	return nil
}

// Get returns the configuration loaded by Init. It panics when called
// before Init; commands must run behind the root initializer.
func Get() *Config {
	appMu.RLock()
	defer appMu.RUnlock()
	if appConfig == nil {
		panic("config.Get called before config.Init")
	}
	return appConfig
}

// FilePath returns where the configuration file is expected, following the
// same search order Load uses. The file may not exist.
func FilePath() string {
	if envPath := os.Getenv("LODESTONE_CONFIG_DIR"); envPath != "" {
		return filepath.Join(envPath, "config.yaml")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "lodestone", "config.yaml")
	}
	return "config.yaml"
}

// FileExists reports whether a configuration file is present at FilePath.
func FileExists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}

// Load reads and returns the typed configuration.
// It searches for configuration files in priority order:
//  1. Directory specified by LODESTONE_CONFIG_DIR environment variable
//  2. ~/.config/lodestone/
//  3. Current working directory (.)
//
// A missing config file is not an error: every key has a registered
// default and may be overridden through LODESTONE_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LODESTONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v)

	if envPath := os.Getenv("LODESTONE_CONFIG_DIR"); envPath != "" {
		v.AddConfigPath(envPath)
	}

	if home := os.Getenv("HOME"); home != "" {
		v.AddConfigPath(filepath.Join(home, ".config", "lodestone"))
	}

	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config; %w", err)
		}
	}

	return unmarshalConfig(v)
}

// LoadFromPath reads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LODESTONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config from %s; %w", path, err)
	}

	return unmarshalConfig(v)
}

// unmarshalConfig converts a viper instance to a typed Config struct.
func unmarshalConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config; %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
