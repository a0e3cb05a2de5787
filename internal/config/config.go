package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager, loads the initial configuration,
// and validates it. A ConfigInvalid error here is fatal at startup.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults, env bindings, and an optional
// config file overlay.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("sync.period_mins", defaults.Sync.PeriodMins)
	viper.SetDefault("sync.delta_ab_seconds", defaults.Sync.DeltaABSeconds)
	viper.SetDefault("sync.delta_es_percent", defaults.Sync.DeltaESPercent)
	viper.SetDefault("sync.delta_es_words", defaults.Sync.DeltaESWords)
	viper.SetDefault("log_level", defaults.LogLevel)

	// These are unprefixed so an operator can set AB_TOKEN etc. directly.
	bindings := map[string]string{
		"sync.period_mins":      "SYNC_PERIOD_MINS",
		"sync.delta_ab_seconds": "SYNC_DELTA_AB_SECONDS",
		"sync.delta_es_percent": "SYNC_DELTA_ES_PERCENT",
		"sync.delta_es_words":   "SYNC_DELTA_ES_WORDS",
		"log_level":             "LOG_LEVEL",
		"ab.base_url":           "AB_BASE_URL",
		"ab.token":              "AB_TOKEN",
		"es.base_url":           "ES_BASE_URL",
		"es.token":              "ES_TOKEN",
		"ra.db_path":            "RA_DB_PATH",
		"ra.user_id":            "RA_USER_ID",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.syncbridge")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of the config file. A reload that fails
// to load or validate is dropped silently: callbacks are not invoked and the
// prior, already-validated config is kept in place.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}
		if err := Validate(cfg); err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# syncbridge configuration
# AB/ES tokens and the RA db path may also be set via environment variables:
# AB_BASE_URL, AB_TOKEN, ES_BASE_URL, ES_TOKEN, RA_DB_PATH, RA_USER_ID

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
