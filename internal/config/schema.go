package config

// Config is the full runtime configuration for syncbridge, assembled from
// environment variables with an optional YAML file overlay via
// viper.

type Config struct {
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`
	AB   ABConfig   `mapstructure:"ab" yaml:"ab"`
	ES   ESConfig   `mapstructure:"es" yaml:"es"`
	RA   RAConfig   `mapstructure:"ra" yaml:"ra"`

	// LogLevel holds a slog verbosity name (debug, info, warn, error). It is
	// loaded and defaulted but not read by the daemon, whose level comes
	// from --log-level or SYNCBRIDGE_LOG_LEVEL.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// SyncConfig holds the reconciliation cadence and threshold parameters.
type SyncConfig struct {
	// PeriodMins is how often the reconciliation tick runs, in minutes.
	PeriodMins int `mapstructure:"period_mins" yaml:"period_mins"`

	// DeltaABSeconds is the AB change threshold, in seconds.
	DeltaABSeconds int `mapstructure:"delta_ab_seconds" yaml:"delta_ab_seconds"`

	// DeltaESPercent is the ES change threshold, as whole percentage points
	// (1 means 1%, converted to 0.01 fraction when applied).
	DeltaESPercent int `mapstructure:"delta_es_percent" yaml:"delta_es_percent"`

	// DeltaESWords is the ES character-delta escalation threshold, in words
	// (multiplied by 5 to derive a character-count threshold).
	DeltaESWords int `mapstructure:"delta_es_words" yaml:"delta_es_words"`
}

// ABConfig is the audiobook server adapter's endpoint and credential.
type ABConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Token   string `mapstructure:"token" yaml:"token"`
}

// ESConfig is the ebook sync service adapter's endpoint and credential.
type ESConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Token   string `mapstructure:"token" yaml:"token"`
}

// RAConfig is the read-along database adapter's connection parameters.
type RAConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	UserID string `mapstructure:"user_id" yaml:"user_id"`
}

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			PeriodMins:     5,
			DeltaABSeconds: 60,
			DeltaESPercent: 1,
			DeltaESWords:   400,
		},
		LogLevel: "info",
	}
}

// DeltaESFraction returns the ES percentage threshold as a 0..1 fraction.
func (c SyncConfig) DeltaESFraction() float64 {
	return float64(c.DeltaESPercent) / 100.0
}

// DeltaCharWords returns the character-delta escalation threshold derived
// from DeltaESWords.
func (c SyncConfig) DeltaCharWords() int {
	return c.DeltaESWords * 5
}
