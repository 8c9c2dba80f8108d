package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/programista/programista/internal/domain"
	"github.com/spf13/viper"
)

const appName = "programista"

// Config holds all application configuration
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Prefetch  PrefetchConfig  `mapstructure:"prefetch"`
	Hub       HubConfig       `mapstructure:"hub"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	API       APIConfig       `mapstructure:"api"`
}

// ProvidersConfig holds per-provider settings
type ProvidersConfig struct {
	Teleman      ProviderConfig `mapstructure:"teleman"`
	TelemanA11y  ProviderConfig `mapstructure:"teleman_a11y"`
	PolskieRadio ProviderConfig `mapstructure:"polskieradio"`
	Fandom       ProviderConfig `mapstructure:"fandom"`
}

// ProviderConfig holds settings for one schedule provider
type ProviderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	TTL     time.Duration `mapstructure:"ttl"`     // How long a fetched schedule stays fresh
	Timeout time.Duration `mapstructure:"timeout"` // Bound on a single fetch
	RPS     float64       `mapstructure:"rps"`     // Courtesy rate limit
	Burst   int           `mapstructure:"burst"`
}

// FetchConfig holds settings shared by all provider fetches
type FetchConfig struct {
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"` // First wait after a failed fetch
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	SourceTimezone string        `mapstructure:"source_timezone"` // Zone the providers print times in
	UserAgent      string        `mapstructure:"user_agent"`
}

// PrefetchConfig holds background refresh settings
type PrefetchConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	DaysAhead    int           `mapstructure:"days_ahead"`
	RefreshAhead float64       `mapstructure:"refresh_ahead"` // Fraction of TTL after which favorites are refreshed
	Concurrency  int           `mapstructure:"concurrency"`
}

// HubConfig holds remote search settings
type HubConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryAfter time.Duration `mapstructure:"retry_after"` // Wait before retrying a failed registration
}

// FeedbackConfig holds bug report settings
type FeedbackConfig struct {
	URL      string `mapstructure:"url"`
	AppToken string `mapstructure:"app_token"`
}

// APIConfig holds the local HTTP bridge settings
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataPath(),
		Logging: LoggingConfig{
			File:  filepath.Join(defaultDataPath(), appName+".log"),
			Level: "INFO",
		},
		Providers: ProvidersConfig{
			Teleman: ProviderConfig{
				Enabled: true,
				BaseURL: "https://www.teleman.pl",
				TTL:     6 * time.Hour,
				Timeout: 20 * time.Second,
				RPS:     2,
				Burst:   2,
			},
			TelemanA11y: ProviderConfig{
				Enabled: true,
				BaseURL: "https://www.teleman.pl",
				TTL:     6 * time.Hour,
				Timeout: 20 * time.Second,
				RPS:     2,
				Burst:   2,
			},
			PolskieRadio: ProviderConfig{
				Enabled: true,
				BaseURL: "https://www.polskieradio.pl",
				TTL:     6 * time.Hour,
				Timeout: 20 * time.Second,
				RPS:     2,
				Burst:   2,
			},
			Fandom: ProviderConfig{
				Enabled: true,
				BaseURL: "https://ramowki.fandom.com",
				TTL:     30 * 24 * time.Hour,
				Timeout: 30 * time.Second,
				RPS:     1,
				Burst:   1,
			},
		},
		Fetch: FetchConfig{
			RetryBackoff:   time.Minute,
			MaxBackoff:     30 * time.Minute,
			SourceTimezone: "Europe/Warsaw",
			UserAgent:      appName + "/1.0 (+desktop)",
		},
		Prefetch: PrefetchConfig{
			Enabled:      true,
			Interval:     30 * time.Minute,
			DaysAhead:    2,
			RefreshAhead: 0.8,
			Concurrency:  4,
		},
		Hub: HubConfig{
			Enabled:    true,
			BaseURL:    "https://tyflo.eu.org/programista/api",
			Timeout:    15 * time.Second,
			RetryAfter: time.Hour,
		},
		Feedback: FeedbackConfig{
			URL: "https://sygnalista.michaldziwisz.workers.dev",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8765",
		},
	}
}

// Provider returns the settings of the given provider.
func (c *Config) Provider(id domain.ProviderID) ProviderConfig {
	switch id {
	case domain.ProviderTeleman:
		return c.Providers.Teleman
	case domain.ProviderTelemanA11y:
		return c.Providers.TelemanA11y
	case domain.ProviderPolskieRadio:
		return c.Providers.PolskieRadio
	case domain.ProviderFandom:
		return c.Providers.Fandom
	default:
		return ProviderConfig{}
	}
}

// TTL returns the freshness window of the given provider.
func (c *Config) TTL(id domain.ProviderID) time.Duration {
	return c.Provider(id).TTL
}

// SourceLocation loads the zone providers print their times in.
func (c *Config) SourceLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Fetch.SourceTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid source timezone %q: %w", c.Fetch.SourceTimezone, err)
	}
	return loc, nil
}

// StorePath returns the path of the bbolt database, or "" for memory-only mode.
func (c *Config) StorePath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, appName+".db")
}

// defaultDataPath returns the default data directory path for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", appName)
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	return load(viper.GetViper(), defaultConfigPath(), ".")
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Environment variable overrides, e.g. PROGRAMISTA_HUB_BASE_URL
	v.SetEnvPrefix("PROGRAMISTA")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	bindEnvDefaults(v, cfg)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := c.SourceLocation(); err != nil {
		return err
	}
	for _, id := range []domain.ProviderID{domain.ProviderTeleman, domain.ProviderTelemanA11y, domain.ProviderPolskieRadio, domain.ProviderFandom} {
		p := c.Provider(id)
		if !p.Enabled {
			continue
		}
		if p.TTL <= 0 {
			return fmt.Errorf("provider %s: ttl must be positive", id)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", id)
		}
	}
	if c.Prefetch.RefreshAhead <= 0 || c.Prefetch.RefreshAhead > 1 {
		return fmt.Errorf("prefetch.refresh_ahead must be in (0, 1]")
	}
	return nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()

	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	setAll(v, cfg)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ClearCache removes all persisted schedules, favorites and identity
func ClearCache(cfg *Config) error {
	path := cfg.StorePath()
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
