// ABOUTME: Loads crmsync settings from the environment and an optional .env file
// ABOUTME: Viper supplies defaults; Validate methods report missing keys per entry point
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrConfig = errors.New("invalid configuration")

type Config struct {
	DatabasePath string
	Port         int
	// APIKey guards the manual sync trigger.
	APIKey string

	Wealthbox WealthboxConfig
	Log       LogConfig
	Sync      SyncConfig
}

type WealthboxConfig struct {
	APIURL        string
	APIKey        string
	WebhookSecret string
}

type LogConfig struct {
	Level  slog.Level
	Format string
}

type SyncConfig struct {
	Schedule    string
	PageSize    int
	PageDelay   time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("database_path", DefaultDatabasePath())
	v.SetDefault("port", 3000)
	v.SetDefault("api_key", "")
	v.SetDefault("wealthbox_api_url", "https://api.crmworkspace.com/v1")
	v.SetDefault("wealthbox_api_key", "")
	v.SetDefault("wealthbox_webhook_secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("sync_schedule", "0 0 * * *")
	v.SetDefault("sync_page_size", 100)
	v.SetDefault("sync_page_delay", 100*time.Millisecond)
	v.SetDefault("sync_max_retries", 3)
	v.SetDefault("sync_retry_delay", time.Second)
	v.SetDefault("sync_concurrency", 8)
	v.AutomaticEnv()
	return v
}

// DefaultDatabasePath is the database location under the XDG data directory.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "crmsync", "crmsync.db")
}

// Load reads .env from the working directory when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromViper(New())
}

// FromViper decodes settings from v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath: v.GetString("database_path"),
		Port:         v.GetInt("port"),
		APIKey:       v.GetString("api_key"),
		Wealthbox: WealthboxConfig{
			APIURL:        strings.TrimRight(v.GetString("wealthbox_api_url"), "/"),
			APIKey:        v.GetString("wealthbox_api_key"),
			WebhookSecret: v.GetString("wealthbox_webhook_secret"),
		},
		Log: LogConfig{
			Format: strings.ToLower(v.GetString("log_format")),
		},
		Sync: SyncConfig{
			Schedule:    v.GetString("sync_schedule"),
			PageSize:    v.GetInt("sync_page_size"),
			PageDelay:   v.GetDuration("sync_page_delay"),
			MaxRetries:  v.GetInt("sync_max_retries"),
			RetryDelay:  v.GetDuration("sync_retry_delay"),
			Concurrency: v.GetInt("sync_concurrency"),
		},
	}

	if err := cfg.Log.Level.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %v", ErrConfig, err)
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return nil, fmt.Errorf("%w: LOG_FORMAT must be text or json, got %q", ErrConfig, cfg.Log.Format)
	}
	if cfg.Sync.PageSize <= 0 {
		return nil, fmt.Errorf("%w: SYNC_PAGE_SIZE must be positive", ErrConfig)
	}
	if cfg.Sync.Concurrency <= 0 {
		return nil, fmt.Errorf("%w: SYNC_CONCURRENCY must be positive", ErrConfig)
	}
	if cfg.Sync.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: SYNC_MAX_RETRIES must not be negative", ErrConfig)
	}

	return cfg, nil
}

// ValidateRemote checks the settings needed to talk to Wealthbox.
func (c *Config) ValidateRemote() error {
	var missing []string
	if c.Wealthbox.APIURL == "" {
		missing = append(missing, "WEALTHBOX_API_URL")
	}
	if c.Wealthbox.APIKey == "" {
		missing = append(missing, "WEALTHBOX_API_KEY")
	}
	return missingErr(missing)
}

// ValidateServer checks the settings needed to serve HTTP, including the
// webhook secret and the sync trigger key.
func (c *Config) ValidateServer() error {
	var missing []string
	if c.Wealthbox.APIURL == "" {
		missing = append(missing, "WEALTHBOX_API_URL")
	}
	if c.Wealthbox.APIKey == "" {
		missing = append(missing, "WEALTHBOX_API_KEY")
	}
	if c.Wealthbox.WebhookSecret == "" {
		missing = append(missing, "WEALTHBOX_WEBHOOK_SECRET")
	}
	if c.APIKey == "" {
		missing = append(missing, "API_KEY")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: PORT out of range: %d", ErrConfig, c.Port)
	}
	return missingErr(missing)
}

func missingErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrConfig, strings.Join(missing, ", "))
}
