// Package config loads the client configuration from file, environment, and
// defaults via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the chat core needs to talk to its backend
type Config struct {
	// BaseURL is the backend's HTTP endpoint for mutations and actions.
	BaseURL string `mapstructure:"base_url"`
	// WebsocketURL is the real-time subscription endpoint. Derived from
	// BaseURL when empty.
	WebsocketURL string `mapstructure:"websocket_url"`
	// AuthToken authenticates mutation calls; empty for anonymous visitors.
	AuthToken string `mapstructure:"auth_token"`
	// UserID is the signed-in user id; an anonymous id is generated when empty.
	UserID string `mapstructure:"user_id"`
	// AdminID identifies the support agent for triage commands.
	AdminID string `mapstructure:"admin_id"`
	// PageURL is the page the widget was opened on, recorded on new threads.
	PageURL string `mapstructure:"page_url"`

	PageSize      int           `mapstructure:"page_size"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	DraftDBPath   string        `mapstructure:"draft_db_path"`
	Debug         bool          `mapstructure:"debug"`
}

// Load reads configuration from the given path (optional), PARLEY_* env
// variables, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("parley")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/parley")
	}

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv can populate it on Unmarshal.
	v.SetDefault("base_url", "")
	v.SetDefault("websocket_url", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("user_id", "")
	v.SetDefault("admin_id", "")
	v.SetDefault("page_url", "")
	v.SetDefault("page_size", 50)
	v.SetDefault("upload_timeout", 5*time.Minute)
	v.SetDefault("draft_db_path", "")
	v.SetDefault("debug", false)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and fills derivable ones.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required (set PARLEY_BASE_URL or the config file)")
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.WebsocketURL == "" {
		ws := c.BaseURL
		ws = strings.Replace(ws, "https://", "wss://", 1)
		ws = strings.Replace(ws, "http://", "ws://", 1)
		c.WebsocketURL = ws + "/ws"
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	return nil
}
