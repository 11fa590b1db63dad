// Package config loads and resolves the application configuration from a
// TOML file with a four-layer override chain: defaults -> config file ->
// environment variables -> CLI flags.
package config

import (
	"fmt"
	"time"
)

// Default values for configuration options. These are layer 0 of the
// override chain and work without any config file.
const (
	defaultListenAddr      = "127.0.0.1:8787"
	defaultUserID          = "local"
	defaultTimeZone        = "Europe/Istanbul"
	defaultPollInterval    = "3m"
	defaultPollDelay       = "30s"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
	defaultGoogleTokenURL  = "https://oauth2.googleapis.com/token"
	defaultGoogleAuthURL   = "https://accounts.google.com/o/oauth2/auth"
	defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"
	defaultRatesBaseURL    = "https://api.frankfurter.app"
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
)

// Config mirrors the TOML file structure.
type Config struct {
	ListenAddr       string `toml:"listen_addr"`
	StateDB          string `toml:"state_db"`
	UserID           string `toml:"user_id"`
	DefaultTimeZone  string `toml:"default_timezone"`
	PollInterval     string `toml:"poll_interval"`
	PollInitialDelay string `toml:"poll_initial_delay"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`

	Google  GoogleConfig  `toml:"google"`
	Session SessionConfig `toml:"session"`
	Finance FinanceConfig `toml:"finance"`
}

// GoogleConfig holds the OAuth client settings for Google Calendar.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
	AuthURL      string `toml:"auth_url"`
	BaseURL      string `toml:"base_url"`
}

// SessionConfig holds the API session token settings.
type SessionConfig struct {
	Secret string `toml:"secret"`
}

// FinanceConfig holds the finance integration settings.
type FinanceConfig struct {
	OpenAIAPIKey  string `toml:"openai_api_key"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	RatesBaseURL  string `toml:"rates_base_url"`
}

// DefaultConfig returns a Config populated with all default values. Used
// as the TOML decode target so unset fields keep their defaults, and as
// the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       defaultListenAddr,
		StateDB:          DefaultStateDBPath(),
		UserID:           defaultUserID,
		DefaultTimeZone:  defaultTimeZone,
		PollInterval:     defaultPollInterval,
		PollInitialDelay: defaultPollDelay,
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		Google: GoogleConfig{
			TokenURL: defaultGoogleTokenURL,
			AuthURL:  defaultGoogleAuthURL,
			BaseURL:  defaultCalendarBaseURL,
		},
		Finance: FinanceConfig{
			OpenAIBaseURL: defaultOpenAIBaseURL,
			RatesBaseURL:  defaultRatesBaseURL,
		},
	}
}

// Validate checks the configuration for contradictions and bad values.
func Validate(cfg *Config) error {
	if cfg.UserID == "" {
		return fmt.Errorf("user_id must not be empty")
	}

	if cfg.StateDB == "" {
		return fmt.Errorf("state_db must not be empty")
	}

	if _, err := time.ParseDuration(cfg.PollInterval); err != nil {
		return fmt.Errorf("poll_interval %q is not a duration: %w", cfg.PollInterval, err)
	}

	if _, err := time.ParseDuration(cfg.PollInitialDelay); err != nil {
		return fmt.Errorf("poll_initial_delay %q is not a duration: %w", cfg.PollInitialDelay, err)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("log_format %q is not one of auto, text, json", cfg.LogFormat)
	}

	if cfg.DefaultTimeZone != "" {
		if _, err := time.LoadLocation(cfg.DefaultTimeZone); err != nil {
			return fmt.Errorf("default_timezone %q is not a valid IANA zone: %w", cfg.DefaultTimeZone, err)
		}
	}

	return nil
}

// PollIntervalDuration returns the parsed poll interval. Call after
// Validate.
func (c *Config) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// PollInitialDelayDuration returns the parsed initial poll delay. Call
// after Validate.
func (c *Config) PollInitialDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInitialDelay)
	return d
}
