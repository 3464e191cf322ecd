// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON file and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address" env:"SERVER_ADDRESS"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn" env:"DATABASE_URL"`

	// Config is the path to the Config file.
	Config string `json:"-" env:"CONFIG"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	// JWTSecret signs access, refresh, two-factor and unlock tokens.
	JWTSecret     string        `json:"jwt_secret" env:"JWT_SECRET"`
	AccessTTL     time.Duration `json:"access_ttl" env:"ACCESS_TOKEN_TTL"`
	RefreshTTL    time.Duration `json:"refresh_ttl" env:"REFRESH_TOKEN_TTL"`
	PendingTTL    time.Duration `json:"pending_ttl" env:"TWO_FACTOR_PENDING_TTL"`
	UnlockTTL     time.Duration `json:"unlock_ttl" env:"SHARE_UNLOCK_TTL"`
	CookieSecure  bool          `json:"cookie_secure" env:"COOKIE_SECURE"`
	TOTPIssuer    string        `json:"totp_issuer" env:"TOTP_ISSUER"`
	LoginRate     float64       `json:"login_rate" env:"LOGIN_RATE_PER_SECOND"`
	UnlockRate    float64       `json:"unlock_rate" env:"UNLOCK_RATE_PER_SECOND"`
	RateBurst     int           `json:"rate_burst" env:"RATE_BURST"`
	ShareRetain   time.Duration `json:"share_retention" env:"SHARE_LINK_RETENTION"`
	CleanInterval time.Duration `json:"clean_interval" env:"SHARE_LINK_CLEAN_INTERVAL"`

	// OpenAI settings.
	OpenAIKey     string  `json:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `json:"openai_base_url" env:"OPENAI_BASE_URL"`
	OpenAIModel   string  `json:"openai_model" env:"OPENAI_MODEL"`
	Temperature   float32 `json:"temperature" env:"OPENAI_TEMPERATURE"`
	SystemPrompt  string  `json:"system_prompt" env:"SYSTEM_PROMPT"`
	HistoryLimit  int     `json:"history_limit" env:"HISTORY_LIMIT"`

	// Chat platforms. A platform is disabled when its credentials are empty.
	LineChannelSecret string `json:"line_channel_secret" env:"LINE_CHANNEL_SECRET"`
	LineChannelToken  string `json:"line_channel_access_token" env:"LINE_CHANNEL_ACCESS_TOKEN"`
	DiscordToken      string `json:"discord_token" env:"DISCORD_TOKEN"`
	TelegramToken     string `json:"telegram_token" env:"TELEGRAM_BOT_TOKEN"`

	// Scheduler settings.
	ScheduleFile string `json:"schedule_file" env:"SCHEDULE_FILE"`
	TimeZone     string `json:"time_zone" env:"SCHEDULE_TIMEZONE"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Only safe behind a proxy that sets those headers itself.
	TrustProxyHeaders bool `json:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`

	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool `json:"metrics_enabled" env:"METRICS_ENABLED"`
}

// options holds the current configuration values.
var options = Default()

// Default returns Options populated with built-in defaults.
func Default() *Options {
	return &Options{
		Port:          "localhost:8080",
		LogLevel:      "Info",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		PendingTTL:    5 * time.Minute,
		UnlockTTL:     30 * time.Minute,
		TOTPIssuer:    "ShaoNoteTool",
		LoginRate:     1,
		UnlockRate:    0.5,
		RateBurst:     5,
		ShareRetain:   30 * 24 * time.Hour,
		CleanInterval: time.Hour,
		OpenAIModel:   "gpt-4.1-mini",
		Temperature:   0.6,
		HistoryLimit:  12,
		ScheduleFile:  "configs/schedules.yaml",
		TimeZone:      "Asia/Taipei",
	}
}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	flag.StringVar(&options.ScheduleFile, "s", options.ScheduleFile, "path to the reminder schedule file")
}

// Parse parses the command-line flags, the JSON config file and environment
// variables, in that order of increasing precedence. It returns a pointer to
// the Options struct containing the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	if err := Load(options); err != nil {
		log.Fatalf("error while loading config: %v", err)
	}
	return options
}

// Load overlays the JSON config file named by o.Config (or $CONFIG) and then
// environment variables onto o. A missing config file is not an error.
func Load(o *Options) error {
	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}

	if o.Config != "" {
		if _, err := os.Stat(o.Config); err == nil {
			data, err := os.ReadFile(o.Config)
			if err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			if err := json.Unmarshal(data, o); err != nil {
				return fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// duration decodes from a Go duration string such as "15m" or from an
// integer count of nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s: %w", data, err)
	}
	*d = duration(n)
	return nil
}

// UnmarshalJSON reads the config file. Duration keys take either a string
// like "15m" or integer nanoseconds.
func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	aux := struct {
		*plain
		AccessTTL     *duration `json:"access_ttl"`
		RefreshTTL    *duration `json:"refresh_ttl"`
		PendingTTL    *duration `json:"pending_ttl"`
		UnlockTTL     *duration `json:"unlock_ttl"`
		ShareRetain   *duration `json:"share_retention"`
		CleanInterval *duration `json:"clean_interval"`
	}{
		plain:         (*plain)(o),
		AccessTTL:     (*duration)(&o.AccessTTL),
		RefreshTTL:    (*duration)(&o.RefreshTTL),
		PendingTTL:    (*duration)(&o.PendingTTL),
		UnlockTTL:     (*duration)(&o.UnlockTTL),
		ShareRetain:   (*duration)(&o.ShareRetain),
		CleanInterval: (*duration)(&o.CleanInterval),
	}
	return json.Unmarshal(data, &aux)
}

// Validate reports configuration that makes the server unusable.
func (o *Options) Validate() error {
	if o.DatabaseDSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if len(o.JWTSecret) < 16 {
		return fmt.Errorf("jwt secret must be at least 16 characters")
	}
	if _, err := time.LoadLocation(o.TimeZone); err != nil {
		return fmt.Errorf("time zone %q: %w", o.TimeZone, err)
	}
	return nil
}
