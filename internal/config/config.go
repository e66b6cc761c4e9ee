// Package config loads and validates daemon configuration from JSON files
// and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the top-level contrabot configuration.
type Config struct {
	Bot        BotConfig       `json:"bot"`
	Connectors ConnectorConfig `json:"connectors"`
	Booking    BookingConfig   `json:"booking"`
	API        APIConfig       `json:"api"`
}

// BotConfig holds daemon-level settings.
type BotConfig struct {
	DataDir   string `json:"data_dir"`
	UsersFile string `json:"users_file,omitempty"` // defaults to <data_dir>/users.json
}

// ConnectorConfig holds settings for chat platform connectors.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty"`
}

// SlackConfig holds Slack Socket Mode settings.
type SlackConfig struct {
	BotToken string   `json:"bot_token"`
	AppToken string   `json:"app_token"`
	Channels []string `json:"channels,omitempty"`
}

// BookingConfig holds window-polling and browser-automation settings.
type BookingConfig struct {
	WebDriverURL     string `json:"webdriver_url,omitempty"` // defaults to http://localhost:4444
	Headless         bool   `json:"headless"`
	StepDelaySeconds int    `json:"step_delay_seconds,omitempty"` // defaults to 5
	PollSeconds      int    `json:"poll_seconds,omitempty"`       // defaults to 60
	CitiesURL        string `json:"cities_url,omitempty"`         // defaults to the carrier API
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// UsersPath returns the resolved traveler-profile file path.
func (c *Config) UsersPath() string {
	if c.Bot.UsersFile != "" {
		return c.Bot.UsersFile
	}
	return filepath.Join(c.Bot.DataDir, "users.json")
}

// HistoryPath returns the booking-attempt database path.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Bot.DataDir, "history.db")
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with CONTRABOT_
// prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Bot: BotConfig{
			DataDir:   getenv("CONTRABOT_DATA_DIR", "/data"),
			UsersFile: os.Getenv("CONTRABOT_USERS_FILE"),
		},
		Booking: BookingConfig{
			WebDriverURL:     os.Getenv("CONTRABOT_WEBDRIVER_URL"),
			Headless:         getenvBool("CONTRABOT_HEADLESS", true),
			StepDelaySeconds: getenvInt("CONTRABOT_STEP_DELAY_SECONDS", 0),
			PollSeconds:      getenvInt("CONTRABOT_POLL_SECONDS", 0),
			CitiesURL:        os.Getenv("CONTRABOT_CITIES_URL"),
		},
		API: APIConfig{
			Host: getenv("CONTRABOT_API_HOST", "0.0.0.0"),
			Port: getenvInt("CONTRABOT_API_PORT", 8080),
			Key:  os.Getenv("CONTRABOT_API_KEY"),
		},
	}

	if token := os.Getenv("CONTRABOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
		if ids := os.Getenv("CONTRABOT_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: CONTRABOT_TELEGRAM_ALLOW_FROM: %w", err)
			}
			cfg.Connectors.Telegram.AllowFrom = parsed
		}
	}

	if botToken := os.Getenv("CONTRABOT_SLACK_BOT_TOKEN"); botToken != "" {
		cfg.Connectors.Slack = &SlackConfig{
			BotToken: botToken,
			AppToken: os.Getenv("CONTRABOT_SLACK_APP_TOKEN"),
		}
		if channels := os.Getenv("CONTRABOT_SLACK_CHANNELS"); channels != "" {
			cfg.Connectors.Slack.Channels = parseStringList(channels)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for required fields.
func (c *Config) Validate() error {
	var errs []string

	if c.Bot.DataDir == "" {
		errs = append(errs, "bot.data_dir is required")
	}

	if c.Connectors.Telegram != nil && c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if c.Connectors.Slack != nil {
		if c.Connectors.Slack.BotToken == "" {
			errs = append(errs, "connectors.slack.bot_token is required")
		}
		if c.Connectors.Slack.AppToken == "" {
			errs = append(errs, "connectors.slack.app_token is required")
		}
	}

	if c.Booking.StepDelaySeconds < 0 {
		errs = append(errs, "booking.step_delay_seconds must not be negative")
	}
	if c.Booking.PollSeconds < 0 {
		errs = append(errs, "booking.poll_seconds must not be negative")
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be a valid port number")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
