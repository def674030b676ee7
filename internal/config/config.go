// Package config loads lifeos settings from an optional YAML or TOML file,
// a .env file and the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode names what the process is about to do; each needs different settings
type Mode string

const (
	ModeServe Mode = "serve" // chat transport, model and scheduler
	ModeChat  Mode = "chat"  // terminal chat against the model
	ModeStore Mode = "store" // database only (init, sql, status, mcp)
)

const (
	TransportTelegram = "telegram"
	TransportDiscord  = "discord"
)

// DefaultFiles are looked up in the working directory when no path is given
var DefaultFiles = []string{"lifeos.yaml", "lifeos.yml", "lifeos.toml"}

// Config holds all settings
type Config struct {
	DBPath       string         `yaml:"db_path" toml:"db_path"`
	Transport    string         `yaml:"transport" toml:"transport"`
	PrincipalID  string         `yaml:"principal_id" toml:"principal_id"`
	NotifyChatID string         `yaml:"notify_chat_id" toml:"notify_chat_id"` // reminder target, defaults per transport
	Timezone     string         `yaml:"timezone" toml:"timezone"`
	PollInterval Duration       `yaml:"poll_interval" toml:"poll_interval"`
	LogLevel     string         `yaml:"log_level" toml:"log_level"`
	LogFile      string         `yaml:"log_file" toml:"log_file"`
	OpenAI       OpenAIConfig   `yaml:"openai" toml:"openai"`
	Telegram     TelegramConfig `yaml:"telegram" toml:"telegram"`
	Discord      DiscordConfig  `yaml:"discord" toml:"discord"`
	Agent        AgentConfig    `yaml:"agent" toml:"agent"`

	// Location is Timezone resolved by Load
	Location *time.Location `yaml:"-" toml:"-"`
	// Source is the file the settings came from, empty if none
	Source string `yaml:"-" toml:"-"`
}

// OpenAIConfig selects the model provider
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
}

// TelegramConfig holds bot settings
type TelegramConfig struct {
	Token   string `yaml:"token" toml:"token"`
	APIRoot string `yaml:"api_root" toml:"api_root"`
}

// DiscordConfig holds bot settings
type DiscordConfig struct {
	Token     string `yaml:"token" toml:"token"`
	ChannelID string `yaml:"channel_id" toml:"channel_id"`
}

// AgentConfig bounds the conversation loop
type AgentConfig struct {
	MaxTurns        int      `yaml:"max_turns" toml:"max_turns"`
	ProviderTimeout Duration `yaml:"provider_timeout" toml:"provider_timeout"`
	HistoryLimit    int      `yaml:"history_limit" toml:"history_limit"`
}

// Duration is a time.Duration written as "90s" or "1m" in config files
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		DBPath:       "lifeos.db",
		Transport:    TransportTelegram,
		PollInterval: Duration(time.Minute),
		LogLevel:     "info",
		Agent: AgentConfig{
			MaxTurns:        8,
			ProviderTimeout: Duration(60 * time.Second),
			HistoryLimit:    40,
		},
	}
}

// LoadDotenv loads .env from the working directory if present.
// It reports whether a file was loaded.
func LoadDotenv() bool {
	return godotenv.Load() == nil
}

// Load reads the config file at path (or LIFEOS_CONFIG, or a default file in
// the working directory), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("LIFEOS_CONFIG")
	}
	if path == "" {
		for _, name := range DefaultFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .yaml or .toml)", filepath.Ext(path))
	}
	c.Source = path
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LIFEOS_DB_PATH", &c.DBPath)
	str("LIFEOS_TRANSPORT", &c.Transport)
	str("LIFEOS_PRINCIPAL_ID", &c.PrincipalID)
	str("LIFEOS_NOTIFY_CHAT_ID", &c.NotifyChatID)
	str("LIFEOS_TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("LIFEOS_LOG_FILE", &c.LogFile)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("LIFEOS_MODEL", &c.OpenAI.Model)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)
	str("TELEGRAM_API_ROOT", &c.Telegram.APIRoot)
	str("DISCORD_TOKEN", &c.Discord.Token)
	str("DISCORD_CHANNEL_ID", &c.Discord.ChannelID)

	if v := os.Getenv("LIFEOS_POLL_INTERVAL"); v != "" {
		if err := c.PollInterval.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("LIFEOS_POLL_INTERVAL: %w", err)
		}
	}
	if v := os.Getenv("LIFEOS_PROVIDER_TIMEOUT"); v != "" {
		if err := c.Agent.ProviderTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("LIFEOS_PROVIDER_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("LIFEOS_MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LIFEOS_MAX_TURNS: %w", err)
		}
		c.Agent.MaxTurns = n
	}
	return nil
}

func (c *Config) resolve() error {
	c.Transport = strings.ToLower(c.Transport)
	if c.Timezone == "" {
		c.Location = time.Local
		return nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

// ReminderChatID is where reminders without a chat_id are delivered
func (c *Config) ReminderChatID() string {
	if c.NotifyChatID != "" {
		return c.NotifyChatID
	}
	if c.Transport == TransportDiscord {
		// empty means a DM with the principal, resolved once connected
		return c.Discord.ChannelID
	}
	// a private Telegram chat has the user's id
	return c.PrincipalID
}

// Validate checks that the settings needed for mode are present
func (c *Config) Validate(mode Mode) error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.Agent.MaxTurns < 0 {
		errs = append(errs, errors.New("agent.max_turns must not be negative"))
	}

	if mode == ModeServe || mode == ModeChat {
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required"))
		}
	}

	if mode == ModeServe {
		if c.PrincipalID == "" {
			errs = append(errs, errors.New("LIFEOS_PRINCIPAL_ID is required"))
		}
		switch c.Transport {
		case TransportTelegram:
			if c.Telegram.Token == "" {
				errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required for the telegram transport"))
			}
		case TransportDiscord:
			if c.Discord.Token == "" {
				errs = append(errs, errors.New("DISCORD_TOKEN is required for the discord transport"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown transport %q (use telegram or discord)", c.Transport))
		}
	}

	return errors.Join(errs...)
}
