// Package config loads the bot configuration from YAML, JSON5 or TOML files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hopfenspace/matebot-telegram/internal/retry"
)

// Config is the main configuration structure for the bot.
type Config struct {
	Version  int            `yaml:"version"`
	Telegram TelegramConfig `yaml:"telegram"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Currency CurrencyConfig `yaml:"currency"`
	Commands CommandsConfig `yaml:"commands"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig configures the bot account and how updates arrive.
type TelegramConfig struct {
	Token string `yaml:"token"`
	// Mode is "polling" or "webhook".
	Mode          string `yaml:"mode"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	ListenAddr    string `yaml:"listen_addr"`
	// RateLimit is the number of outgoing messages per second.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// LedgerConfig points at the MateBot core service.
type LedgerConfig struct {
	URL         string        `yaml:"url"`
	Application string        `yaml:"application"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	Retry       retry.Policy  `yaml:"retry"`
}

// CurrencyConfig describes how amounts are written and shown.
type CurrencyConfig struct {
	// Digits is the number of fractional digits users may type.
	Digits int `yaml:"digits"`
	// Factor converts minor units to the displayed value.
	Factor int64  `yaml:"factor"`
	Symbol string `yaml:"symbol"`
	// MaxAmount caps a single amount in minor units; 0 disables the cap.
	MaxAmount int64 `yaml:"max_amount"`
}

// CommandsConfig tunes command handling.
type CommandsConfig struct {
	// Prefixes start a command; Telegram clients only offer "/".
	Prefixes []string `yaml:"prefixes"`
	// ConsumableCommands registers one command per consumable, like /mate.
	ConsumableCommands bool `yaml:"consumable_commands"`
	// AllowExternal lets users send money to users of other applications.
	AllowExternal bool `yaml:"allow_external"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, merges and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = "polling"
	}
	if cfg.Telegram.ListenAddr == "" {
		cfg.Telegram.ListenAddr = ":8443"
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 25
	}
	if cfg.Telegram.RateBurst == 0 {
		cfg.Telegram.RateBurst = 5
	}
	if cfg.Ledger.Application == "" {
		cfg.Ledger.Application = "telegram"
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 10 * time.Second
	}
	if cfg.Ledger.UserAgent == "" {
		cfg.Ledger.UserAgent = "matebot-telegram"
	}
	if cfg.Ledger.Retry == (retry.Policy{}) {
		cfg.Ledger.Retry = retry.DefaultPolicy()
	}
	if cfg.Currency.Factor == 0 {
		if cfg.Currency.Digits == 0 {
			cfg.Currency.Digits = 2
		}
		cfg.Currency.Factor = pow10(cfg.Currency.Digits)
	}
	if cfg.Currency.Symbol == "" {
		cfg.Currency.Symbol = "€"
	}
	if len(cfg.Commands.Prefixes) == 0 {
		cfg.Commands.Prefixes = []string{"/"}
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// pow10 returns 10^n for small non-negative n.
func pow10(n int) int64 {
	f := int64(1)
	for i := 0; i < n && i < 18; i++ {
		f *= 10
	}
	return f
}

// Validate checks the values of a loaded configuration.
func (c *Config) Validate() error {
	var issues []string

	switch c.Telegram.Mode {
	case "polling":
	case "webhook":
		if _, err := url.ParseRequestURI(c.Telegram.WebhookURL); err != nil {
			issues = append(issues, "telegram.webhook_url must be an absolute URL in webhook mode")
		}
	default:
		issues = append(issues, fmt.Sprintf("telegram.mode must be polling or webhook, got %q", c.Telegram.Mode))
	}
	if c.Telegram.RateLimit < 0 || c.Telegram.RateBurst < 0 {
		issues = append(issues, "telegram.rate_limit and telegram.rate_burst must not be negative")
	}

	if c.Ledger.URL != "" {
		if u, err := url.Parse(c.Ledger.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, "ledger.url must be an http or https URL")
		}
	}
	if c.Ledger.Timeout < 0 {
		issues = append(issues, "ledger.timeout must not be negative")
	}

	if c.Currency.Digits < 0 || c.Currency.Digits > 9 {
		issues = append(issues, "currency.digits must be between 0 and 9")
	}
	if c.Currency.Factor <= 0 {
		issues = append(issues, "currency.factor must be positive")
	} else if c.Currency.Digits >= 0 && c.Currency.Digits <= 9 && c.Currency.Factor != pow10(c.Currency.Digits) {
		issues = append(issues, fmt.Sprintf("currency.factor must be %d for %d digits, got %d",
			pow10(c.Currency.Digits), c.Currency.Digits, c.Currency.Factor))
	}
	if n := utf8.RuneCountInString(c.Currency.Symbol); n < 1 || n > 4 {
		issues = append(issues, "currency.symbol must have 1 to 4 characters")
	}
	if c.Currency.MaxAmount < 0 {
		issues = append(issues, "currency.max_amount must not be negative")
	}

	for _, p := range c.Commands.Prefixes {
		if strings.TrimSpace(p) == "" {
			issues = append(issues, "commands.prefixes must not contain empty prefixes")
			break
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	if len(issues) > 0 {
		return fmt.Errorf("invalid config:\n- %s", strings.Join(issues, "\n- "))
	}
	return nil
}

// ValidateRemote checks the settings needed to talk to Telegram and the
// ledger, which offline commands do not need.
func (c *Config) ValidateRemote() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if strings.TrimSpace(c.Ledger.URL) == "" {
		errs = append(errs, errors.New("ledger.url is required"))
	}
	if strings.TrimSpace(c.Ledger.Password) == "" {
		errs = append(errs, errors.New("ledger.password is required"))
	}
	return errors.Join(errs...)
}
