package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "matebot.yaml", `
version: 1
telegram:
  token: abc
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRequiresVersion(t *testing.T) {
	path := writeConfig(t, "matebot.yaml", `
telegram:
  token: abc
`)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("MATEBOT_TEST_PASSWORD", "s3cr3t-password")
	path := writeConfig(t, "matebot.yaml", `
version: 1
telegram:
  token: "123:abc"
  rate_limit: 10
ledger:
  url: https://core.example.org/v1
  password: ${MATEBOT_TEST_PASSWORD}
  timeout: 3s
  retry:
    max_attempts: 5
    initial_delay: 50ms
currency:
  digits: 2
  factor: 100
  symbol: "€"
  max_amount: 20000
commands:
  consumable_commands: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ledger.Password != "s3cr3t-password" {
		t.Errorf("password = %q, want the expanded env var", cfg.Ledger.Password)
	}
	if cfg.Ledger.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", cfg.Ledger.Timeout)
	}
	if cfg.Ledger.Retry.MaxAttempts != 5 || cfg.Ledger.Retry.InitialDelay != 50*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Ledger.Retry)
	}
	if cfg.Currency.MaxAmount != 20000 || !cfg.Commands.ConsumableCommands {
		t.Errorf("currency/commands = %+v %+v", cfg.Currency, cfg.Commands)
	}
	if cfg.Telegram.Mode != "polling" || cfg.Telegram.RateLimit != 10 || cfg.Telegram.RateBurst != 5 {
		t.Errorf("telegram defaults = %+v", cfg.Telegram)
	}
	if cfg.Logging.Format != "json" || cfg.Metrics.Listen != ":9090" {
		t.Errorf("defaults not applied: %+v %+v", cfg.Logging, cfg.Metrics)
	}
	if err := cfg.ValidateRemote(); err != nil {
		t.Errorf("ValidateRemote() error = %v", err)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		file     string
		contents string
	}{
		{
			file: "matebot.json5",
			contents: `{
  // comments are allowed
  version: 1,
  currency: {digits: 2, factor: 100, symbol: "CHF"},
  ledger: {timeout: "7s"},
}`,
		},
		{
			file: "matebot.toml",
			contents: `
version = 1

[currency]
digits = 2
factor = 100
symbol = "CHF"

[ledger]
timeout = "7s"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.file, tt.contents))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Currency.Symbol != "CHF" || cfg.Currency.Factor != 100 {
				t.Errorf("currency = %+v", cfg.Currency)
			}
			if cfg.Ledger.Timeout != 7*time.Second {
				t.Errorf("timeout = %v, want 7s", cfg.Ledger.Timeout)
			}
		})
	}
}

func TestLoadCurrency(t *testing.T) {
	tests := []struct {
		name       string
		currency   string
		wantDigits int
		wantFactor int64
		wantErr    string
	}{
		{name: "unset", currency: "symbol: €", wantDigits: 2, wantFactor: 100},
		{name: "digits only", currency: "digits: 3", wantDigits: 3, wantFactor: 1000},
		{name: "whole units", currency: "digits: 0\n  factor: 1", wantDigits: 0, wantFactor: 1},
		{name: "mismatch", currency: "digits: 1\n  factor: 100", wantErr: "currency.factor must be 10 for 1 digits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "matebot.yaml", "version: 1\ncurrency:\n  "+tt.currency+"\n")
			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Currency.Digits != tt.wantDigits || cfg.Currency.Factor != tt.wantFactor {
				t.Errorf("currency = %+v, want digits=%d factor=%d", cfg.Currency, tt.wantDigits, tt.wantFactor)
			}
		})
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "secrets.toml"), `
[telegram]
token = "123:from-include"

[ledger]
password = "included-password"
`)
	path := writeFile(t, filepath.Join(dir, "matebot.yaml"), `
$include: secrets.toml
version: 1
telegram:
  mode: polling
ledger:
  url: http://localhost:8000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Telegram.Token != "123:from-include" || cfg.Ledger.Password != "included-password" {
		t.Errorf("included values missing: %+v %+v", cfg.Telegram, cfg.Ledger)
	}
	if cfg.Ledger.URL != "http://localhost:8000" {
		t.Errorf("ledger.url = %q", cfg.Ledger.URL)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "$include: b.yaml\nversion: 1\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "$include: a.yaml\n")

	if _, err := Load(filepath.Join(dir, "a.yaml")); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad mode", mutate: func(c *Config) { c.Telegram.Mode = "push" }, wantErr: "telegram.mode"},
		{name: "webhook without url", mutate: func(c *Config) { c.Telegram.Mode = "webhook" }, wantErr: "webhook_url"},
		{
			name: "webhook with url",
			mutate: func(c *Config) {
				c.Telegram.Mode = "webhook"
				c.Telegram.WebhookURL = "https://bot.example.org/hook"
			},
		},
		{name: "bad ledger url", mutate: func(c *Config) { c.Ledger.URL = "core.example.org" }, wantErr: "ledger.url"},
		{name: "too many digits", mutate: func(c *Config) { c.Currency.Digits = 12 }, wantErr: "currency.digits"},
		{name: "factor without digits", mutate: func(c *Config) { c.Currency.Factor = 1000 }, wantErr: "currency.factor must be 100 for 2 digits"},
		{
			name: "matching digits and factor",
			mutate: func(c *Config) {
				c.Currency.Digits = 3
				c.Currency.Factor = 1000
			},
		},
		{name: "long symbol", mutate: func(c *Config) { c.Currency.Symbol = "EURO€" }, wantErr: "currency.symbol"},
		{name: "negative max", mutate: func(c *Config) { c.Currency.MaxAmount = -1 }, wantErr: "max_amount"},
		{name: "empty prefix", mutate: func(c *Config) { c.Commands.Prefixes = []string{"/", " "} }, wantErr: "commands.prefixes"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRemote(t *testing.T) {
	err := Default().ValidateRemote()
	if err == nil {
		t.Fatal("expected error without token and ledger")
	}
	for _, want := range []string{"telegram.token", "ledger.url", "ledger.password"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	return writeFile(t, filepath.Join(t.TempDir(), name), contents)
}

func writeFile(t *testing.T, path, contents string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
