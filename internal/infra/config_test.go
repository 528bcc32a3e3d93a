package infra

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"paper_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: test-ledger
ledger:
  base_currency: USD
  initial_deposit: "1000.50"
engine:
  inbox_size: 16
storage:
  enabled: false
server:
  addr: ":9999"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "test-ledger" {
		t.Errorf("Expected name test-ledger, got %s", cfg.App.Name)
	}
	if cfg.Ledger.BaseCurrency != "usd" {
		t.Errorf("Expected base currency to be lower-cased, got %s", cfg.Ledger.BaseCurrency)
	}
	if !cfg.Ledger.InitialDeposit.Equal(decimal.RequireFromString("1000.5")) {
		t.Errorf("Expected deposit 1000.5, got %s", cfg.Ledger.InitialDeposit)
	}
	if cfg.Engine.InboxSize != 16 {
		t.Errorf("Expected inbox 16, got %d", cfg.Engine.InboxSize)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.StreamBufferSize != 256 {
		t.Errorf("Expected default stream buffer 256, got %d", cfg.Server.StreamBufferSize)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":1\"\n")
	t.Setenv("PAPER_LEDGER_ADDR", ":2")
	t.Setenv("PAPER_LEDGER_DB_PATH", "/tmp/other.db")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Addr != ":2" {
		t.Errorf("Expected env addr :2, got %s", cfg.Server.Addr)
	}
	if cfg.Storage.Path != "/tmp/other.db" {
		t.Errorf("Expected env db path, got %s", cfg.Storage.Path)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}

	cfg, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigOrDefault failed: %v", err)
	}
	if cfg.Ledger.BaseCurrency != "usd" {
		t.Errorf("Expected default base currency usd, got %s", cfg.Ledger.BaseCurrency)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty base currency", func(c *Config) { c.Ledger.BaseCurrency = " " }, "ledger.base_currency"},
		{"zero inbox", func(c *Config) { c.Engine.InboxSize = 0 }, "engine.inbox_size"},
		{"storage without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *domain.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cerr.Field)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Error("Expected debug level")
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("Expected info level for unknown value")
	}
}
