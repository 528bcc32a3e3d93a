package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"paper_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수로 일부 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Ledger struct {
		BaseCurrency   string          `yaml:"base_currency"`
		InitialDeposit decimal.Decimal `yaml:"initial_deposit"`
	} `yaml:"ledger"`

	Engine struct {
		InboxSize     int    `yaml:"inbox_size"`
		SnapshotEvery uint64 `yaml:"snapshot_every"` // 0 disables periodic snapshots
		DumpFile      string `yaml:"dump_file"`
	} `yaml:"engine"`

	Storage struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	Server struct {
		Addr             string `yaml:"addr"`
		ReadTimeoutSec   int    `yaml:"read_timeout_sec"`
		WriteTimeoutSec  int    `yaml:"write_timeout_sec"`
		StreamBufferSize int    `yaml:"stream_buffer_size"`
	} `yaml:"server"`

	Logging struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "paper-ledger"
	cfg.App.Version = "dev"
	cfg.Ledger.BaseCurrency = domain.DefaultBaseCurrency
	cfg.Ledger.InitialDeposit = decimal.Zero
	cfg.Engine.InboxSize = 1024
	cfg.Engine.SnapshotEvery = 1000
	cfg.Engine.DumpFile = "panic_dump.json"
	cfg.Storage.Enabled = true
	cfg.Storage.Path = "data/ledger.db"
	cfg.Server.Addr = "localhost:8080"
	cfg.Server.ReadTimeoutSec = 10
	cfg.Server.WriteTimeoutSec = 10
	cfg.Server.StreamBufferSize = 256
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// 파일이 없으면 ErrConfigNotFound를 감싼 에러를 반환합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadConfigOrDefault falls back to DefaultConfig when path does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, domain.ErrConfigNotFound) {
		cfg = DefaultConfig()
		overrideWithEnv(cfg)
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Ledger.BaseCurrency) == "" {
		return &domain.ConfigError{Field: "ledger.base_currency", Err: errors.New("must not be empty")}
	}
	if c.Engine.InboxSize <= 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("must be positive")}
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return &domain.ConfigError{Field: "storage.path", Err: errors.New("required when storage is enabled")}
	}
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("must not be empty")}
	}
	if c.Server.StreamBufferSize <= 0 {
		return &domain.ConfigError{Field: "server.stream_buffer_size", Err: errors.New("must be positive")}
	}
	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("PAPER_LEDGER_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("PAPER_LEDGER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("PAPER_LEDGER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	cfg.Ledger.BaseCurrency = strings.ToLower(strings.TrimSpace(cfg.Ledger.BaseCurrency))
}
