// Package config loads the application YAML file and the secrets env file
// into typed per-component sections.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/Shoebbirader4/Upstockbot/internal/backtest/engine"
	"github.com/Shoebbirader4/Upstockbot/internal/features"
	"github.com/Shoebbirader4/Upstockbot/internal/gates"
	"github.com/Shoebbirader4/Upstockbot/internal/infrastructure/db"
	httpapi "github.com/Shoebbirader4/Upstockbot/internal/interfaces/http"
	"github.com/Shoebbirader4/Upstockbot/internal/labels"
	applog "github.com/Shoebbirader4/Upstockbot/internal/log"
	"github.com/Shoebbirader4/Upstockbot/internal/persistence/redisstore"
	"github.com/Shoebbirader4/Upstockbot/internal/report/perf"
	"github.com/Shoebbirader4/Upstockbot/internal/walkforward"
)

const (
	DefaultPath        = "config/config.yaml"
	DefaultSecretsPath = "config/secrets.env"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Config is the whole application configuration
type Config struct {
	Backtest    engine.Config           `yaml:"backtest"`
	Risk        gates.RiskConfig        `yaml:"risk"`
	WalkForward walkforward.Config      `yaml:"walk_forward"`
	Features    features.Config         `yaml:"features"`
	Labels      labels.Config           `yaml:"labels"`
	Model       walkforward.ModelParams `yaml:"model"`
	Logging     applog.Config           `yaml:"logging"`
	Database    db.Config               `yaml:"database"`
	Redis       redisstore.Config       `yaml:"redis"`
	HTTP        httpapi.ServerConfig    `yaml:"http"`
	Alerts      perf.AlertThresholds    `yaml:"alerts"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Backtest:    engine.DefaultConfig(),
		Risk:        gates.DefaultRiskConfig(),
		WalkForward: walkforward.DefaultConfig(),
		Features:    features.DefaultConfig(),
		Labels:      labels.DefaultConfig(),
		Model:       walkforward.ModelParams{"type": "softmax"},
		Logging:     applog.DefaultConfig(),
		Database:    db.DefaultConfig(),
		Redis:       redisstore.DefaultConfig(),
		HTTP:        httpapi.DefaultServerConfig(),
		Alerts:      perf.DefaultAlertThresholds(),
	}
}

// Load reads path over the defaults, then applies secrets from secretsPath
// and the environment. A missing file of either kind is not an error.
func Load(path, secretsPath string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("path", path).Msg("Config file not found, using defaults")
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := LoadSecrets(secretsPath); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of cfg. Sections and keys left out keep their
// current values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if cfg.Model == nil {
		cfg.Model = walkforward.ModelParams{}
	}
	if cfg.Model.Type("") == "" {
		cfg.Model["type"] = "softmax"
	}
	return nil
}

// LoadSecrets loads KEY=value pairs into the process environment without
// overriding variables that are already set.
func LoadSecrets(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	log.Debug().Str("path", path).Msg("Loaded secrets file")
	return nil
}

// ApplyEnv copies connection secrets from the environment
func (c *Config) ApplyEnv() {
	c.Database.ApplyEnv()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
}

// Validate checks every section
func (c Config) Validate() error {
	checks := []struct {
		section string
		err     error
	}{
		{"backtest", c.Backtest.Validate()},
		{"risk", c.Risk.Validate()},
		{"walk_forward", c.WalkForward.Validate()},
		{"features", validateFeatures(c.Features)},
		{"labels", validateLabels(c.Labels)},
		{"logging", c.Logging.Validate()},
		{"database", c.Database.Validate()},
		{"redis", c.Redis.Validate()},
		{"http", c.HTTP.Validate()},
	}
	for _, chk := range checks {
		if chk.err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, chk.section, chk.err)
		}
	}
	return nil
}

// Save writes cfg as YAML
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func validateFeatures(f features.Config) error {
	if f.ATRPeriod < 1 || f.RSIPeriod < 1 || f.VolumeWindow < 1 || f.FastEMA < 1 || f.SlowEMA < 1 {
		return fmt.Errorf("indicator windows must be at least 1")
	}
	if f.FastEMA >= f.SlowEMA {
		return fmt.Errorf("fast_ema (%d) must be shorter than slow_ema (%d)", f.FastEMA, f.SlowEMA)
	}
	return nil
}

func validateLabels(l labels.Config) error {
	if l.HorizonBars < 1 {
		return fmt.Errorf("horizon_bars must be at least 1, got %d", l.HorizonBars)
	}
	if l.SellThreshold > l.BuyThreshold {
		return fmt.Errorf("sell_threshold %v is above buy_threshold %v", l.SellThreshold, l.BuyThreshold)
	}
	return nil
}
