package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/rebalance/allocate"
	"github.com/rustyeddy/rebalance/idempotency"
	"github.com/rustyeddy/rebalance/journal"
	"github.com/rustyeddy/rebalance/logger"
	"github.com/rustyeddy/rebalance/risk"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REBALANCE_"

// Config represents the complete rebalancer configuration
type Config struct {
	Policy      string       `json:"policy" yaml:"policy"`
	Granularity string       `json:"granularity" yaml:"granularity"` // "daily" or "hourly"
	Store       StoreConfig  `json:"store" yaml:"store"`
	Broker      BrokerConfig `json:"broker" yaml:"broker"`
	Engine      EngineConfig `json:"engine" yaml:"engine"`

	Guardrails        risk.Limits `json:"guardrails" yaml:"guardrails"`
	EnforceGuardrails bool        `json:"enforce_guardrails" yaml:"enforce_guardrails"`

	Schedule string        `json:"schedule,omitempty" yaml:"schedule,omitempty"` // cron spec for `schedule`
	Log      logger.Config `json:"log" yaml:"log"`
}

// StoreConfig selects where run records live
type StoreConfig struct {
	Type   string `json:"type" yaml:"type"` // "file" or "sqlite"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// Location is the directory or database path for the configured type.
func (s StoreConfig) Location() string {
	if s.Type == journal.TypeSQLite {
		return s.DBPath
	}
	return s.Dir
}

// BrokerConfig configures the paper broker
type BrokerConfig struct {
	SnapshotPath    string `json:"snapshot_path" yaml:"snapshot_path"`
	PersistSnapshot bool   `json:"persist_snapshot" yaml:"persist_snapshot"`
}

// EngineConfig carries allocation engine options
type EngineConfig struct {
	RoundToUSD       float64 `json:"round_to_usd" yaml:"round_to_usd"`
	NoopIfWithinBand bool    `json:"noop_if_within_band" yaml:"noop_if_within_band"`
}

func (e EngineConfig) Options() allocate.Options {
	return allocate.Options{RoundToUSD: e.RoundToUSD, NoopIfWithinBand: e.NoopIfWithinBand}
}

// LoadFromFile loads configuration from a file (YAML or JSON). Fields the
// file leaves out keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load resolves the effective configuration: defaults, then the file at
// path if one is given, then a .env file and REBALANCE_* variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}

	// a missing .env is normal
	_ = godotenv.Load()

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from REBALANCE_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Policy = getEnv("POLICY", c.Policy)
	c.Granularity = getEnv("GRANULARITY", c.Granularity)
	c.Store.Type = getEnv("STORE_TYPE", c.Store.Type)
	c.Store.Dir = getEnv("STORE_DIR", c.Store.Dir)
	c.Store.DBPath = getEnv("STORE_DB_PATH", c.Store.DBPath)
	c.Broker.SnapshotPath = getEnv("SNAPSHOT", c.Broker.SnapshotPath)
	c.Schedule = getEnv("SCHEDULE", c.Schedule)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	var err error
	if c.Broker.PersistSnapshot, err = getEnvAsBool("PERSIST_SNAPSHOT", c.Broker.PersistSnapshot); err != nil {
		return err
	}
	if c.EnforceGuardrails, err = getEnvAsBool("ENFORCE_GUARDRAILS", c.EnforceGuardrails); err != nil {
		return err
	}
	if c.Log.Pretty, err = getEnvAsBool("LOG_PRETTY", c.Log.Pretty); err != nil {
		return err
	}
	if c.Guardrails.MaxPositionPct, err = getEnvAsFloat("MAX_POSITION_PCT", c.Guardrails.MaxPositionPct); err != nil {
		return err
	}
	if c.Guardrails.DailySpendLimit, err = getEnvAsFloat("DAILY_SPEND_LIMIT", c.Guardrails.DailySpendLimit); err != nil {
		return err
	}
	if c.Guardrails.LargeOrderThreshold, err = getEnvAsFloat("LARGE_ORDER_THRESHOLD", c.Guardrails.LargeOrderThreshold); err != nil {
		return err
	}
	return nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := idempotency.ParseGranularity(c.Granularity); err != nil {
		return fmt.Errorf("granularity: %w", err)
	}
	switch c.Store.Type {
	case journal.TypeFile:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir required for file type")
		}
	case journal.TypeSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("store.db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("store.type must be 'file' or 'sqlite'")
	}
	if c.Broker.SnapshotPath == "" {
		return fmt.Errorf("broker.snapshot_path is required")
	}
	if c.Engine.RoundToUSD < 0 || math.IsNaN(c.Engine.RoundToUSD) {
		return fmt.Errorf("engine.round_to_usd must not be negative")
	}

	g := c.Guardrails
	if !(g.MaxPositionPct > 0 && g.MaxPositionPct <= 1) {
		return fmt.Errorf("guardrails.maxPositionPct must be in (0, 1]")
	}
	if !(g.DailySpendLimit >= 0) || math.IsInf(g.DailySpendLimit, 0) {
		return fmt.Errorf("guardrails.dailySpendLimit must be a non-negative number")
	}
	if !(g.LargeOrderThreshold > 0 && g.LargeOrderThreshold <= 1) {
		return fmt.Errorf("guardrails.largeOrderThreshold must be in (0, 1]")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Policy:      "./policy.yaml",
		Granularity: string(idempotency.Daily),
		Store: StoreConfig{
			Type: journal.TypeFile,
			Dir:  "./runs",
		},
		Broker: BrokerConfig{
			SnapshotPath: "./snapshot.json",
		},
		Engine: EngineConfig{
			RoundToUSD: allocate.DefaultRoundToUSD,
		},
		Guardrails:        risk.DefaultLimits(),
		EnforceGuardrails: true,
		Schedule:          "0 15 * * 1-5",
		Log: logger.Config{
			Level: "info",
		},
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return f, nil
}
