// Package config loads and validates the engine configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"iacgate/internal/calibration"
	"iacgate/internal/ensemble"
	"iacgate/internal/gate"
)

// Judge kinds accepted in configuration.
const (
	JudgeKindGemini = "gemini"
	JudgeKindOpenAI = "openai"
	JudgeKindStatic = "static"
)

// JudgeConfig describes one configured judge.
type JudgeConfig struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Model string `yaml:"model,omitempty"`
}

// GateConfig mirrors gate.Config in yaml form.
type GateConfig struct {
	Tau   float64 `yaml:"tau"`
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

// CalibrationConfig tunes the tracker and its backing store.
type CalibrationConfig struct {
	StorePath        string `yaml:"store_path"`
	MinBucketSamples int    `yaml:"min_bucket_samples"`
	Buckets          int    `yaml:"buckets"`
}

// CacheConfig controls the content-addressed verdict cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Judges      []JudgeConfig     `yaml:"judges"`
	BudgetMS    int               `yaml:"budget_ms"`
	Gate        GateConfig        `yaml:"gate"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Cache       CacheConfig       `yaml:"cache"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	g := gate.DefaultConfig()
	return Config{
		Judges: []JudgeConfig{
			{Name: "gemini", Kind: JudgeKindGemini},
			{Name: "openai", Kind: JudgeKindOpenAI},
		},
		BudgetMS: int(ensemble.DefaultBudget / time.Millisecond),
		Gate:     GateConfig{Tau: g.Tau, Alpha: g.Alpha, Beta: g.Beta},
		Calibration: CalibrationConfig{
			StorePath:        calibration.DefaultStorePath,
			MinBucketSamples: calibration.DefaultMinBucketSamples,
			Buckets:          calibration.DefaultBuckets,
		},
		Cache: CacheConfig{
			Enabled:    false,
			Dir:        ".iacgate/cache",
			TTLSeconds: 24 * 60 * 60,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path and unmarshals it over the defaults, so an omitted key
// keeps its default value. An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural constraints before anything is wired up.
func (c Config) Validate() error {
	if len(c.Judges) == 0 {
		return fmt.Errorf("at least one judge must be configured")
	}
	seen := make(map[string]struct{}, len(c.Judges))
	for i, j := range c.Judges {
		if j.Name == "" {
			return fmt.Errorf("judge %d: name is required", i)
		}
		if _, dup := seen[j.Name]; dup {
			return fmt.Errorf("judge %q: duplicate name", j.Name)
		}
		seen[j.Name] = struct{}{}
		switch j.Kind {
		case JudgeKindGemini, JudgeKindOpenAI, JudgeKindStatic:
		default:
			return fmt.Errorf("judge %q: unknown kind %q", j.Name, j.Kind)
		}
	}
	if c.BudgetMS <= 0 {
		return fmt.Errorf("budget_ms must be positive, got %d", c.BudgetMS)
	}
	if err := c.GateSettings().Validate(); err != nil {
		return err
	}
	if c.Calibration.MinBucketSamples < 0 {
		return fmt.Errorf("calibration.min_bucket_samples must not be negative")
	}
	if c.Calibration.Buckets <= 0 {
		return fmt.Errorf("calibration.buckets must be positive, got %d", c.Calibration.Buckets)
	}
	if c.Cache.Enabled && c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive when the cache is enabled")
	}
	return nil
}

// GateSettings converts the yaml gate block to the gate package's type.
func (c Config) GateSettings() gate.Config {
	return gate.Config{Tau: c.Gate.Tau, Alpha: c.Gate.Alpha, Beta: c.Gate.Beta}
}

// Budget returns the invocation deadline as a duration.
func (c Config) Budget() time.Duration {
	return time.Duration(c.BudgetMS) * time.Millisecond
}

// CacheTTL returns the cache entry lifetime as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
