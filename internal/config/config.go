// Package config provides configuration loading for reflexd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the full reflexd configuration.
type Config struct {
	Store         StoreConfig         `koanf:"store"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Consolidation ConsolidationConfig `koanf:"consolidation"`
	Fallback      FallbackConfig      `koanf:"fallback"`
	Fitness       FitnessConfig       `koanf:"fitness"`
	Analogy       AnalogyConfig       `koanf:"analogy"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// StoreConfig configures the shared persistent store.
type StoreConfig struct {
	Path         string   `koanf:"path"`
	BusyRetries  int      `koanf:"busy_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// RetrievalConfig configures episode retrieval.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// ConsolidationConfig configures clustering runs.
type ConsolidationConfig struct {
	Eps        float64  `koanf:"eps"`
	MinSamples int      `koanf:"min_samples"`
	Interval   Duration `koanf:"interval"`
}

// FallbackConfig configures recovery strategy scoring.
type FallbackConfig struct {
	Epsilon float64 `koanf:"epsilon"`
}

// FitnessConfig configures the fitness evaluator.
type FitnessConfig struct {
	Window int     `koanf:"window"`
	Alpha  float64 `koanf:"alpha"`
}

// AnalogyConfig configures the analogy validator.
type AnalogyConfig struct {
	Threshold float64 `koanf:"threshold"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath()
	}
	if cfg.Store.BusyRetries == 0 {
		cfg.Store.BusyRetries = 5
	}
	if cfg.Store.RetryBackoff == 0 {
		cfg.Store.RetryBackoff = Duration(25 * time.Millisecond)
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Consolidation.Eps == 0 {
		cfg.Consolidation.Eps = 0.5
	}
	if cfg.Consolidation.MinSamples == 0 {
		cfg.Consolidation.MinSamples = 2
	}
	if cfg.Consolidation.Interval == 0 {
		cfg.Consolidation.Interval = Duration(time.Hour)
	}
	if cfg.Fallback.Epsilon == 0 {
		cfg.Fallback.Epsilon = 0.2
	}
	if cfg.Fitness.Window == 0 {
		cfg.Fitness.Window = 10
	}
	if cfg.Fitness.Alpha == 0 {
		cfg.Fitness.Alpha = 0.3
	}
	if cfg.Analogy.Threshold == 0 {
		cfg.Analogy.Threshold = 0.7
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "reflexd.db"
	}
	return filepath.Join(home, ".local", "share", "reflexd", "reflexd.db")
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.BusyRetries < 0 {
		return fmt.Errorf("store.busy_retries cannot be negative: %d", c.Store.BusyRetries)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1: %d", c.Retrieval.TopK)
	}
	if c.Consolidation.Eps <= 0 || c.Consolidation.Eps > 1 {
		return fmt.Errorf("consolidation.eps must be in (0,1]: %v", c.Consolidation.Eps)
	}
	if c.Consolidation.MinSamples < 2 {
		return fmt.Errorf("consolidation.min_samples must be at least 2: %d", c.Consolidation.MinSamples)
	}
	if c.Fallback.Epsilon < 0 || c.Fallback.Epsilon > 1 {
		return fmt.Errorf("fallback.epsilon must be in [0,1]: %v", c.Fallback.Epsilon)
	}
	if c.Fitness.Window < 1 {
		return fmt.Errorf("fitness.window must be at least 1: %d", c.Fitness.Window)
	}
	if c.Fitness.Alpha <= 0 || c.Fitness.Alpha > 1 {
		return fmt.Errorf("fitness.alpha must be in (0,1]: %v", c.Fitness.Alpha)
	}
	if c.Analogy.Threshold < 0 || c.Analogy.Threshold > 1 {
		return fmt.Errorf("analogy.threshold must be in [0,1]: %v", c.Analogy.Threshold)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console: %q", c.Logging.Format)
	}
	return nil
}
