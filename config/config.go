// Package config decodes vixen's engine-level configuration (worker-pool
// sizing, default task budgets, calibration-store path, staging-pool tier
// sizes) from TOML. A file sets only the sections it wants to override;
// everything else comes from Default.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/vixen-gfx/vixen/staging"
)

// fileConfig is the on-disk TOML shape, kept separate from Config so the
// file format can evolve (renamed/optional fields, new sections) without
// widening the struct every subsystem actually consumes.
type fileConfig struct {
	Workers struct {
		PoolSize int `toml:"pool_size"`
	} `toml:"workers"`

	Budget struct {
		TargetFrameRateHz  float64 `toml:"target_frame_rate_hz"`
		DefaultBudgetNs    int64   `toml:"default_budget_ns"`
		OverrunThreshold   float64 `toml:"overrun_threshold"`
		AvailableThreshold float64 `toml:"available_threshold"`
	} `toml:"budget"`

	Calibration struct {
		StorePath string `toml:"store_path"`
	} `toml:"calibration"`

	Staging struct {
		SmallChunkCount  int `toml:"small_chunk_count"`
		MediumChunkCount int `toml:"medium_chunk_count"`
		LargeChunkCount  int `toml:"large_chunk_count"`
	} `toml:"staging"`
}

// Config is vixen's decoded, validated engine configuration.
type Config struct {
	WorkerPoolSize int

	TargetFrameRate    float64
	DefaultBudget      time.Duration
	OverrunThreshold   float64
	AvailableThreshold float64

	CalibrationStorePath string

	StagingTierCounts map[staging.Tier]int
}

// Default returns vixen's built-in configuration, used when no vixen.toml
// is present and by tests that don't care about tuning knobs.
func Default() Config {
	return Config{
		WorkerPoolSize:       4,
		TargetFrameRate:      60,
		DefaultBudget:        16 * time.Millisecond,
		OverrunThreshold:     1.1,
		AvailableThreshold:   0.7,
		CalibrationStorePath: "vixen-calibration.json",
		StagingTierCounts: map[staging.Tier]int{
			staging.TierSmall:  4,
			staging.TierMedium: 2,
			staging.TierLarge:  2,
		},
	}
}

// Load reads and decodes a vixen.toml-shaped file at path, validating it and
// layering its values over Default() (a config file may set only the
// sections it wants to override).
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg := Default()
	if fc.Workers.PoolSize > 0 {
		cfg.WorkerPoolSize = fc.Workers.PoolSize
	}
	if fc.Budget.TargetFrameRateHz > 0 {
		cfg.TargetFrameRate = fc.Budget.TargetFrameRateHz
	}
	if fc.Budget.DefaultBudgetNs > 0 {
		cfg.DefaultBudget = time.Duration(fc.Budget.DefaultBudgetNs)
	}
	if fc.Budget.OverrunThreshold > 0 {
		cfg.OverrunThreshold = fc.Budget.OverrunThreshold
	}
	if fc.Budget.AvailableThreshold > 0 {
		cfg.AvailableThreshold = fc.Budget.AvailableThreshold
	}
	if fc.Calibration.StorePath != "" {
		cfg.CalibrationStorePath = fc.Calibration.StorePath
	}
	if fc.Staging.SmallChunkCount > 0 {
		cfg.StagingTierCounts[staging.TierSmall] = fc.Staging.SmallChunkCount
	}
	if fc.Staging.MediumChunkCount > 0 {
		cfg.StagingTierCounts[staging.TierMedium] = fc.Staging.MediumChunkCount
	}
	if fc.Staging.LargeChunkCount > 0 {
		cfg.StagingTierCounts[staging.TierLarge] = fc.Staging.LargeChunkCount
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the decoded configuration for values that would make the
// runtime misbehave rather than merely underperform.
func (c Config) Validate() error {
	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("config: workers.pool_size must be positive, got %d", c.WorkerPoolSize)
	}
	if c.TargetFrameRate <= 0 {
		return fmt.Errorf("config: budget.target_frame_rate_hz must be positive, got %v", c.TargetFrameRate)
	}
	if c.OverrunThreshold <= 1.0 {
		return fmt.Errorf("config: budget.overrun_threshold must exceed 1.0, got %v", c.OverrunThreshold)
	}
	if c.AvailableThreshold <= 0 || c.AvailableThreshold >= 1.0 {
		return fmt.Errorf("config: budget.available_threshold must be in (0,1), got %v", c.AvailableThreshold)
	}
	for tier, count := range c.StagingTierCounts {
		if count < 0 {
			return fmt.Errorf("config: staging tier %s count must be non-negative, got %d", tier, count)
		}
	}
	return nil
}
