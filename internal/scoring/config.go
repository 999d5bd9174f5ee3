// Package scoring implements the ScoringEngine (C4): a pure, deterministic
// function from a normalized schema and direction to a decision, plus the
// score-configuration file, loaded once at startup into a Store whose
// snapshot is read on every decision; Store.Replace and
// Store.ReloadFromFile swap in new weights without a restart. The file is
// not watched: a changed file takes effect only through ReloadFromFile.
package scoring

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/yusuke746/trading-system/internal/errs"
	"github.com/yusuke746/trading-system/internal/model"
)

// DefaultConfig returns the built-in factor weights, recovered from the
// tunable-parameter whitelist and its bounds in the original system's
// weekly meta-optimizer; values are the whitelist midpoints where no exact
// default was recoverable.
func DefaultConfig() *model.ScoreConfig {
	return &model.ScoreConfig{
		Weights: map[string]float64{
			"regime_trend_base":              0.10,
			"regime_breakout_base":           0.15,
			"regime_range_base":              -0.10,
			"zone_touch_aligned_with_trend":  0.22,
			"zone_touch_counter_trend":       0.08,
			"fvg_touch_aligned_with_trend":   0.16,
			"fvg_touch_counter_trend":        0.06,
			"liquidity_sweep":                0.28,
			"sweep_plus_zone":                0.12,
			"trend_aligned":                  0.12,
			"rsi_confirmation":               0.07,
			"rsi_divergence":                 -0.07,
			"counter_trend_no_sweep":         -0.10,
			"bar_close_confirmed":            0.12,
			"session_london_ny":              0.05,
			"session_tokyo":                  0.0,
			"session_off_hours":              -0.05,
			"tv_confidence_high":             0.12,
			"tv_confidence_low":              -0.08,
			"pattern_similarity_high":        0.12,
			"pattern_similarity_low":         -0.08,
		},
		ApproveThreshold: 0.45,
		WaitThreshold:    0.12,
	}
}

// LoadFile reads a score configuration from a YAML file. Missing factors in
// the file simply stay unset (Weight() returns 0 for those).
func LoadFile(path string) (*model.ScoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("failed to read score config", err)
	}

	var cfg model.ScoreConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Config("failed to parse score config", err)
	}
	if cfg.Weights == nil {
		cfg.Weights = map[string]float64{}
	}
	if cfg.ApproveThreshold <= cfg.WaitThreshold {
		return nil, errs.Config(
			fmt.Sprintf("approve_threshold (%.4f) must exceed wait_threshold (%.4f)", cfg.ApproveThreshold, cfg.WaitThreshold),
			nil,
		)
	}
	return &cfg, nil
}

// SaveFile writes cfg to path via a temp-file-then-rename so a crash
// mid-write never leaves a truncated or partially-written config behind;
// readers always see either the old file or the fully-written new one.
func SaveFile(path string, cfg *model.ScoreConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode score config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".score-config-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp score config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp score config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp score config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace score config: %w", err)
	}
	return nil
}

// Store holds a hot-swappable ScoreConfig. The ScoringEngine reads the
// current snapshot on every decision via Get; the tuner installs a new
// snapshot wholesale via Replace, never mutating a config in place.
type Store struct {
	v atomic.Value // holds *model.ScoreConfig
}

// NewStore creates a Store seeded with the given config.
func NewStore(cfg *model.ScoreConfig) *Store {
	s := &Store{}
	s.v.Store(cfg)
	return s
}

// Get returns the current config snapshot.
func (s *Store) Get() *model.ScoreConfig {
	return s.v.Load().(*model.ScoreConfig)
}

// Replace installs a new config snapshot, atomically visible to every
// subsequent Get call.
func (s *Store) Replace(cfg *model.ScoreConfig) {
	s.v.Store(cfg)
}

// ReloadFromFile re-reads path and, if it parses and validates, installs it
// as the new snapshot. The previous snapshot is left untouched on error.
func (s *Store) ReloadFromFile(path string) error {
	cfg, err := LoadFile(path)
	if err != nil {
		return err
	}
	s.Replace(cfg)
	return nil
}
