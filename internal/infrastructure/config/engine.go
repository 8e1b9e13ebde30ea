package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
)

// engineFile mirrors adaptive.Config with TOML keys. Keys left out of the
// file keep their default values.
type engineFile struct {
	Enabled                  bool `toml:"enabled"`
	CheckpointInterval       int  `toml:"checkpoint_interval"`
	MaxAcceptedInterventions int  `toml:"max_accepted_interventions"`
	HintsScore               int  `toml:"hints_score"`

	Weights struct {
		Accuracy     int `toml:"accuracy"`
		ResponseTime int `toml:"response_time"`
		Hints        int `toml:"hints"`
		Consistency  int `toml:"consistency"`
		Streak       int `toml:"streak"`
	} `toml:"weights"`

	Bands struct {
		Struggling  int `toml:"struggling"`
		Challenging int `toml:"challenging"`
		Optimal     int `toml:"optimal"`
		Excelling   int `toml:"excelling"`
	} `toml:"bands"`
}

// LoadEngine returns the engine configuration: defaults, overlaid with the
// TOML file at path when path is non-empty, then validated. Unknown keys
// are rejected so a typo cannot silently fall back to a default.
func LoadEngine(path string, enabled bool) (adaptive.Config, error) {
	cfg := adaptive.DefaultConfig()
	cfg.Enabled = enabled
	if path == "" {
		return cfg, cfg.Validate()
	}

	f := toFile(cfg)
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return adaptive.Config{}, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return adaptive.Config{}, fmt.Errorf("engine config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	cfg = f.toConfig()
	if !md.IsDefined("enabled") {
		cfg.Enabled = enabled
	}
	if err := cfg.Validate(); err != nil {
		return adaptive.Config{}, fmt.Errorf("engine config %s: %w", path, err)
	}
	return cfg, nil
}

func toFile(c adaptive.Config) engineFile {
	var f engineFile
	f.Enabled = c.Enabled
	f.CheckpointInterval = c.CheckpointInterval
	f.MaxAcceptedInterventions = c.MaxAcceptedInterventions
	f.HintsScore = c.HintsScore
	f.Weights.Accuracy = c.Weights.Accuracy
	f.Weights.ResponseTime = c.Weights.ResponseTime
	f.Weights.Hints = c.Weights.Hints
	f.Weights.Consistency = c.Weights.Consistency
	f.Weights.Streak = c.Weights.Streak
	f.Bands.Struggling = c.Bands.Struggling
	f.Bands.Challenging = c.Bands.Challenging
	f.Bands.Optimal = c.Bands.Optimal
	f.Bands.Excelling = c.Bands.Excelling
	return f
}

func (f engineFile) toConfig() adaptive.Config {
	return adaptive.Config{
		Enabled:                  f.Enabled,
		CheckpointInterval:       f.CheckpointInterval,
		MaxAcceptedInterventions: f.MaxAcceptedInterventions,
		HintsScore:               f.HintsScore,
		Weights: adaptive.Weights{
			Accuracy:     f.Weights.Accuracy,
			ResponseTime: f.Weights.ResponseTime,
			Hints:        f.Weights.Hints,
			Consistency:  f.Weights.Consistency,
			Streak:       f.Weights.Streak,
		},
		Bands: adaptive.BandThresholds{
			Struggling:  f.Bands.Struggling,
			Challenging: f.Bands.Challenging,
			Optimal:     f.Bands.Optimal,
			Excelling:   f.Bands.Excelling,
		},
	}
}
