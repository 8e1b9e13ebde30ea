package adaptive_test

import (
	"errors"
	"testing"

	"github.com/mathspractice/adaptive/internal/domain/adaptive"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := adaptive.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
	if cfg.Weights.Sum() != 100 {
		t.Errorf("expected weights to sum to 100, got %d", cfg.Weights.Sum())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*adaptive.Config)
		field  string
	}{
		{"zero interval", func(c *adaptive.Config) { c.CheckpointInterval = 0 }, "checkpoint_interval"},
		{"negative cap", func(c *adaptive.Config) { c.MaxAcceptedInterventions = -1 }, "max_accepted_interventions"},
		{"negative weight", func(c *adaptive.Config) { c.Weights.Hints = -20; c.Weights.Accuracy = 75 }, "weights.hints"},
		{"weights off by one", func(c *adaptive.Config) { c.Weights.Streak = 16 }, "weights"},
		{"bands out of order", func(c *adaptive.Config) { c.Bands.Optimal = 35 }, "bands"},
		{"bands above 100", func(c *adaptive.Config) { c.Bands.Excelling = 101 }, "bands"},
		{"zero lower band", func(c *adaptive.Config) { c.Bands.Struggling = 0 }, "bands"},
		{"hints above 100", func(c *adaptive.Config) { c.HintsScore = 120 }, "hints_score"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := adaptive.DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, adaptive.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var cfgErr *adaptive.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, cfgErr.Field)
			}

			if _, err := adaptive.NewEngine(cfg, quietLogger()); err == nil {
				t.Error("expected NewEngine to reject the config")
			}
		})
	}
}

func TestConfig_CustomWeights(t *testing.T) {
	cfg := adaptive.DefaultConfig()
	cfg.Weights = adaptive.Weights{Accuracy: 100}
	e := newEngine(t, cfg)

	c := e.ComputeConfidence(metricsFor(t, 3, pattern("CICIC", 5000)...))
	if c.Score != 60 {
		t.Errorf("expected score equal to rolling accuracy, got %d", c.Score)
	}
}
