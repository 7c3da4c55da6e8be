package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	sum := cfg.Analysis.FundamentalWeight + cfg.Analysis.TechnicalWeight +
		cfg.Analysis.SentimentWeight + cfg.Analysis.ManagementWeight
	assert.InDelta(t, 0.80, sum, 1e-9, "regime adjustment owns the remaining weight")
}

func TestValidateRejectsBadWeights(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Analysis.SentimentWeight = -0.1 }},
		{"weight above one", func(c *Config) { c.Analysis.TechnicalWeight = 1.2 }},
		{"weights sum above one", func(c *Config) {
			c.Analysis.FundamentalWeight = 0.5
			c.Analysis.TechnicalWeight = 0.6
		}},
		{"all weights zero", func(c *Config) {
			c.Analysis.FundamentalWeight = 0
			c.Analysis.TechnicalWeight = 0
			c.Analysis.SentimentWeight = 0
			c.Analysis.ManagementWeight = 0
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRejectsUnorderedThresholds(t *testing.T) {
	cfg := Default()
	cfg.Analysis.BuyThreshold = cfg.Analysis.StrongBuyThreshold
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Analysis.SellThreshold = 80
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Analysis.BorderlineLow = cfg.Analysis.BorderlineHigh
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPatternSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero min confidence", func(c *Config) { c.Patterns.MinConfidence = 0 }},
		{"confidence at cap", func(c *Config) { c.Patterns.MinConfidence = 100 }},
		{"lookback shorter than handle window", func(c *Config) { c.Patterns.Lookback = c.Patterns.HandleBars }},
		{"zero scan stride", func(c *Config) { c.Patterns.ScanStride = 0 }},
		{"aggressive threshold above one", func(c *Config) { c.Patterns.AggressiveThreshold = 1.5 }},
		{"zero conservative threshold", func(c *Config) { c.Patterns.ConservativeThreshold = 0 }},
		{"stop loss of 100 percent", func(c *Config) { c.Patterns.StopLossPct = 1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	// No config file in the test working directory, so Load resolves
	// everything from defaults and the environment.
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.25, cfg.Analysis.FundamentalWeight)
	assert.Equal(t, 5, cfg.Patterns.ScanStride)
	assert.Equal(t, 1250, cfg.Backtest.MinHistoryBars)
	assert.NoError(t, cfg.Validate())
}
