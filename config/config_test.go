package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	content := "block_size: 8\nmax_unit_length: 4\nmixture_count: 2\nfixed_point:\n  max_rounds: 7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.BlockSize)
	assert.Equal(t, 4, cfg.MaxUnitLength)
	assert.Equal(t, 2, cfg.MixtureCount)
	assert.Equal(t, 7, cfg.FixedPoint.MaxRounds)
	// untouched keys keep their defaults
	assert.Equal(t, 1e-3, cfg.FixedPoint.Tolerance)
	assert.Equal(t, "[PAD]", cfg.PadToken)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocksize: 8\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unit longer than block", func(c *Config) { c.MaxUnitLength = c.BlockSize + 1 }},
		{"no mixture", func(c *Config) { c.MixtureCount = 0 }},
		{"zero temperature", func(c *Config) { c.MarginalTemperature = 0 }},
		{"bad mode", func(c *Config) { c.Train.Mode = "adam" }},
		{"bad normalization", func(c *Config) { c.Train.Normalization = "words" }},
		{"bos without room", func(c *Config) { c.BlockSize, c.MaxUnitLength = 1, 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
