// Package config holds the settings shared by the lattice builder, the DP
// engine, the fixed-point driver and the trainer.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default sizes for the lattice tensors.
const (
	DefaultMaxBlocks     = 10 // N: roughly the number of words in a sentence
	DefaultBlockSize     = 20 // L: characters per block
	DefaultMaxUnitLength = 20 // M: characters per candidate unit
)

// Config is the full configuration of an engine instance.
type Config struct {
	MaxBlocks     int `yaml:"max_blocks"`
	BlockSize     int `yaml:"block_size"`
	MaxUnitLength int `yaml:"max_unit_length"`
	MixtureCount  int `yaml:"mixture_count"`

	// LogSpace selects weights stored as log-weights; otherwise weights are
	// real, non-negative and passed through a log on lookup.
	LogSpace bool `yaml:"log_space"`

	PadToken           string   `yaml:"pad_token"`
	UnkToken           string   `yaml:"unk_token"`
	BOSToken           string   `yaml:"bos_token"`
	AddBOS             bool     `yaml:"add_bos"`
	Specials           []string `yaml:"specials"`
	ContinuationPrefix string   `yaml:"continuation_prefix"`
	DummyPrefix        string   `yaml:"dummy_prefix"`
	Normalize          bool     `yaml:"normalize"`

	MarginalTemperature float64 `yaml:"marginal_temperature"`
	Workers             int     `yaml:"workers"`

	FixedPoint FixedPoint `yaml:"fixed_point"`
	Train      Train      `yaml:"train"`
}

// FixedPoint controls the fixed-point driver.
type FixedPoint struct {
	Tolerance float64 `yaml:"tolerance"`
	MaxRounds int     `yaml:"max_rounds"`
}

// Train controls the unigram trainer in package optimizer.
type Train struct {
	Mode           string  `yaml:"mode"` // "gradient" or "em"
	LearningRate   float64 `yaml:"learning_rate"`
	Epochs         int     `yaml:"epochs"`
	BatchSize      int     `yaml:"batch_size"`
	L1             float64 `yaml:"l1"`
	Entropic       float64 `yaml:"entropic"`
	LengthPenalty  float64 `yaml:"length_penalty"`
	Normalization  string  `yaml:"normalization"` // chars, tokens, expected_length, none, constant
	Constant       float64 `yaml:"constant"`
	PruneThreshold float64 `yaml:"prune_threshold"`
	Seed           int64   `yaml:"seed"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		MaxBlocks:           DefaultMaxBlocks,
		BlockSize:           DefaultBlockSize,
		MaxUnitLength:       DefaultMaxUnitLength,
		MixtureCount:        1,
		LogSpace:            true,
		PadToken:            "[PAD]",
		UnkToken:            "[UNK]",
		BOSToken:            "[BOS]",
		AddBOS:              true,
		Normalize:           true,
		MarginalTemperature: 1.0,
		FixedPoint: FixedPoint{
			Tolerance: 1e-3,
			MaxRounds: 100,
		},
		Train: Train{
			Mode:          "gradient",
			LearningRate:  0.1,
			Epochs:        5,
			BatchSize:     32,
			Normalization: "chars",
			Constant:      1.0,
		},
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to open config %q", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithMessagef(err, "config %q", path)
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.MaxBlocks <= 0:
		return errors.Errorf("max_blocks must be positive, got %d", c.MaxBlocks)
	case c.BlockSize <= 0:
		return errors.Errorf("block_size must be positive, got %d", c.BlockSize)
	case c.MaxUnitLength <= 0:
		return errors.Errorf("max_unit_length must be positive, got %d", c.MaxUnitLength)
	case c.MaxUnitLength > c.BlockSize:
		return errors.Errorf("max_unit_length (%d) cannot exceed block_size (%d)", c.MaxUnitLength, c.BlockSize)
	case c.AddBOS && c.BlockSize < 2:
		return errors.Errorf("block_size must leave room for the BOS column, got %d", c.BlockSize)
	case c.MixtureCount < 1:
		return errors.Errorf("mixture_count must be at least 1, got %d", c.MixtureCount)
	case c.MarginalTemperature <= 0:
		return errors.Errorf("marginal_temperature must be positive, got %g", c.MarginalTemperature)
	case c.FixedPoint.Tolerance <= 0:
		return errors.Errorf("fixed_point.tolerance must be positive, got %g", c.FixedPoint.Tolerance)
	case c.FixedPoint.MaxRounds <= 0:
		return errors.Errorf("fixed_point.max_rounds must be positive, got %d", c.FixedPoint.MaxRounds)
	case c.PadToken == "":
		return errors.New("pad_token must be set")
	case c.AddBOS && c.BOSToken == "":
		return errors.New("bos_token must be set when add_bos is on")
	}
	switch c.Train.Mode {
	case "gradient", "em":
	default:
		return errors.Errorf("unknown train.mode %q", c.Train.Mode)
	}
	switch c.Train.Normalization {
	case "chars", "tokens", "expected_length", "none", "constant":
	default:
		return errors.Errorf("unknown train.normalization %q", c.Train.Normalization)
	}
	return nil
}
