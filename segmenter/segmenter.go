package segmenter

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/dictionary"
	"github.com/teatak/latseg/dp"
	"github.com/teatak/latseg/fixedpoint"
	"github.com/teatak/latseg/lattice"
	"github.com/teatak/latseg/weights"
)

// Mode defines the segmentation mode.
type Mode int

const (
	ModeViterbi    Mode = iota // ModeViterbi decodes under the learned unit weights.
	// ModeFixedPoint decodes under weights iterated with an external
	// scorer. It needs Segmenter.Driver; without one it decodes as
	// ModeViterbi.
	ModeFixedPoint
)

// Segmenter handles the text segmentation.
type Segmenter struct {
	Builder *lattice.Builder
	Table   *weights.Table
	Engine  *dp.Engine
	// Driver is optional; without it ModeFixedPoint falls back to ModeViterbi.
	Driver *fixedpoint.Driver
}

// NewSegmenter creates a new segmenter decoding under table.
func NewSegmenter(b *lattice.Builder, table *weights.Table, engine *dp.Engine) *Segmenter {
	return &Segmenter{Builder: b, Table: table, Engine: engine}
}

// Cut segments the text into a slice of strings using the specified mode
// (defaults to ModeViterbi). Unknown characters keep their original text.
func (s *Segmenter) Cut(text string, modes ...Mode) ([]string, error) {
	mode := ModeViterbi
	if len(modes) > 0 {
		mode = modes[0]
	}
	lat, err := s.Builder.Build(text)
	if err != nil {
		return nil, err
	}
	w := s.Table.EdgeWeights(lat, true)
	if mode == ModeFixedPoint && s.Driver == nil {
		klog.V(1).Info("no fixed-point driver, decoding with learned weights only")
	}
	if mode == ModeFixedPoint && s.Driver != nil {
		res, err := s.Driver.Run(context.Background(), lat, w)
		if err != nil {
			return nil, errors.WithMessage(err, "fixed point")
		}
		w = res.Weights
	}
	vr, err := s.Engine.Viterbi(lat, w)
	if err != nil {
		return nil, err
	}
	return s.words(lat, vr.Path), nil
}

// CutBatch segments every text with ModeViterbi, decoding in parallel.
func (s *Segmenter) CutBatch(texts []string) ([][]string, error) {
	lats, err := s.Builder.BuildBatch(texts)
	if err != nil {
		return nil, err
	}
	ws := make([]lattice.Weights, len(lats))
	for i, lat := range lats {
		ws[i] = s.Table.EdgeWeights(lat, true)
	}
	vrs, err := s.Engine.ViterbiBatch(lats, ws)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(lats))
	for i, lat := range lats {
		out[i] = s.words(lat, vrs[i].Path)
	}
	return out, nil
}

// words renders a decoded path as display strings: specials are dropped,
// the dummy prefix is stripped and word-internal pieces keep their text.
func (s *Segmenter) words(lat *lattice.Lattice, path dp.Path) []string {
	dict := s.Builder.Dictionary()
	dummy := s.Builder.Options().DummyPrefix
	var result []string
	for _, seg := range DecodeSegments(lat, path) {
		if dict.IsPadding(seg.ID) || dict.IsSpecial(seg.ID) {
			continue
		}
		word := seg.Text
		if dummy != "" {
			word = strings.TrimPrefix(word, dummy)
		}
		if word != "" {
			result = append(result, word)
		}
	}
	return result
}

// CutSearch segments the text into a slice of strings, including fine-grained sub-units, using the specified mode (defaults to ModeViterbi).
// Typical usage: for search engine indexing.
func (s *Segmenter) CutSearch(text string, modes ...Mode) ([]string, error) {
	result := []string{}
	defaultSegs, err := s.Cut(text, modes...)
	if err != nil {
		return nil, err
	}
	for _, word := range defaultSegs {
		s.addSubWords(word, &result)
		result = append(result, word)
	}
	return result, nil
}

func (s *Segmenter) addSubWords(word string, result *[]string) {
	runes := []rune(word)
	if len(runes) <= 2 {
		return
	}
	dict := s.Builder.Dictionary()
	for i := 0; i < len(runes); i++ {
		for j := i + 1; j <= len(runes); j++ {
			subWord := string(runes[i:j])
			if subWord != word && j-i > 1 && dict.Contains(subWord) {
				*result = append(*result, subWord)
			}
		}
	}
}

// Open loads a weight checkpoint written by weights.Table.Save and returns
// a segmenter configured by cfg. The segmenter has no Driver; callers with
// a scorer attach one to enable ModeFixedPoint.
func Open(cfg config.Config, checkpoint string) (*Segmenter, error) {
	table, err := weights.Load(checkpoint, dictionary.OptionsFromConfig(cfg), weights.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	b, err := lattice.NewBuilder(table.Dictionary(), lattice.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return NewSegmenter(b, table, dp.NewEngine(cfg)), nil
}
