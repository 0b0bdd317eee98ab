package optimizer

import (
	"math"

	"github.com/teatak/latseg/config"
	"github.com/teatak/latseg/weights"
)

// Loss normalizations, selected by config.Train.Normalization.
const (
	NormChars          = "chars"
	NormTokens         = "tokens"
	NormExpectedLength = "expected_length"
	NormNone           = "none"
	NormConstant       = "constant"
)

// Training modes, selected by config.Train.Mode.
const (
	ModeGradient = "gradient"
	ModeEM       = "em"
)

// normalizer returns the divisor of the batch loss. It reports false when
// the divisor is zero and the batch has to be skipped.
func normalizer(cfg config.Train, est *estimate) (float64, bool) {
	var n float64
	switch cfg.Normalization {
	case NormTokens:
		n = float64(est.edges)
	case NormExpectedLength:
		n = est.expectedLength
	case NormNone:
		n = float64(est.examples)
	case NormConstant:
		n = float64(est.examples) * cfg.Constant
	default:
		n = float64(est.chars)
	}
	return n, n > 0
}

// l1 is lambda times the mean weight of the learnable units: the mean
// stored value under the real parametrization, the mean exp(log-weight)
// in log space. The matching per-entry gradient is returned alongside.
func l1(table *weights.Table, lambda float64) (value float64, grad func(id, k int) float64) {
	if lambda <= 0 {
		return 0, func(int, int) float64 { return 0 }
	}
	dict := table.Dictionary()
	logSpace := table.Options().LogSpace
	n := 0
	sum := 0.0
	for id := 0; id < dict.Len(); id++ {
		if !dict.Learnable(id) {
			continue
		}
		for k := 0; k < table.Components(); k++ {
			v := table.Value(id, k)
			if logSpace {
				v = math.Exp(v)
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, func(int, int) float64 { return 0 }
	}
	return lambda * sum / float64(n), func(id, k int) float64 {
		if logSpace {
			return lambda * math.Exp(table.Value(id, k)) / float64(n)
		}
		return lambda / float64(n)
	}
}

// entropic is lambda times the mean over examples of the mixture entropy
// per character. Examples without characters are left out.
func entropic(est *estimate, lambda float64) float64 {
	if lambda == 0 {
		return 0
	}
	sum, n := 0.0, 0
	for i, h := range est.entropy {
		if est.exampleChars[i] == 0 {
			continue
		}
		sum += h / float64(est.exampleChars[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return lambda * sum / float64(n)
}

// lengthPenalty is lambda times the expected number of units per example.
func lengthPenalty(est *estimate, lambda float64) float64 {
	if lambda <= 0 || est.examples == 0 {
		return 0
	}
	return lambda * est.expectedLength / float64(est.examples)
}
