package overlay

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// DefaultRamp is the 12-step blue-to-purple ramp of the built-in overlays.
var DefaultRamp = []string{
	"#08306b", "#2171b5", "#6baed6", "#c6dbef",
	"#ffffcc", "#fed976", "#feb24c", "#fd8d3c",
	"#f03b20", "#d12f2f", "#bd0026", "#7a0177",
}

// QuantileBrackets derives a bracket table from observed values: one band
// per color, split at evenly spaced quantiles (linear interpolation) rounded
// to two decimals. Negative, NaN and infinite values are ignored. Breaks that
// would not increase are dropped, leaving fewer bands than colors.
func QuantileBrackets(values []float64, colors []string) ([]Bracket, error) {
	if len(colors) == 0 {
		return nil, eris.New("breaks: at least one color is required")
	}

	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			continue
		}
		clean = append(clean, v)
	}
	if len(clean) == 0 {
		return nil, eris.New("breaks: no usable values")
	}
	sort.Float64s(clean)

	bands := len(colors)
	lower := 0.0
	brackets := make([]Bracket, 0, bands)
	for k := 1; k < bands; k++ {
		cut := round2(quantile(clean, float64(k)/float64(bands)))
		if cut <= lower {
			continue
		}
		brackets = append(brackets, Bracket{Min: lower, Max: cut, Color: colors[len(brackets)]})
		lower = cut
	}
	brackets = append(brackets, Bracket{Min: lower, Max: math.Inf(1), Color: colors[len(brackets)]})
	return brackets, nil
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
