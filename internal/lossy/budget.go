package lossy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Budget is the perceptual error allowance of the lossy pass, as a CIE76
// Delta E threshold. A zero or negative threshold disables lossy
// processing. Auto derives the threshold from the image itself.
type Budget struct {
	DeltaE float64
	Auto   bool
}

// Lossless is the budget that skips the lossy pass.
var Lossless = Budget{}

// AutoBudget asks for a threshold derived from the image's colors.
var AutoBudget = Budget{Auto: true}

// ParseBudget accepts "auto", a number, or the empty string (lossless).
func ParseBudget(s string) (Budget, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none", "off":
		return Lossless, nil
	case "auto":
		return AutoBudget, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Budget{}, fmt.Errorf("invalid lossy budget %q (use a Delta E value or 'auto')", s)
	}
	b := Budget{DeltaE: v}
	if err := b.Validate(); err != nil {
		return Budget{}, err
	}
	return b, nil
}

// Enabled reports whether the budget requests the lossy pass.
func (b Budget) Enabled() bool {
	return b.Auto || b.DeltaE > 0
}

// Validate rejects thresholds that cannot be compared.
func (b Budget) Validate() error {
	if math.IsNaN(b.DeltaE) || math.IsInf(b.DeltaE, 0) {
		return fmt.Errorf("invalid lossy budget %v (must be a finite number)", b.DeltaE)
	}
	return nil
}

func (b Budget) String() string {
	switch {
	case b.Auto:
		return "auto"
	case b.DeltaE > 0:
		return strconv.FormatFloat(b.DeltaE, 'g', -1, 64)
	default:
		return "off"
	}
}

// Auto threshold bounds. A flat image gets the tight end, a busy one the
// loose end, since texture masks quantization error.
const (
	autoMin     = 1.0
	autoMax     = 5.0
	autoDivisor = 10.0
)

// autoThreshold maps the RMS Lab spread of the sampled colors around their
// mean onto [autoMin, autoMax]: clamp(spread/10, 1, 5).
func autoThreshold(labs [][3]float64) float64 {
	if len(labs) == 0 {
		return autoMin
	}
	var mean [3]float64
	for _, l := range labs {
		for i := range mean {
			mean[i] += l[i]
		}
	}
	for i := range mean {
		mean[i] /= float64(len(labs))
	}
	var sum float64
	for _, l := range labs {
		for i := range mean {
			d := l[i] - mean[i]
			sum += d * d
		}
	}
	spread := math.Sqrt(sum / float64(len(labs)))
	return math.Min(autoMax, math.Max(autoMin, spread/autoDivisor))
}
