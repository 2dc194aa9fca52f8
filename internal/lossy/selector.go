// Package lossy picks the smallest palette that keeps an image within a
// perceptual error budget.
//
// The image is quantized once at 256 colors to bound the search, then
// palette sizes are bisected against the 95th percentile CIE76 Delta E of
// a bounded pixel sample. Each step costs one quantization and one pass
// over at most MaxSamples pixels, so the search is independent of image
// resolution.
package lossy

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sort"

	"go.uber.org/zap"

	"tinyimg/internal/quantize"
)

const (
	// MaxSamples caps the pixels inspected per evaluation.
	MaxSamples = 50000
	// ReferenceColors is the palette size of the reference pass.
	ReferenceColors = 256
	// Percentile is the error quantile compared against the budget.
	Percentile = 0.95
)

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Candidate is one evaluated palette size.
type Candidate struct {
	Colors int
	Metric float64
}

// Selection describes the outcome of a search.
type Selection struct {
	// Colors is the chosen palette size.
	Colors int
	// Applied is false when the budget disabled the lossy pass.
	Applied bool
	// Threshold is the Delta E budget in effect (derived for auto budgets).
	Threshold float64
	// Reference is the metric of the 256-color reference pass.
	Reference float64
	// Trace lists every evaluated candidate in evaluation order.
	Trace []Candidate
}

// Selector searches palette sizes. The zero value uses a zero-seeded
// quantizer and ordered dithering.
type Selector struct {
	Quantizer quantize.Quantizer
	Dither    quantize.Dither
	Log       *zap.Logger
}

// Reduce runs the search and returns the image remapped onto the winning
// palette. When the budget is disabled it returns a nil image and a
// Selection with Applied unset.
func (s *Selector) Reduce(img image.Image, budget Budget) (*image.Paletted, Selection, error) {
	if !budget.Enabled() {
		return nil, Selection{}, nil
	}
	src := quantize.ToNRGBA(img)
	hist := quantize.NewHistogram(src)
	sel, err := s.selectOn(src, hist, budget)
	if err != nil {
		return nil, sel, err
	}

	dither := s.Dither
	if dither == "" {
		dither = quantize.DitherOrdered
	}
	pal := s.Quantizer.Palette(hist, sel.Colors)
	return quantize.Remap(src, pal, dither), sel, nil
}

// Select runs the search without producing the remapped image.
func (s *Selector) Select(img image.Image, budget Budget) (Selection, error) {
	if !budget.Enabled() {
		return Selection{}, nil
	}
	src := quantize.ToNRGBA(img)
	return s.selectOn(src, quantize.NewHistogram(src), budget)
}

func (s *Selector) selectOn(src *image.NRGBA, hist *quantize.Histogram, budget Budget) (Selection, error) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	smp := newSample(src, MaxSamples)
	if len(smp.labs) == 0 {
		return Selection{}, ErrEmptyImage
	}

	threshold := budget.DeltaE
	if budget.Auto {
		threshold = autoThreshold(smp.labs)
	}
	sel := Selection{Applied: true, Threshold: threshold}

	evaluate := func(n int) (float64, color.Palette) {
		pal := s.Quantizer.Palette(hist, n)
		metric := smp.metric(quantize.NewMatcher(pal))
		sel.Trace = append(sel.Trace, Candidate{Colors: n, Metric: metric})
		return metric, pal
	}

	ref, refPal := evaluate(ReferenceColors)
	sel.Reference = ref
	if ref > threshold {
		// Even the full palette misses the budget; keep the best quality.
		sel.Colors = ReferenceColors
		log.Debug("reference palette exceeds budget",
			zap.Float64("metric", ref), zap.Float64("threshold", threshold))
		return sel, nil
	}

	hi := usedColors(hist, refPal)
	n, steps, err := Bisect(1, hi, func(n int) (bool, error) {
		metric, _ := evaluate(n)
		return metric <= threshold, nil
	})
	if err != nil {
		return sel, err
	}
	sel.Colors = n
	log.Debug("palette size selected",
		zap.Int("colors", n),
		zap.Int("upper_bound", hi),
		zap.Int("steps", steps),
		zap.Float64("threshold", threshold))
	return sel, nil
}

// usedColors counts the palette entries that at least one image color maps
// to. It bounds the search: a larger palette cannot do better than the
// reference.
func usedColors(hist *quantize.Histogram, pal color.Palette) int {
	m := quantize.NewMatcher(pal)
	used := map[uint8]bool{}
	for _, c := range hist.Colors {
		used[m.Index(c)] = true
	}
	n := len(used)
	if n > ReferenceColors {
		n = ReferenceColors
	}
	if n < 1 {
		n = 1
	}
	return n
}

// sample is a systematic subset of an image's pixels grouped by color.
type sample struct {
	labs   [][3]float64 // per sampled pixel
	colors []color.NRGBA
	unique [][3]float64 // Lab of colors[i]
}

// newSample takes every step-th pixel, with step chosen so that no more
// than max pixels are kept.
func newSample(img *image.NRGBA, max int) *sample {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	s := &sample{}
	if total == 0 {
		return s
	}
	step := (total + max - 1) / max
	if step < 1 {
		step = 1
	}

	seen := map[uint32]int{}
	for i := 0; i < total; i += step {
		x := b.Min.X + i%b.Dx()
		y := b.Min.Y + i/b.Dx()
		c := img.NRGBAAt(x, y)
		if c.A == 0 {
			c = color.NRGBA{}
		}
		k := quantize.Key(c)
		j, ok := seen[k]
		if !ok {
			j = len(s.colors)
			seen[k] = j
			s.colors = append(s.colors, c)
			s.unique = append(s.unique, quantize.Lab(c))
		}
		s.labs = append(s.labs, s.unique[j])
	}
	return s
}

// metric is the 95th percentile, over distinct sampled colors, of the
// worst Delta E between a color and its reconstruction. Grouping by color
// gives a dominant background a single vote. Without dithering every pixel
// of a color reconstructs identically, so the worst case per group is the
// group's only value.
func (s *sample) metric(m *quantize.Matcher) float64 {
	if len(s.colors) == 0 {
		return 0
	}
	des := make([]float64, len(s.colors))
	for i, c := range s.colors {
		des[i] = quantize.DeltaE(s.unique[i], quantize.Lab(m.Color(c)))
	}
	return percentile(des, Percentile)
}

func percentile(vals []float64, p float64) float64 {
	sort.Float64s(vals)
	idx := int(math.Ceil(float64(len(vals))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return vals[idx]
}
