// Package quantize reduces images to small color palettes.
//
// Palettes are built by weighted k-means in CIELAB space (with an extra
// alpha axis) over the image's unique colors, and images are remapped onto
// a palette with an optional dithering strategy.
package quantize

import (
	"image"
	"image/color"
	"math/rand"
	"sort"
)

// DefaultMaxKMeansIters is the default maximum number of
// iterations of the k-means algorithm for clustering.
const DefaultMaxKMeansIters = 5

// DefaultMaxClusterColors caps how many unique colors take part in
// clustering. Larger histograms are randomly subsampled.
const DefaultMaxClusterColors = 20000

// MaxColors is the largest palette a PNG can carry.
const MaxColors = 256

// Histogram is the set of unique colors of an image with their pixel
// counts, sorted by descending count.
type Histogram struct {
	Colors []color.NRGBA
	Counts []int
	vecs   []colorVector
}

// NewHistogram collects the unique colors of img.
func NewHistogram(img *image.NRGBA) *Histogram {
	counts := map[uint32]int{}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			c := color.NRGBA{R: row[i], G: row[i+1], B: row[i+2], A: row[i+3]}
			if c.A == 0 {
				c = color.NRGBA{}
			}
			counts[Key(c)]++
		}
	}

	h := &Histogram{
		Colors: make([]color.NRGBA, 0, len(counts)),
		Counts: make([]int, 0, len(counts)),
	}
	keys := make([]uint32, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := counts[keys[i]], counts[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		c := color.NRGBA{R: uint8(k >> 24), G: uint8(k >> 16), B: uint8(k >> 8), A: uint8(k)}
		h.Colors = append(h.Colors, c)
		h.Counts = append(h.Counts, counts[k])
		h.vecs = append(h.vecs, toVector(c))
	}
	return h
}

// Len returns the number of unique colors.
func (h *Histogram) Len() int {
	return len(h.Colors)
}

// Quantizer builds palettes. The zero value is usable; Seed makes
// clustering reproducible.
type Quantizer struct {
	MaxIters         int
	MaxClusterColors int
	Seed             int64
}

// Palette creates a palette of at most n colors for the histogram,
// ordered by how many pixels each entry represents.
//
// If the histogram has no more than n unique colors, they are returned
// exactly.
func (q *Quantizer) Palette(h *Histogram, n int) color.Palette {
	if n < 1 {
		n = 1
	}
	if n > MaxColors {
		n = MaxColors
	}
	if h.Len() == 0 {
		return color.Palette{color.NRGBA{}}
	}
	if h.Len() <= n {
		res := make(color.Palette, h.Len())
		for i, c := range h.Colors {
			res[i] = c
		}
		return res
	}

	maxIters := q.MaxIters
	if maxIters == 0 {
		maxIters = DefaultMaxKMeansIters
	}
	maxColors := q.MaxClusterColors
	if maxColors == 0 {
		maxColors = DefaultMaxClusterColors
	}
	if maxColors < n {
		maxColors = n
	}

	rng := rand.New(rand.NewSource(q.Seed))
	points, weights := subsampleColors(rng, h, maxColors)

	clusters := newColorClusters(rng, points, weights, n)
	loss := clusters.Iterate()
	for i := 0; i < maxIters; i++ {
		newLoss := clusters.Iterate()
		if newLoss >= loss {
			break
		}
		loss = newLoss
	}

	return clusters.Palette()
}

func subsampleColors(rng *rand.Rand, h *Histogram, maxColors int) ([]colorVector, []float64) {
	idx := make([]int, h.Len())
	for i := range idx {
		idx[i] = i
	}
	if len(idx) > maxColors {
		for i := 0; i < maxColors; i++ {
			j := i + rng.Intn(len(idx)-i)
			idx[i], idx[j] = idx[j], idx[i]
		}
		idx = idx[:maxColors]
	}
	points := make([]colorVector, len(idx))
	weights := make([]float64, len(idx))
	for i, j := range idx {
		points[i] = h.vecs[j]
		weights[i] = float64(h.Counts[j])
	}
	return points, weights
}
