package quantize

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
)

// Dither selects how colors are spread when remapping onto a palette.
type Dither string

const (
	DitherNone      Dither = "none"      // Nearest palette color.
	DitherOrdered   Dither = "ordered"   // 8x8 Bayer threshold map (default).
	DitherDiffusion Dither = "diffusion" // Floyd-Steinberg error diffusion.
)

// ParseDither validates a dithering strategy name.
func ParseDither(s string) (Dither, error) {
	switch d := Dither(strings.ToLower(strings.TrimSpace(s))); d {
	case DitherNone, DitherOrdered, DitherDiffusion:
		return d, nil
	case "":
		return DitherOrdered, nil
	default:
		return "", fmt.Errorf("invalid dither %q (use 'none', 'ordered' or 'diffusion')", s)
	}
}

// Matcher finds nearest palette entries in Lab space, caching results per
// source color.
type Matcher struct {
	palette color.Palette
	vecs    []colorVector
	cache   map[uint32]uint8
}

func NewMatcher(palette color.Palette) *Matcher {
	m := &Matcher{
		palette: palette,
		vecs:    make([]colorVector, len(palette)),
		cache:   map[uint32]uint8{},
	}
	for i, c := range palette {
		m.vecs[i] = toVector(color.NRGBAModel.Convert(c).(color.NRGBA))
	}
	return m
}

// Index returns the palette index closest to c.
func (m *Matcher) Index(c color.NRGBA) uint8 {
	if c.A == 0 {
		c = color.NRGBA{}
	}
	k := Key(c)
	if idx, ok := m.cache[k]; ok {
		return idx
	}
	idx, _ := nearestCenter(m.vecs, toVector(c))
	m.cache[k] = uint8(idx)
	return uint8(idx)
}

// Color returns the palette color closest to c.
func (m *Matcher) Color(c color.NRGBA) color.NRGBA {
	return color.NRGBAModel.Convert(m.palette[m.Index(c)]).(color.NRGBA)
}

// Remap draws img onto a new paletted image using the given strategy.
func Remap(img *image.NRGBA, palette color.Palette, d Dither) *image.Paletted {
	b := img.Bounds()
	dst := image.NewPaletted(b, palette)

	var drawer draw.Drawer
	switch d {
	case DitherDiffusion:
		drawer = draw.FloydSteinberg
	case DitherOrdered:
		drawer = &orderedDrawer{m: NewMatcher(palette), amplitude: orderedAmplitude(len(palette))}
	default:
		drawer = &nearestDrawer{m: NewMatcher(palette)}
	}
	drawer.Draw(dst, b, img, b.Min)
	return dst
}

// bayer8 is the 8x8 Bayer threshold matrix.
var bayer8 = [8][8]uint8{
	{0, 32, 8, 40, 2, 34, 10, 42},
	{48, 16, 56, 24, 50, 18, 58, 26},
	{12, 44, 4, 36, 14, 46, 6, 38},
	{60, 28, 52, 20, 62, 30, 54, 22},
	{3, 35, 11, 43, 1, 33, 9, 41},
	{51, 19, 59, 27, 49, 17, 57, 25},
	{15, 47, 7, 39, 13, 45, 5, 37},
	{63, 31, 55, 23, 61, 29, 53, 21},
}

// orderedAmplitude is the peak-to-peak jitter, in 8-bit channel units,
// applied before matching. Small palettes have wide gaps between entries
// and need stronger jitter.
func orderedAmplitude(n int) float64 {
	if n < 1 {
		n = 1
	}
	return 64 / math.Sqrt(float64(n))
}

type nearestDrawer struct {
	m *Matcher
}

func (n *nearestDrawer) Draw(dst draw.Image, r image.Rectangle, src image.Image, sp image.Point) {
	p := dst.(*image.Paletted)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(sp.X+x-r.Min.X, sp.Y+y-r.Min.Y)).(color.NRGBA)
			p.SetColorIndex(x, y, n.m.Index(c))
		}
	}
}

type orderedDrawer struct {
	m         *Matcher
	amplitude float64
}

func (o *orderedDrawer) Draw(dst draw.Image, r image.Rectangle, src image.Image, sp image.Point) {
	p := dst.(*image.Paletted)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(sp.X+x-r.Min.X, sp.Y+y-r.Min.Y)).(color.NRGBA)
			if c.A != 0 {
				t := (float64(bayer8[y&7][x&7])+0.5)/64 - 0.5
				off := t * o.amplitude
				c.R = jitter(c.R, off)
				c.G = jitter(c.G, off)
				c.B = jitter(c.B, off)
			}
			p.SetColorIndex(x, y, o.m.Index(c))
		}
	}
}

func jitter(v uint8, off float64) uint8 {
	f := math.Round(float64(v) + off)
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}
