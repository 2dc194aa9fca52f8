package quantize

import (
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// alphaScale maps alpha in [0,1] onto the same range as L*, so a fully
// transparent pixel is as far from its opaque twin as black is from white.
const alphaScale = 100

// colorVector is a color in CIELAB space plus a scaled alpha axis.
type colorVector [4]float64

func (c colorVector) DistSquared(c1 colorVector) float64 {
	var res float64
	for i, x := range c {
		d := x - c1[i]
		res += d * d
	}
	return res
}

func (c colorVector) Add(c1 colorVector) colorVector {
	for i, x := range c1 {
		c[i] += x
	}
	return c
}

func (c colorVector) Scale(s float64) colorVector {
	for i := range c {
		c[i] *= s
	}
	return c
}

// Lab returns the CIELAB coordinates of an 8-bit sRGB color on the usual
// scale (L* in [0,100]).
func Lab(c color.NRGBA) [3]float64 {
	l, a, b := colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Lab()
	return [3]float64{l * 100, a * 100, b * 100}
}

// DeltaE is the CIE76 color difference between two Lab colors.
func DeltaE(a, b [3]float64) float64 {
	dl := a[0] - b[0]
	da := a[1] - b[1]
	db := a[2] - b[2]
	return math.Sqrt(dl*dl + da*da + db*db)
}

func toVector(c color.NRGBA) colorVector {
	if c.A == 0 {
		return colorVector{}
	}
	lab := Lab(c)
	return colorVector{lab[0], lab[1], lab[2], float64(c.A) / 255 * alphaScale}
}

func toColor(v colorVector) color.NRGBA {
	a := math.Round(v[3] / alphaScale * 255)
	if a <= 0 {
		return color.NRGBA{}
	}
	if a > 255 {
		a = 255
	}
	r, g, b := colorful.Lab(v[0]/100, v[1]/100, v[2]/100).Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(a)}
}

// Key packs an NRGBA color into a map key.
func Key(c color.NRGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

// ToNRGBA returns img as an 8-bit non-premultiplied buffer, copying only
// when img is not one already.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	res := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			res.SetNRGBA(x, y, color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
		}
	}
	return res
}
