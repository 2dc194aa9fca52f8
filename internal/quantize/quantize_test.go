package quantize

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"
)

func TestLabReference(t *testing.T) {
	tests := []struct {
		name string
		c    color.NRGBA
		want [3]float64
	}{
		{"white", color.NRGBA{255, 255, 255, 255}, [3]float64{100, 0, 0}},
		{"black", color.NRGBA{0, 0, 0, 255}, [3]float64{0, 0, 0}},
		{"red", color.NRGBA{255, 0, 0, 255}, [3]float64{53.24, 80.09, 67.20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lab(tt.c)
			for i, x := range tt.want {
				if math.Abs(got[i]-x) > 0.1 {
					t.Errorf("component %d: expected %f but got %f", i, x, got[i])
				}
			}
		})
	}
}

func TestVectorColorInverses(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		c := color.NRGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(1 + rng.Intn(255))}
		c1 := toColor(toVector(c))
		for j, pair := range [][2]uint8{{c.R, c1.R}, {c.G, c1.G}, {c.B, c1.B}, {c.A, c1.A}} {
			if d := int(pair[0]) - int(pair[1]); d > 1 || d < -1 {
				t.Errorf("color %v component %d: round trip gave %v", c, j, c1)
			}
		}
	}
}

func TestDeltaE(t *testing.T) {
	if d := DeltaE([3]float64{50, 0, 0}, [3]float64{50, 3, 4}); math.Abs(d-5) > 1e-9 {
		t.Fatalf("expected 5, got %f", d)
	}
}

func TestPaletteExactWhenFewColors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			switch {
			case x < 7:
				img.SetNRGBA(x, y, color.NRGBA{200, 10, 10, 255})
			case x < 9:
				img.SetNRGBA(x, y, color.NRGBA{10, 200, 10, 255})
			default:
				img.SetNRGBA(x, y, color.NRGBA{10, 10, 200, 255})
			}
		}
	}
	h := NewHistogram(img)
	if h.Len() != 3 {
		t.Fatalf("expected 3 unique colors, got %d", h.Len())
	}
	q := &Quantizer{Seed: 1}
	pal := q.Palette(h, 16)
	if len(pal) != 3 {
		t.Fatalf("expected exact palette of 3, got %d", len(pal))
	}
	if pal[0] != (color.NRGBA{200, 10, 10, 255}) {
		t.Errorf("expected most frequent color first, got %v", pal[0])
	}

	out := Remap(img, pal, DitherOrdered)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if out.At(x, y) != img.At(x, y) {
				t.Fatalf("pixel (%d,%d) changed: %v -> %v", x, y, img.At(x, y), out.At(x, y))
			}
		}
	}
}

func TestPaletteSizeAndDeterminism(t *testing.T) {
	img := gradient(48, 48)
	h := NewHistogram(img)
	for _, n := range []int{1, 2, 7, 32, 256} {
		q := &Quantizer{Seed: 42}
		p1 := q.Palette(h, n)
		p2 := q.Palette(h, n)
		if len(p1) == 0 || len(p1) > n {
			t.Fatalf("n=%d: palette size %d out of range", n, len(p1))
		}
		if len(p1) != len(p2) {
			t.Fatalf("n=%d: palettes differ in size across runs", n)
		}
		for i := range p1 {
			if p1[i] != p2[i] {
				t.Fatalf("n=%d: palette entry %d differs across runs", n, i)
			}
		}
	}
}

func TestRemapStrategies(t *testing.T) {
	img := gradient(32, 32)
	q := &Quantizer{Seed: 3}
	pal := q.Palette(NewHistogram(img), 8)
	for _, d := range []Dither{DitherNone, DitherOrdered, DitherDiffusion} {
		t.Run(string(d), func(t *testing.T) {
			out := Remap(img, pal, d)
			if out.Bounds() != img.Bounds() {
				t.Fatalf("bounds changed: %v", out.Bounds())
			}
			for _, idx := range out.Pix {
				if int(idx) >= len(pal) {
					t.Fatalf("index %d outside palette of %d", idx, len(pal))
				}
			}
		})
	}
}

func TestParseDither(t *testing.T) {
	tests := []struct {
		in      string
		want    Dither
		wantErr bool
	}{
		{"", DitherOrdered, false},
		{"Ordered", DitherOrdered, false},
		{"none", DitherNone, false},
		{"diffusion", DitherDiffusion, false},
		{"bayer", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDither(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDither(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDither(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTransparentPixelsCollapse(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 0})
	img.SetNRGBA(1, 0, color.NRGBA{90, 80, 70, 0})
	if h := NewHistogram(img); h.Len() != 1 {
		t.Fatalf("expected transparent pixels to share one entry, got %d", h.Len())
	}
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / (w - 1)),
				G: uint8(y * 255 / (h - 1)),
				B: uint8((x + y) * 127 / (w + h - 2)),
				A: 255,
			})
		}
	}
	return img
}
