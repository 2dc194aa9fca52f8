package lossy

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// curve is a synthetic error-vs-palette-size function, non-increasing in n.
type curve func(n int) float64

var curves = map[string]curve{
	"inverse":  func(n int) float64 { return 120 / float64(n) },
	"log":      func(n int) float64 { return 40 - 7*math.Log2(float64(n)) },
	"step":     func(n int) float64 { return float64(10 - n/30) },
	"flat":     func(n int) float64 { return 3 },
	"cliff-17": func(n int) float64 { return map[bool]float64{true: 50, false: 0.1}[n < 17] },
}

func bruteForce(c curve, budget float64, hi int) int {
	for n := 1; n < hi; n++ {
		if c(n) <= budget {
			return n
		}
	}
	return hi
}

func TestBisectMatchesBruteForce(t *testing.T) {
	budgets := []float64{0.05, 0.1, 0.5, 1, 2, 2.9, 3, 4.7, 7, 10, 25, 40, 200}
	for name, c := range curves {
		for _, hi := range []int{1, 2, 16, 255, 256} {
			for _, budget := range budgets {
				got, steps, err := Bisect(1, hi, func(n int) (bool, error) {
					if n < 1 || n > hi {
						t.Fatalf("%s: evaluated n=%d outside [1,%d]", name, n, hi)
					}
					return c(n) <= budget, nil
				})
				if err != nil {
					t.Fatalf("%s: unexpected error: %v", name, err)
				}
				if want := bruteForce(c, budget, hi); got != want {
					t.Errorf("%s hi=%d budget=%v: Bisect = %d, brute force = %d", name, hi, budget, got, want)
				}
				if steps > 8 {
					t.Errorf("%s hi=%d budget=%v: %d steps, want at most 8", name, hi, budget, steps)
				}
			}
		}
	}
}

func TestBisectMonotoneInBudget(t *testing.T) {
	for name, c := range curves {
		prev := math.MaxInt
		for budget := 0.0; budget <= 60; budget += 0.25 {
			got, _, _ := Bisect(1, 256, func(n int) (bool, error) { return c(n) <= budget, nil })
			if got > prev {
				t.Fatalf("%s: budget %v selected %d, larger than %d for a smaller budget", name, budget, got, prev)
			}
			prev = got
		}
	}
}

func TestReduceDisabledBudget(t *testing.T) {
	img := colorful(16, 16)
	s := &Selector{}
	for _, b := range []Budget{Lossless, {DeltaE: -3}} {
		out, sel, err := s.Reduce(img, b)
		if err != nil {
			t.Fatalf("budget %v: %v", b, err)
		}
		if out != nil || sel.Applied || len(sel.Trace) != 0 {
			t.Fatalf("budget %v: expected no lossy work, got %+v", b, sel)
		}
	}
}

func TestReduceTightAndLooseBudgets(t *testing.T) {
	img := colorful(64, 64)
	s := &Selector{}
	s.Quantizer.Seed = 7

	tight, err := s.Select(img, Budget{DeltaE: 0.5})
	if err != nil {
		t.Fatalf("tight: %v", err)
	}
	if tight.Colors < 200 {
		t.Errorf("tight budget selected %d colors, want close to 256", tight.Colors)
	}

	loose, err := s.Select(img, Budget{DeltaE: 40})
	if err != nil {
		t.Fatalf("loose: %v", err)
	}
	if loose.Colors > 16 {
		t.Errorf("loose budget selected %d colors, want at most 16", loose.Colors)
	}
	if len(loose.Trace) > 9 {
		t.Errorf("loose search evaluated %d candidates, want at most 9", len(loose.Trace))
	}
	if loose.Colors > tight.Colors {
		t.Errorf("larger budget selected more colors: %d > %d", loose.Colors, tight.Colors)
	}

	out, sel, err := s.Reduce(img, Budget{DeltaE: 40})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if !sel.Applied || out == nil {
		t.Fatalf("expected a remapped image")
	}
	if len(out.Palette) > sel.Colors {
		t.Errorf("palette has %d entries, selection was %d", len(out.Palette), sel.Colors)
	}
}

func TestReduceFewColorsIsExact(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 64; i++ {
		img.SetNRGBA(i%8, i/8, color.NRGBA{R: uint8(i % 4 * 60), G: 30, B: 90, A: 255})
	}
	s := &Selector{Dither: "none"}
	out, sel, err := s.Reduce(img, Budget{DeltaE: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if sel.Colors != 4 {
		t.Fatalf("expected 4 colors, got %d", sel.Colors)
	}
	for i := 0; i < 64; i++ {
		if out.At(i%8, i/8) != img.At(i%8, i/8) {
			t.Fatalf("pixel %d changed", i)
		}
	}
}

func TestAutoThreshold(t *testing.T) {
	flat := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := range flat.Pix {
		flat.Pix[i] = 200
	}
	s := &Selector{}
	sel, err := s.Select(flat, AutoBudget)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Threshold != autoMin {
		t.Errorf("flat image threshold = %v, want %v", sel.Threshold, autoMin)
	}

	busy, err := s.Select(colorful(32, 32), AutoBudget)
	if err != nil {
		t.Fatal(err)
	}
	if busy.Threshold <= autoMin || busy.Threshold > autoMax {
		t.Errorf("busy image threshold = %v, want in (%v, %v]", busy.Threshold, autoMin, autoMax)
	}
}

func TestSampleCap(t *testing.T) {
	for _, size := range []image.Point{{1, 1}, {100, 100}, {300, 300}, {317, 211}} {
		img := image.NewNRGBA(image.Rectangle{Max: size})
		s := newSample(img, MaxSamples)
		if len(s.labs) == 0 || len(s.labs) > MaxSamples {
			t.Errorf("%v: sampled %d pixels", size, len(s.labs))
		}
	}
}

func TestPercentile(t *testing.T) {
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = float64(100 - i)
	}
	if got := percentile(vals, 0.95); got != 95 {
		t.Errorf("p95 of 1..100 = %v, want 95", got)
	}
	if got := percentile([]float64{7}, 0.95); got != 7 {
		t.Errorf("p95 of single value = %v, want 7", got)
	}
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		in      string
		want    Budget
		enabled bool
		wantErr bool
	}{
		{"", Lossless, false, false},
		{"0", Budget{}, false, false},
		{"-2", Budget{DeltaE: -2}, false, false},
		{"2.5", Budget{DeltaE: 2.5}, true, false},
		{"AUTO", AutoBudget, true, false},
		{"NaN", Budget{}, false, true},
		{"inf", Budget{}, false, true},
		{"lots", Budget{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBudget(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBudget(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBudget(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if got.Enabled() != tt.enabled {
				t.Errorf("ParseBudget(%q).Enabled() = %v, want %v", tt.in, got.Enabled(), tt.enabled)
			}
		})
	}
}

func colorful(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / (w - 1)),
				G: uint8(y * 255 / (h - 1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}
