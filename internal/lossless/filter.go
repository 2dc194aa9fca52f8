package lossless

import "fmt"

// Strategy chooses the PNG filter for each scanline.
type Strategy int

const (
	FilterNone Strategy = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
	// FilterMinSum picks, per row, the filter with the smallest sum of
	// absolute signed residuals.
	FilterMinSum
)

func (s Strategy) String() string {
	switch s {
	case FilterNone:
		return "none"
	case FilterSub:
		return "sub"
	case FilterUp:
		return "up"
	case FilterAverage:
		return "average"
	case FilterPaeth:
		return "paeth"
	case FilterMinSum:
		return "minsum"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// filterOrder is the order in which presets add strategies.
var filterOrder = []Strategy{FilterNone, FilterMinSum, FilterSub, FilterUp, FilterPaeth, FilterAverage}

// filterPasses filters every row of every pass into one IDAT payload. The
// previous row resets to zero at the start of each pass.
func filterPasses(passes [][][]byte, bpp int, s Strategy) []byte {
	size := 0
	for _, rows := range passes {
		for _, r := range rows {
			size += len(r) + 1
		}
	}
	out := make([]byte, 0, size)

	var scratch [5][]byte
	for _, rows := range passes {
		if len(rows) == 0 {
			continue
		}
		prev := make([]byte, len(rows[0]))
		for _, row := range rows {
			if s != FilterMinSum {
				out = append(out, byte(s))
				out = appendFiltered(out, row, prev, bpp, byte(s))
			} else {
				best, bestSum := 0, -1
				for f := range scratch {
					scratch[f] = appendFiltered(scratch[f][:0], row, prev, bpp, byte(f))
					if sum := residualSum(scratch[f]); bestSum < 0 || sum < bestSum {
						best, bestSum = f, sum
					}
				}
				out = append(out, byte(best))
				out = append(out, scratch[best]...)
			}
			prev = row
		}
	}
	return out
}

func appendFiltered(dst, row, prev []byte, bpp int, f byte) []byte {
	switch f {
	case 0:
		return append(dst, row...)
	case 1:
		for i, v := range row {
			var a byte
			if i >= bpp {
				a = row[i-bpp]
			}
			dst = append(dst, v-a)
		}
	case 2:
		for i, v := range row {
			dst = append(dst, v-prev[i])
		}
	case 3:
		for i, v := range row {
			var a int
			if i >= bpp {
				a = int(row[i-bpp])
			}
			dst = append(dst, v-byte((a+int(prev[i]))/2))
		}
	case 4:
		for i, v := range row {
			var a, c byte
			if i >= bpp {
				a, c = row[i-bpp], prev[i-bpp]
			}
			dst = append(dst, v-paeth(a, prev[i], c))
		}
	}
	return dst
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func residualSum(row []byte) int {
	sum := 0
	for _, v := range row {
		sum += abs(int(int8(v)))
	}
	return sum
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// adam7 lists the pass origins and steps of Adam7 interlacing.
var adam7 = [7]struct{ x0, y0, dx, dy int }{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// scanlines builds the unfiltered rows of e, one slice per pass. A
// non-interlaced image is a single pass.
func scanlines(p *pixels, e *encoding, interlaced bool) [][][]byte {
	if !interlaced {
		rows := make([][]byte, p.h)
		for y := range rows {
			rows[y] = e.appendRow(make([]byte, 0, e.rowBytes(p.w)), p, y, 0, 1)
		}
		return [][][]byte{rows}
	}

	passes := make([][][]byte, 0, len(adam7))
	for _, pass := range adam7 {
		if pass.x0 >= p.w || pass.y0 >= p.h {
			continue
		}
		w := (p.w - pass.x0 + pass.dx - 1) / pass.dx
		var rows [][]byte
		for y := pass.y0; y < p.h; y += pass.dy {
			rows = append(rows, e.appendRow(make([]byte, 0, e.rowBytes(w)), p, y, pass.x0, pass.dx))
		}
		passes = append(passes, rows)
	}
	return passes
}
