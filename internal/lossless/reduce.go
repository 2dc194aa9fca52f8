package lossless

import (
	"image"
	"image/color"
	"sort"
)

// PNG color types.
const (
	colorGray      uint8 = 0
	colorRGB       uint8 = 2
	colorPalette   uint8 = 3
	colorGrayAlpha uint8 = 4
	colorRGBA      uint8 = 6
)

// pixels is a straight-alpha 16-bit copy of an image, row-major.
type pixels struct {
	w, h int
	pix  []color.NRGBA64
}

// toPixels copies img. With clearTransparent, fully transparent pixels lose
// their color so they compress as one value.
func toPixels(img image.Image, clearTransparent bool) *pixels {
	b := img.Bounds()
	p := &pixels{w: b.Dx(), h: b.Dy(), pix: make([]color.NRGBA64, 0, b.Dx()*b.Dy())}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := nrgba64(img.At(x, y))
			if clearTransparent && c.A == 0 {
				c = color.NRGBA64{}
			}
			p.pix = append(p.pix, c)
		}
	}
	return p
}

func (p *pixels) at(x, y int) color.NRGBA64 {
	return p.pix[y*p.w+x]
}

// nrgba64 converts without the premultiply round trip that color.Convert
// takes, which would lose precision for translucent 8-bit colors.
func nrgba64(c color.Color) color.NRGBA64 {
	switch v := c.(type) {
	case color.NRGBA64:
		return v
	case color.NRGBA:
		return color.NRGBA64{
			R: uint16(v.R) * 0x101,
			G: uint16(v.G) * 0x101,
			B: uint16(v.B) * 0x101,
			A: uint16(v.A) * 0x101,
		}
	default:
		return color.NRGBA64Model.Convert(c).(color.NRGBA64)
	}
}

func key8(c color.NRGBA64) uint32 {
	return uint32(c.R>>8)<<24 | uint32(c.G>>8)<<16 | uint32(c.B>>8)<<8 | uint32(c.A>>8)
}

func fits8(v uint16) bool { return v>>8 == v&0xff }

// stats summarises what a lossless encoding must be able to represent.
type stats struct {
	opaque    bool
	gray      bool
	wide      bool // some sample needs 16 bits
	grayDepth uint8
	counts    map[uint32]int // nil once more than 256 colors are seen
}

func analyze(p *pixels) stats {
	s := stats{opaque: true, gray: true, counts: map[uint32]int{}}
	grayMask := uint8(0)
	for _, c := range p.pix {
		if c.A != 0xffff {
			s.opaque = false
		}
		if c.R != c.G || c.G != c.B {
			s.gray = false
		}
		if !s.wide && !(fits8(c.R) && fits8(c.G) && fits8(c.B) && fits8(c.A)) {
			s.wide = true
		}
		if s.gray {
			grayMask |= grayNeeds(uint8(c.R >> 8))
		}
		if s.counts != nil {
			s.counts[key8(c)]++
			if len(s.counts) > 256 {
				s.counts = nil
			}
		}
	}
	switch {
	case grayMask&8 != 0:
		s.grayDepth = 8
	case grayMask&4 != 0:
		s.grayDepth = 4
	case grayMask&2 != 0:
		s.grayDepth = 2
	default:
		s.grayDepth = 1
	}
	if s.wide {
		s.counts = nil
	}
	return s
}

// grayNeeds returns a bit for the smallest depth that represents v exactly.
func grayNeeds(v uint8) uint8 {
	switch {
	case v%255 == 0:
		return 1
	case v%85 == 0:
		return 2
	case v%17 == 0:
		return 4
	default:
		return 8
	}
}

// encoding is one way of storing the pixels.
type encoding struct {
	colorType uint8
	depth     uint8
	palette   []color.NRGBA
	index     map[uint32]uint8
}

func (e *encoding) channels() int {
	switch e.colorType {
	case colorRGB:
		return 3
	case colorGrayAlpha:
		return 2
	case colorRGBA:
		return 4
	default:
		return 1
	}
}

// bpp is the filter unit: bytes per complete pixel, at least one.
func (e *encoding) bpp() int {
	n := e.channels() * int(e.depth) / 8
	if n < 1 {
		return 1
	}
	return n
}

func (e *encoding) rowBytes(width int) int {
	return (width*e.channels()*int(e.depth) + 7) / 8
}

func (e *encoding) same(o *encoding) bool {
	return e.colorType == o.colorType && e.depth == o.depth
}

// plan lists the encodings worth trying, smallest representation first.
// With alternates, the direct 8/16-bit form is added when it differs.
func plan(s stats, alternates bool) []*encoding {
	direct := &encoding{colorType: colorRGB, depth: 8}
	switch {
	case s.gray && s.opaque:
		direct.colorType = colorGray
	case s.gray:
		direct.colorType = colorGrayAlpha
	case !s.opaque:
		direct.colorType = colorRGBA
	}
	if s.wide {
		direct.depth = 16
	}

	var primary *encoding
	pal := paletteEncoding(s.counts)
	switch {
	case s.gray && s.opaque && !s.wide && (pal == nil || s.grayDepth <= pal.depth):
		primary = &encoding{colorType: colorGray, depth: s.grayDepth}
	case pal != nil:
		primary = pal
	default:
		primary = direct
	}

	encs := []*encoding{primary}
	if alternates && !direct.same(primary) {
		encs = append(encs, direct)
	}
	return encs
}

// paletteEncoding orders translucent entries first so tRNS stays short,
// then by frequency.
func paletteEncoding(counts map[uint32]int) *encoding {
	if counts == nil || len(counts) == 0 {
		return nil
	}
	keys := make([]uint32, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oj := keys[i]&0xff == 0xff, keys[j]&0xff == 0xff
		if oi != oj {
			return !oi
		}
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	e := &encoding{colorType: colorPalette, index: make(map[uint32]uint8, len(keys))}
	for i, k := range keys {
		e.index[k] = uint8(i)
		e.palette = append(e.palette, color.NRGBA{R: uint8(k >> 24), G: uint8(k >> 16), B: uint8(k >> 8), A: uint8(k)})
	}
	switch n := len(keys); {
	case n <= 2:
		e.depth = 1
	case n <= 4:
		e.depth = 2
	case n <= 16:
		e.depth = 4
	default:
		e.depth = 8
	}
	return e
}

// paletteChunks returns PLTE and tRNS payloads; tRNS is nil when every
// entry is opaque.
func (e *encoding) paletteChunks() (plte, trns []byte) {
	plte = make([]byte, 0, 3*len(e.palette))
	for _, c := range e.palette {
		plte = append(plte, c.R, c.G, c.B)
		if c.A != 0xff {
			trns = append(trns, c.A)
		}
	}
	return plte, trns
}

// appendRow packs the pixels of row y at columns x0, x0+dx, ... into dst.
func (e *encoding) appendRow(dst []byte, p *pixels, y, x0, dx int) []byte {
	if e.depth < 8 {
		return e.appendPacked(dst, p, y, x0, dx)
	}
	for x := x0; x < p.w; x += dx {
		c := p.at(x, y)
		switch e.colorType {
		case colorPalette:
			dst = append(dst, e.index[key8(c)])
		case colorGray:
			dst = appendSample(dst, c.R, e.depth)
		case colorGrayAlpha:
			dst = appendSample(dst, c.R, e.depth)
			dst = appendSample(dst, c.A, e.depth)
		case colorRGB:
			dst = appendSample(dst, c.R, e.depth)
			dst = appendSample(dst, c.G, e.depth)
			dst = appendSample(dst, c.B, e.depth)
		case colorRGBA:
			dst = appendSample(dst, c.R, e.depth)
			dst = appendSample(dst, c.G, e.depth)
			dst = appendSample(dst, c.B, e.depth)
			dst = appendSample(dst, c.A, e.depth)
		}
	}
	return dst
}

func appendSample(dst []byte, v uint16, depth uint8) []byte {
	if depth == 16 {
		return append(dst, byte(v>>8), byte(v))
	}
	return append(dst, byte(v>>8))
}

// appendPacked handles sub-byte depths, most significant bits first.
func (e *encoding) appendPacked(dst []byte, p *pixels, y, x0, dx int) []byte {
	depth := uint(e.depth)
	scale := uint8(255 / (1<<depth - 1))
	var cur byte
	used := uint(0)
	for x := x0; x < p.w; x += dx {
		c := p.at(x, y)
		var v uint8
		if e.colorType == colorPalette {
			v = e.index[key8(c)]
		} else {
			v = uint8(c.R>>8) / scale
		}
		cur |= v << (8 - depth - used)
		used += depth
		if used == 8 {
			dst = append(dst, cur)
			cur, used = 0, 0
		}
	}
	if used > 0 {
		dst = append(dst, cur)
	}
	return dst
}
