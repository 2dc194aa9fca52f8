// Package lossless recompresses PNG images without changing their pixels.
//
// Optimize reduces the color representation where that is exact, then
// tries combinations of scanline filters and deflate levels chosen by an
// optimization level, keeping the smallest stream.
package lossless

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"
)

// MaxLevel is the most exhaustive optimization level.
const MaxLevel = 6

// ErrTimeout is returned when Options.Timeout expires before a result is
// available.
var ErrTimeout = errors.New("lossless optimization timed out")

// Interlace selects the output interlacing.
type Interlace string

const (
	InterlaceOff  Interlace = "off"
	InterlaceOn   Interlace = "on"   // Adam7
	InterlaceKeep Interlace = "keep" // same as the source
)

// ParseInterlace validates an interlace mode name.
func ParseInterlace(s string) (Interlace, error) {
	switch m := Interlace(strings.ToLower(strings.TrimSpace(s))); m {
	case InterlaceOff, InterlaceOn, InterlaceKeep:
		return m, nil
	default:
		return "", fmt.Errorf("invalid interlace mode %q (use 'off', 'on' or 'keep')", s)
	}
}

// Options controls a single Optimize call.
type Options struct {
	Level         int
	OptimizeAlpha bool
	Strip         StripMode
	Interlace     Interlace
	// Fast ranks trials with the cheapest deflate level and only compresses
	// the winner at the preset's levels.
	Fast    bool
	Timeout time.Duration
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Level:     2,
		Strip:     StripAll,
		Interlace: InterlaceOff,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.Level < 0 || o.Level > MaxLevel {
		return fmt.Errorf("level must be between 0 and %d, got %d", MaxLevel, o.Level)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", o.Timeout)
	}
	if _, err := ParseStripMode(string(o.Strip)); err != nil {
		return err
	}
	if _, err := ParseInterlace(string(o.Interlace)); err != nil {
		return err
	}
	return nil
}

type preset struct {
	filters    int
	zlevels    []int
	alternates bool
}

// presets are cumulative: each level tries everything the level below does.
var presets = [MaxLevel + 1]preset{
	{filters: 1, zlevels: []int{6}},
	{filters: 2, zlevels: []int{6}},
	{filters: 2, zlevels: []int{6, 9}},
	{filters: 4, zlevels: []int{6, 9}},
	{filters: 6, zlevels: []int{6, 9}, alternates: true},
	{filters: 6, zlevels: []int{4, 6, 8, 9}, alternates: true},
	{filters: 6, zlevels: []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, alternates: true},
}

// Optimize returns a smaller encoding of the PNG in src. When img is
// non-nil its pixels replace the decoded ones (a lossy pre-pass), while
// metadata still comes from src. Animated PNGs are only chunk-stripped.
func Optimize(ctx context.Context, src []byte, img image.Image, opts Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	chunks, err := ReadChunks(src)
	if err != nil {
		return nil, err
	}
	hdr, err := ParseHeader(chunks[0])
	if err != nil {
		return nil, err
	}
	if Animated(chunks) {
		return EncodeChunks(StripChunks(chunks, opts.Strip)), nil
	}

	replaced := img != nil
	if !replaced {
		if img, err = png.Decode(bytes.NewReader(src)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if err := checkContext(ctx, opts.Timeout); err != nil {
		return nil, err
	}

	interlaced := opts.Interlace == InterlaceOn ||
		(opts.Interlace == InterlaceKeep && hdr.Interlace == 1)

	pix := toPixels(img, opts.OptimizeAlpha)
	p := presets[opts.Level]
	best, err := search(ctx, pix, plan(analyze(pix), p.alternates), p, interlaced, opts)
	if err != nil {
		return nil, err
	}

	out := best.assemble(hdr, chunks, pix, opts.Strip)
	if !replaced && interlaced == (hdr.Interlace == 1) {
		if fb := EncodeChunks(StripChunks(chunks, opts.Strip)); len(fb) <= len(out) {
			return fb, nil
		}
	}
	return out, nil
}

// trial is one encoded candidate.
type trial struct {
	enc        *encoding
	strategy   Strategy
	zlevel     int
	interlaced bool
	idat       []byte
}

func (t *trial) assemble(src Header, chunks []Chunk, pix *pixels, mode StripMode) []byte {
	hdr := Header{
		Width:     pix.w,
		Height:    pix.h,
		BitDepth:  t.enc.depth,
		ColorType: t.enc.colorType,
	}
	if t.interlaced {
		hdr.Interlace = 1
	}
	changed := src.ColorType != hdr.ColorType || src.BitDepth != hdr.BitDepth || hdr.ColorType == colorPalette
	layout := layoutAncillary(chunks, mode, changed)

	out := []Chunk{hdr.chunk()}
	out = append(out, layout.beforePLTE...)
	if t.enc.colorType == colorPalette {
		plte, trns := t.enc.paletteChunks()
		out = append(out, Chunk{Type: "PLTE", Data: plte})
		if len(trns) > 0 {
			out = append(out, Chunk{Type: "tRNS", Data: trns})
		}
	}
	out = append(out, layout.beforeIDAT...)
	out = append(out, Chunk{Type: "IDAT", Data: t.idat})
	out = append(out, layout.afterIDAT...)
	out = append(out, Chunk{Type: "IEND"})
	return EncodeChunks(out)
}

// search runs the preset's trials and returns the smallest.
func search(ctx context.Context, pix *pixels, encs []*encoding, p preset, interlaced bool, opts Options) (*trial, error) {
	type filtered struct {
		enc      *encoding
		strategy Strategy
		data     []byte
	}
	var cands []filtered
	for _, e := range encs {
		passes := scanlines(pix, e, interlaced)
		for _, s := range filterOrder[:p.filters] {
			if err := checkContext(ctx, opts.Timeout); err != nil {
				return nil, err
			}
			cands = append(cands, filtered{enc: e, strategy: s, data: filterPasses(passes, e.bpp(), s)})
		}
	}

	if opts.Fast && len(cands) > 1 {
		winner, smallest := 0, -1
		for i, c := range cands {
			if err := checkContext(ctx, opts.Timeout); err != nil {
				return nil, err
			}
			z, err := deflate(c.data, 1)
			if err != nil {
				return nil, err
			}
			if smallest < 0 || len(z) < smallest {
				winner, smallest = i, len(z)
			}
		}
		cands = cands[winner : winner+1]
	}

	var best *trial
	for _, c := range cands {
		for _, level := range p.zlevels {
			if err := checkContext(ctx, opts.Timeout); err != nil {
				return nil, err
			}
			z, err := deflate(c.data, level)
			if err != nil {
				return nil, err
			}
			if best == nil || len(z) < len(best.idat) {
				best = &trial{enc: c.enc, strategy: c.strategy, zlevel: level, interlaced: interlaced, idat: z}
			}
		}
	}
	return best, nil
}

func deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checkContext(ctx context.Context, timeout time.Duration) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return err
}
