package lossless

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"tinyimg/pkg/imgutil"
)

// StripMode selects which ancillary chunks survive optimization.
type StripMode string

const (
	StripNone StripMode = "none" // Keep all metadata.
	StripSafe StripMode = "safe" // Keep only chunks that affect rendering.
	StripAll  StripMode = "all"  // Drop every ancillary chunk.
)

// ParseStripMode validates a strip mode name.
func ParseStripMode(s string) (StripMode, error) {
	switch m := StripMode(strings.ToLower(strings.TrimSpace(s))); m {
	case StripNone, StripSafe, StripAll:
		return m, nil
	default:
		return "", fmt.Errorf("invalid strip mode %q (use 'none', 'safe' or 'all')", s)
	}
}

// Chunk is one PNG chunk without its length and CRC framing.
type Chunk struct {
	Type string
	Data []byte
}

// Critical reports whether the chunk type is critical (uppercase first
// letter).
func (c Chunk) Critical() bool {
	return c.Type[0]&0x20 == 0
}

// Header is the decoded IHDR chunk.
type Header struct {
	Width     int
	Height    int
	BitDepth  uint8
	ColorType uint8
	Interlace uint8
}

// ErrMalformed marks streams that are not well-formed PNG.
var ErrMalformed = errors.New("malformed PNG")

var (
	errBadSignature = fmt.Errorf("%w: invalid signature", ErrMalformed)
	errNoHeader     = fmt.Errorf("%w: missing IHDR chunk", ErrMalformed)
)

// ReadChunks splits a PNG stream into chunks, verifying framing and CRCs.
// Anything after IEND is ignored.
func ReadChunks(data []byte) ([]Chunk, error) {
	if !bytes.HasPrefix(data, imgutil.PNGSignature) {
		return nil, errBadSignature
	}
	rest := data[len(imgutil.PNGSignature):]

	var chunks []Chunk
	for {
		if len(rest) < 12 {
			return nil, fmt.Errorf("%w: truncated after %d chunks", ErrMalformed, len(chunks))
		}
		length := binary.BigEndian.Uint32(rest[:4])
		if uint64(length)+12 > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: chunk %q overruns stream", ErrMalformed, rest[4:8])
		}
		chunkName := string(rest[4:8])
		body := rest[8 : 8+length]
		crc := binary.BigEndian.Uint32(rest[8+length : 12+length])
		if crc32.ChecksumIEEE(rest[4:8+length]) != crc {
			return nil, fmt.Errorf("%w: CRC mismatch in %s chunk", ErrMalformed, chunkName)
		}
		chunks = append(chunks, Chunk{Type: chunkName, Data: body})
		rest = rest[12+length:]

		if chunkName == "IEND" {
			break
		}
	}

	if chunks[0].Type != "IHDR" {
		return nil, errNoHeader
	}
	return chunks, nil
}

// ParseHeader decodes an IHDR chunk.
func ParseHeader(c Chunk) (Header, error) {
	if c.Type != "IHDR" || len(c.Data) != 13 {
		return Header{}, errNoHeader
	}
	return Header{
		Width:     int(binary.BigEndian.Uint32(c.Data[0:4])),
		Height:    int(binary.BigEndian.Uint32(c.Data[4:8])),
		BitDepth:  c.Data[8],
		ColorType: c.Data[9],
		Interlace: c.Data[12],
	}, nil
}

func (h Header) chunk() Chunk {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], uint32(h.Width))
	binary.BigEndian.PutUint32(data[4:8], uint32(h.Height))
	data[8] = h.BitDepth
	data[9] = h.ColorType
	data[12] = h.Interlace
	return Chunk{Type: "IHDR", Data: data}
}

// Animated reports whether the chunk list carries an APNG animation.
func Animated(chunks []Chunk) bool {
	for _, c := range chunks {
		switch c.Type {
		case "acTL":
			return true
		case "IDAT":
			return false
		}
	}
	return false
}

// EncodeChunks writes a PNG stream.
func EncodeChunks(chunks []Chunk) []byte {
	size := len(imgutil.PNGSignature)
	for _, c := range chunks {
		size += 12 + len(c.Data)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.Write(imgutil.PNGSignature)
	for _, c := range chunks {
		writeChunk(buf, c)
	}
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, c Chunk) {
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(len(c.Data)))
	buf.Write(word[:])
	crc := crc32.NewIEEE()
	crc.Write([]byte(c.Type))
	crc.Write(c.Data)
	buf.WriteString(c.Type)
	buf.Write(c.Data)
	binary.BigEndian.PutUint32(word[:], crc.Sum32())
	buf.Write(word[:])
}

// renderingChunks affect how pixels are displayed and survive safe
// stripping. They must precede PLTE.
var renderingChunks = map[string]bool{
	"iCCP": true,
	"sRGB": true,
	"gAMA": true,
	"cHRM": true,
	"cICP": true,
	"mDCv": true,
	"cLLi": true,
}

// colorDependentChunks describe samples in terms of the color type and bit
// depth, so they are invalid once either changes.
var colorDependentChunks = map[string]bool{
	"bKGD": true,
	"hIST": true,
	"sBIT": true,
}

// essentialChunks are ancillary by name but carry pixel or animation data.
var essentialChunks = map[string]bool{
	"tRNS": true,
	"acTL": true,
	"fcTL": true,
	"fdAT": true,
}

// keepAncillary decides whether an ancillary chunk survives mode.
func keepAncillary(c Chunk, mode StripMode) bool {
	if essentialChunks[c.Type] {
		return true
	}
	switch mode {
	case StripNone:
		return true
	case StripSafe:
		switch {
		case renderingChunks[c.Type], c.Type == "pHYs":
			return true
		case c.Type == "eXIf":
			return exifRotated(c.Data)
		}
		return false
	default:
		return false
	}
}

// StripChunks filters ancillary chunks without touching image data.
func StripChunks(chunks []Chunk, mode StripMode) []Chunk {
	res := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Critical() || keepAncillary(c, mode) {
			res = append(res, c)
		}
	}
	return res
}

// ancillaryLayout holds the metadata carried over into a re-encoded
// stream, grouped by where it must be written.
type ancillaryLayout struct {
	beforePLTE []Chunk
	beforeIDAT []Chunk
	afterIDAT  []Chunk
}

// layoutAncillary selects the source chunks to carry into a re-encoded
// image. Chunks regenerated by the encoder (tRNS) and animation chunks are
// never carried; color-dependent chunks are dropped when the header
// changed.
func layoutAncillary(chunks []Chunk, mode StripMode, headerChanged bool) ancillaryLayout {
	var l ancillaryLayout
	seenIDAT := false
	for _, c := range chunks {
		if c.Type == "IDAT" {
			seenIDAT = true
			continue
		}
		if c.Critical() || essentialChunks[c.Type] {
			continue
		}
		if headerChanged && colorDependentChunks[c.Type] {
			continue
		}
		if !keepAncillary(c, mode) {
			continue
		}
		switch {
		case renderingChunks[c.Type]:
			l.beforePLTE = append(l.beforePLTE, c)
		case !seenIDAT:
			l.beforeIDAT = append(l.beforeIDAT, c)
		default:
			l.afterIDAT = append(l.afterIDAT, c)
		}
	}
	return l
}
