package imgutil

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// Kind identifies a supported image type.
type Kind int

const (
	KindUnknown Kind = iota
	KindPNG
	KindAPNG
)

func (k Kind) String() string {
	switch k {
	case KindPNG:
		return "png"
	case KindAPNG:
		return "apng"
	default:
		return "unknown"
	}
}

// PNGSignature is the 8-byte magic that starts every PNG stream.
var PNGSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

var extPattern = regexp.MustCompile(`(?i)\.a?png$`)

// HasPNGExt reports whether path carries a .png or .apng extension,
// ignoring case.
func HasPNGExt(path string) bool {
	return extPattern.MatchString(filepath.Base(path))
}

// DetectHeader inspects the first 8 bytes of a file for the PNG signature.
func DetectHeader(header []byte) (Kind, error) {
	if len(header) < 8 {
		return KindUnknown, errors.New("header too short")
	}
	if hasPrefix(header, PNGSignature) {
		return KindPNG, nil
	}
	return KindUnknown, nil
}

// SniffFile determines the type of the file at path.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads the signature from r and, for PNG streams, walks chunk
// headers up to the first IDAT to tell animated PNGs apart.
func SniffReader(r io.Reader) (Kind, error) {
	br := bufio.NewReader(r)
	header := make([]byte, 8)
	if _, err := io.ReadFull(br, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return KindUnknown, nil
		}
		return KindUnknown, err
	}

	kind, err := DetectHeader(header)
	if err != nil || kind != KindPNG {
		return kind, err
	}

	var chunkHeader [8]byte
	for {
		if _, err := io.ReadFull(br, chunkHeader[:]); err != nil {
			// Truncated streams still sniff as PNG; decoding reports the damage.
			return KindPNG, nil
		}
		length := binary.BigEndian.Uint32(chunkHeader[:4])
		switch string(chunkHeader[4:]) {
		case "acTL":
			return KindAPNG, nil
		case "IDAT", "IEND":
			return KindPNG, nil
		}
		if _, err := br.Discard(int(length) + 4); err != nil {
			return KindPNG, nil
		}
	}
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}
