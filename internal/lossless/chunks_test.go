package lossless

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestReadChunksRoundTrip(t *testing.T) {
	src := encodePNG(t, solid(3, 2, color.NRGBA{R: 9, A: 255}))
	chunks, err := ReadChunks(src)
	if err != nil {
		t.Fatalf("ReadChunks: %v", err)
	}
	if chunks[0].Type != "IHDR" || chunks[len(chunks)-1].Type != "IEND" {
		t.Fatalf("unexpected chunk order: %v", chunkTypes(chunks))
	}
	if got := EncodeChunks(chunks); !bytes.Equal(got, src) {
		t.Fatalf("re-encoded stream differs from source")
	}

	hdr, err := ParseHeader(chunks[0])
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Width != 3 || hdr.Height != 2 {
		t.Fatalf("header = %+v", hdr)
	}
}

func TestReadChunksRejectsCorruption(t *testing.T) {
	src := encodePNG(t, solid(3, 2, color.NRGBA{R: 9, A: 255}))

	bad := append([]byte{}, src...)
	bad[20] ^= 0xff // inside IHDR
	if _, err := ReadChunks(bad); err == nil {
		t.Fatalf("expected CRC error")
	}
	if _, err := ReadChunks(src[:len(src)-6]); err == nil {
		t.Fatalf("expected truncation error")
	}
	if _, err := ReadChunks([]byte("GIF89a")); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestExifOrientation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    int
		rotated bool
	}{
		{"upright", exifWithOrientation(1), 1, false},
		{"rotated", exifWithOrientation(6), 6, true},
		{"mirrored", exifWithOrientation(2), 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := exifOrientation(tt.data)
			if err != nil {
				t.Fatalf("exifOrientation: %v", err)
			}
			if got != tt.want {
				t.Errorf("orientation = %d, want %d", got, tt.want)
			}
			if exifRotated(tt.data) != tt.rotated {
				t.Errorf("exifRotated = %v, want %v", !tt.rotated, tt.rotated)
			}
		})
	}

	if exifRotated([]byte("garbage")) {
		t.Errorf("garbage EXIF reported as rotated")
	}
}

func TestStripChunks(t *testing.T) {
	chunks := withMetadata(t, encodePNG(t, solid(4, 4, color.NRGBA{G: 80, A: 255})), exifWithOrientation(6))

	tests := []struct {
		mode   StripMode
		keep   []string
		remove []string
	}{
		{StripNone, []string{"gAMA", "pHYs", "tEXt", "eXIf"}, nil},
		{StripSafe, []string{"gAMA", "pHYs", "eXIf"}, []string{"tEXt"}},
		{StripAll, nil, []string{"gAMA", "pHYs", "tEXt", "eXIf"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got := chunkTypes(StripChunks(chunks, tt.mode))
			for _, typ := range tt.keep {
				if !got[typ] {
					t.Errorf("%s dropped", typ)
				}
			}
			for _, typ := range tt.remove {
				if got[typ] {
					t.Errorf("%s kept", typ)
				}
			}
			if !got["IHDR"] || !got["IDAT"] || !got["IEND"] {
				t.Errorf("critical chunk dropped: %v", got)
			}
		})
	}

	upright := withMetadata(t, encodePNG(t, solid(4, 4, color.NRGBA{G: 80, A: 255})), exifWithOrientation(1))
	if chunkTypes(StripChunks(upright, StripSafe))["eXIf"] {
		t.Errorf("safe mode kept an upright eXIf chunk")
	}
}

func TestLayoutAncillary(t *testing.T) {
	chunks := []Chunk{
		{Type: "IHDR", Data: make([]byte, 13)},
		{Type: "bKGD", Data: []byte{0, 1}},
		{Type: "tEXt", Data: []byte("k\x00v")},
		{Type: "IDAT"},
		{Type: "gAMA", Data: []byte{0, 0, 0xb1, 0x8f}},
		{Type: "tIME", Data: make([]byte, 7)},
		{Type: "IEND"},
	}

	l := layoutAncillary(chunks, StripNone, true)
	if len(l.beforePLTE) != 1 || l.beforePLTE[0].Type != "gAMA" {
		t.Errorf("beforePLTE = %v", l.beforePLTE)
	}
	if len(l.beforeIDAT) != 1 || l.beforeIDAT[0].Type != "tEXt" {
		t.Errorf("beforeIDAT = %v, want only tEXt (bKGD invalid after color change)", l.beforeIDAT)
	}
	if len(l.afterIDAT) != 1 || l.afterIDAT[0].Type != "tIME" {
		t.Errorf("afterIDAT = %v", l.afterIDAT)
	}

	l = layoutAncillary(chunks, StripNone, false)
	if len(l.beforeIDAT) != 2 {
		t.Errorf("bKGD should survive an unchanged header, got %v", l.beforeIDAT)
	}
}

func exifWithOrientation(o uint16) []byte {
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, o)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))
	return tiff.Bytes()
}

// withMetadata inserts gAMA, pHYs, tEXt and eXIf chunks after IHDR.
func withMetadata(t *testing.T, src, exifData []byte) []Chunk {
	t.Helper()
	chunks, err := ReadChunks(src)
	if err != nil {
		t.Fatal(err)
	}
	meta := []Chunk{
		{Type: "gAMA", Data: []byte{0, 0, 0xb1, 0x8f}},
		{Type: "pHYs", Data: []byte{0, 0, 0x0b, 0x13, 0, 0, 0x0b, 0x13, 1}},
		{Type: "tEXt", Data: []byte("Software\x00tinyimg-test")},
		{Type: "eXIf", Data: exifData},
	}
	out := append([]Chunk{chunks[0]}, meta...)
	return append(out, chunks[1:]...)
}

func chunkTypes(chunks []Chunk) map[string]bool {
	m := map[string]bool{}
	for _, c := range chunks {
		m[c.Type] = true
	}
	return m
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
