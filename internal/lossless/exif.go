package lossless

import (
	"bytes"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// exifOrientation returns the Orientation tag (1-8) of a raw TIFF-structured
// EXIF block as carried by a PNG eXIf chunk, or 0 when there is none.
func exifOrientation(data []byte) (int, error) {
	tags, _, err := exif.GetFlatExifDataUniversalSearchWithReadSeeker(bytes.NewReader(data), nil, true)
	if err != nil {
		if errorsIsNoExif(err) {
			return 0, nil
		}
		return 0, err
	}

	for _, tag := range tags {
		if tag.TagName != "Orientation" {
			continue
		}
		switch v := tag.Value.(type) {
		case []uint16:
			if len(v) > 0 {
				return int(v[0]), nil
			}
		case uint16:
			return int(v), nil
		}
	}
	return 0, nil
}

// exifRotated reports whether the EXIF block asks viewers to rotate or flip
// the image. Unreadable blocks count as not rotated.
func exifRotated(data []byte) bool {
	o, err := exifOrientation(data)
	return err == nil && o > 1 && o <= 8
}

func errorsIsNoExif(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "no exif")
}
