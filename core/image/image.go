// Package image measures cover art: pixel dimensions for the formats a FLAC
// picture block is commonly filled with (JPEG, PNG, GIF, WebP, BMP, TIFF).
package image

import (
	"bytes"
	"errors"
	"fmt"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ankit-chaubey/flacgrab/core"
)

// Info describes a measured image.
type Info struct {
	Format core.FormatID
	Width  int
	Height int
}

// ErrNoDimensions is returned when no decoder could measure an image.
var ErrNoDimensions = errors.New("image dimensions could not be determined")

// Probe returns the format and pixel dimensions of data. JPEG and TIFF files
// the registered decoders reject fall back to the EXIF pixel dimension tags.
func Probe(data []byte) (*Info, error) {
	format := core.DetectMagic(data)
	if format == core.FmtUnknown {
		return nil, fmt.Errorf("unrecognised image content: %w", ErrNoDimensions)
	}

	cfg, _, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err == nil && cfg.Width > 0 && cfg.Height > 0 {
		return &Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
	}

	var w, h int
	switch format {
	case core.FmtJPEG, core.FmtTIFF:
		w, h, err = exifDimensions(data)
	default:
		if err == nil {
			return nil, fmt.Errorf("%s reports %dx%d: %w", format, cfg.Width, cfg.Height, ErrNoDimensions)
		}
		return nil, fmt.Errorf("%s: %v: %w", format, err, ErrNoDimensions)
	}
	if err != nil {
		return nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%s reports %dx%d: %w", format, w, h, ErrNoDimensions)
	}
	return &Info{Format: format, Width: w, Height: h}, nil
}

// ─── EXIF ────────────────────────────────────────────────────────────────────

// exifDimensions reads PixelXDimension/PixelYDimension, or the TIFF
// ImageWidth/ImageLength tags.
func exifDimensions(data []byte) (int, int, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("no usable EXIF data (%v): %w", err, ErrNoDimensions)
	}
	pairs := [][2]exif.FieldName{
		{exif.PixelXDimension, exif.PixelYDimension},
		{exif.ImageWidth, exif.ImageLength},
	}
	for _, pair := range pairs {
		w, werr := exifInt(x, pair[0])
		h, herr := exifInt(x, pair[1])
		if werr == nil && herr == nil && w > 0 && h > 0 {
			return w, h, nil
		}
	}
	return 0, 0, fmt.Errorf("EXIF carries no pixel dimensions: %w", ErrNoDimensions)
}

func exifInt(x *exif.Exif, name exif.FieldName) (int, error) {
	tag, err := x.Get(name)
	if err != nil {
		return 0, err
	}
	return tag.Int(0)
}
