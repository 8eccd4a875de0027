package image

import (
	"bytes"
	"encoding/binary"
	"errors"
	stdimage "image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ankit-chaubey/flacgrab/core"
)

func encoded(t *testing.T, w, h int, encode func(*bytes.Buffer, stdimage.Image) error) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// bmpHeader returns the file and info headers of an uncompressed 24-bit
// BMP. A negative h marks a top-down bitmap.
func bmpHeader(w, h int32) []byte {
	b := make([]byte, 54)
	copy(b, "BM")
	binary.LittleEndian.PutUint32(b[2:], 54)
	binary.LittleEndian.PutUint32(b[10:], 54) // pixel data offset
	binary.LittleEndian.PutUint32(b[14:], 40)
	binary.LittleEndian.PutUint32(b[18:], uint32(w))
	binary.LittleEndian.PutUint32(b[22:], uint32(h))
	binary.LittleEndian.PutUint16(b[26:], 1)  // planes
	binary.LittleEndian.PutUint16(b[28:], 24) // bits per pixel
	return b
}

// webp wraps a single chunk in a RIFF/WEBP container.
func webp(chunk string, payload []byte) []byte {
	body := append([]byte(chunk), binary.LittleEndian.AppendUint32(nil, uint32(len(payload)))...)
	body = append(body, payload...)
	if len(payload)%2 == 1 {
		body = append(body, 0)
	}
	b := []byte("RIFF")
	b = binary.LittleEndian.AppendUint32(b, uint32(4+len(body)))
	b = append(b, "WEBP"...)
	return append(b, body...)
}

// tiffWithSize returns a little-endian TIFF whose only IFD holds
// ImageWidth and ImageLength.
func tiffWithSize(w, h uint16) []byte {
	b := []byte{'I', 'I', 0x2A, 0x00, 8, 0, 0, 0}
	b = binary.LittleEndian.AppendUint16(b, 2)
	for _, e := range [][2]uint16{{0x0100, w}, {0x0101, h}} {
		b = binary.LittleEndian.AppendUint16(b, e[0])
		b = binary.LittleEndian.AppendUint16(b, 3) // SHORT
		b = binary.LittleEndian.AppendUint32(b, 1)
		b = binary.LittleEndian.AppendUint16(b, e[1])
		b = append(b, 0, 0)
	}
	return binary.LittleEndian.AppendUint32(b, 0)
}

func TestProbe(t *testing.T) {
	vp8 := []byte{0x00, 0x00, 0x00, 0x9D, 0x01, 0x2A}
	vp8 = binary.LittleEndian.AppendUint16(vp8, 320)
	vp8 = binary.LittleEndian.AppendUint16(vp8, 240)

	vp8l := []byte{0x2F}
	vp8l = binary.LittleEndian.AppendUint32(vp8l, uint32(99)|uint32(49)<<14)

	vp8x := []byte{0, 0, 0, 0, 0xFF, 0x03, 0x00, 0x7F, 0x02, 0x00}

	tests := []struct {
		name   string
		data   []byte
		format core.FormatID
		w, h   int
	}{
		{"png", encoded(t, 3, 2, func(b *bytes.Buffer, i stdimage.Image) error { return png.Encode(b, i) }), core.FmtPNG, 3, 2},
		{"jpeg", encoded(t, 16, 9, func(b *bytes.Buffer, i stdimage.Image) error { return jpeg.Encode(b, i, nil) }), core.FmtJPEG, 16, 9},
		{"gif", encoded(t, 5, 7, func(b *bytes.Buffer, i stdimage.Image) error { return gif.Encode(b, i, nil) }), core.FmtGIF, 5, 7},
		{"bmp bottom-up", bmpHeader(640, 480), core.FmtBMP, 640, 480},
		{"bmp top-down", bmpHeader(640, -480), core.FmtBMP, 640, 480},
		{"bmp encoded", encoded(t, 9, 4, func(b *bytes.Buffer, i stdimage.Image) error { return bmp.Encode(b, i) }), core.FmtBMP, 9, 4},
		{"webp lossy", webp("VP8 ", vp8), core.FmtWebP, 320, 240},
		{"webp lossless", webp("VP8L", vp8l), core.FmtWebP, 100, 50},
		{"webp extended", webp("VP8X", vp8x), core.FmtWebP, 1024, 640},
		{"tiff", tiffWithSize(7, 5), core.FmtTIFF, 7, 5},
		{"tiff encoded", encoded(t, 6, 3, func(b *bytes.Buffer, i stdimage.Image) error { return tiff.Encode(b, i, nil) }), core.FmtTIFF, 6, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Probe(tt.data)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if info.Format != tt.format || info.Width != tt.w || info.Height != tt.h {
				t.Errorf("Probe() = %s %dx%d, want %s %dx%d",
					info.Format, info.Width, info.Height, tt.format, tt.w, tt.h)
			}
		})
	}
}

func TestProbeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("hello, world")},
		{"short bmp", []byte("BM\x00\x00\x00\x00")},
		{"zero-size bmp", bmpHeader(0, 10)},
		{"unknown webp chunk", webp("ALPH", make([]byte, 20))},
		{"truncated webp", webp("VP8 ", []byte{0x00, 0x00, 0x00, 0x9D})},
		{"broken jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Probe(tt.data)
			if !errors.Is(err, ErrNoDimensions) {
				t.Errorf("err = %v, want ErrNoDimensions", err)
			}
		})
	}
}
