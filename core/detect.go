package core

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FormatID enumerates every recognised format.
type FormatID string

const (
	FmtJPEG FormatID = "jpeg"
	FmtPNG  FormatID = "png"
	FmtGIF  FormatID = "gif"
	FmtWebP FormatID = "webp"
	FmtTIFF FormatID = "tiff"
	FmtBMP  FormatID = "bmp"

	FmtFLAC FormatID = "flac"
	FmtMP3  FormatID = "mp3"
	FmtOGG  FormatID = "ogg"

	FmtUnknown FormatID = "unknown"
)

// extMap maps lowercase extensions to format IDs.
var extMap = map[string]FormatID{
	".jpg":  FmtJPEG,
	".jpeg": FmtJPEG,
	".jpe":  FmtJPEG,
	".png":  FmtPNG,
	".gif":  FmtGIF,
	".webp": FmtWebP,
	".tiff": FmtTIFF,
	".tif":  FmtTIFF,
	".bmp":  FmtBMP,

	".flac": FmtFLAC,
	".mp3":  FmtMP3,
	".ogg":  FmtOGG,
	".oga":  FmtOGG,
}

// mimeMap holds the MIME type written into picture blocks per image format.
var mimeMap = map[FormatID]string{
	FmtJPEG: "image/jpeg",
	FmtPNG:  "image/png",
	FmtGIF:  "image/gif",
	FmtWebP: "image/webp",
	FmtTIFF: "image/tiff",
	FmtBMP:  "image/bmp",
}

// FormatForExtension returns the format registered for the extension of path.
func FormatForExtension(path string) FormatID {
	if id, ok := extMap[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return FmtUnknown
}

// MIMEForExtension infers an image MIME type from the extension of path.
func MIMEForExtension(path string) (string, bool) {
	mime, ok := mimeMap[FormatForExtension(path)]
	return mime, ok
}

// ExtensionForMIME returns the preferred file extension for an image MIME type.
func ExtensionForMIME(mime string) (string, bool) {
	switch mime {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/gif":
		return ".gif", true
	case "image/webp":
		return ".webp", true
	case "image/tiff":
		return ".tif", true
	case "image/bmp", "image/x-ms-bmp":
		return ".bmp", true
	}
	return "", false
}

// DetectFormat returns the FormatID for the given file, first by reading
// magic bytes and falling back to extension.
func DetectFormat(path string) (FormatID, error) {
	f, err := os.Open(path)
	if err != nil {
		return FmtUnknown, err
	}
	defer f.Close()

	buf := make([]byte, 16)
	n, err := io.ReadFull(f, buf)
	if err != nil && n == 0 {
		return FmtUnknown, err
	}

	if id := DetectMagic(buf[:n]); id != FmtUnknown {
		return id, nil
	}
	return FormatForExtension(path), nil
}

// DetectMagic identifies a format from the first bytes of its content.
func DetectMagic(b []byte) FormatID {
	if len(b) < 4 {
		return FmtUnknown
	}
	switch {
	// JPEG: FF D8 FF
	case b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return FmtJPEG
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	case bytes.HasPrefix(b, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return FmtPNG
	// GIF: GIF87a or GIF89a
	case bytes.HasPrefix(b, []byte("GIF87a")) || bytes.HasPrefix(b, []byte("GIF89a")):
		return FmtGIF
	// WebP: RIFF????WEBP
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return FmtWebP
	// TIFF: 49 49 2A 00 (little-endian) or 4D 4D 00 2A (big-endian)
	case bytes.HasPrefix(b, []byte{0x49, 0x49, 0x2A, 0x00}) ||
		bytes.HasPrefix(b, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return FmtTIFF
	// BMP: 42 4D
	case b[0] == 0x42 && b[1] == 0x4D:
		return FmtBMP
	// FLAC: fLaC, possibly behind an ID3v2 tag
	case bytes.HasPrefix(b, []byte("fLaC")):
		return FmtFLAC
	case bytes.HasPrefix(b, []byte("ID3")):
		return FmtMP3
	case b[0] == 0xFF && (b[1]&0xE0 == 0xE0):
		return FmtMP3
	// OGG: OggS
	case bytes.HasPrefix(b, []byte("OggS")):
		return FmtOGG
	}
	return FmtUnknown
}

// MediaTypeFor returns the broad media category for a format.
func MediaTypeFor(id FormatID) string {
	switch id {
	case FmtJPEG, FmtPNG, FmtGIF, FmtWebP, FmtTIFF, FmtBMP:
		return "image"
	case FmtFLAC, FmtMP3, FmtOGG:
		return "audio"
	default:
		return "unknown"
	}
}
