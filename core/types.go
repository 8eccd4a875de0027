// Package core defines the shared types, format detection and output helpers
// for flacgrab.
package core

import "context"

// MetaField represents a single metadata key-value pair.
type MetaField struct {
	Key      string // Field name (e.g. "TITLE", "Block 2")
	Value    string // String representation of the value
	Category string // Category label (e.g. "Vorbis", "Blocks", "Picture")
	Editable bool   // Whether a retag replaces this field
}

// Metadata holds all metadata extracted from a single file.
type Metadata struct {
	FilePath string
	Format   string // Human-readable format name (e.g. "FLAC")
	Fields   []MetaField
}

// EditOptions holds field changes for a retag operation.
type EditOptions struct {
	// Set lists the fields of the new Vorbis comment, in order.
	Set []MetaField
	// CoverPath is the image for the new picture block. When empty the first
	// picture already embedded in the file is reused.
	CoverPath string
	// Vendor overrides the Vorbis comment vendor string.
	Vendor string
	// SkipID3 drops an ID3v2 tag found in front of the FLAC signature.
	SkipID3 bool
	// DryRun previews changes without writing.
	DryRun bool
}

// FormatInfo describes what a format handler supports.
type FormatInfo struct {
	Name       string   // "FLAC"
	Extensions []string // [".flac"]
	MediaType  string   // "image" | "audio"
	MIMETypes  []string
	CanView    bool
	CanEdit    bool
	Notes      string // Any caveats or notes
}

// Handler is the interface every audio format handler implements.
type Handler interface {
	// View reads and returns all discoverable metadata from path.
	View(path string) (*Metadata, error)
	// Edit replaces the tags and cover of path, saving to outPath.
	// outPath == "" means in-place edit.
	Edit(ctx context.Context, path string, outPath string, opts EditOptions) error
	// Info returns format capabilities.
	Info() FormatInfo
}

// TrackInfo describes the track a player is currently playing.
type TrackInfo struct {
	Title       string
	Album       string
	Artist      string
	TrackNumber int
	AlbumArtURL string
	TrackURL    string
}
