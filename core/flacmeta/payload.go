package flacmeta

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"

	"github.com/ankit-chaubey/flacgrab/core"
	"github.com/ankit-chaubey/flacgrab/core/image"
)

// DefaultVendor is the vendor string written into injected Vorbis comments.
const DefaultVendor = "reference libFLAC 1.2.1 20070917"

// A Tag is one Vorbis comment field.
type Tag struct {
	Key   string
	Value string
}

// A TagSet is the ordered content of a Vorbis comment block. Keys are stored
// upper-case; insertion order is kept.
type TagSet struct {
	vendor string
	tags   []Tag
}

// NewTagSet returns an empty TagSet. An empty vendor selects DefaultVendor.
func NewTagSet(vendor string) *TagSet {
	if vendor == "" {
		vendor = DefaultVendor
	}
	return &TagSet{vendor: vendor}
}

// Add appends a field. The key is upper-cased and must be printable ASCII
// without '='.
func (s *TagSet) Add(key, value string) error {
	key = strings.ToUpper(key)
	if key == "" {
		return &InvalidTagError{Key: key, Reason: "empty key"}
	}
	for _, r := range key {
		switch {
		case r == '=':
			return &InvalidTagError{Key: key, Reason: "key contains '='"}
		case r < 0x20 || r > 0x7D:
			return &InvalidTagError{Key: key, Reason: "key outside the printable ASCII range"}
		}
	}
	s.tags = append(s.tags, Tag{Key: key, Value: value})
	return nil
}

// Vendor returns the vendor string.
func (s *TagSet) Vendor() string { return s.vendor }

// Tags returns a copy of the fields in insertion order.
func (s *TagSet) Tags() []Tag {
	return append([]Tag(nil), s.tags...)
}

// Len returns the number of fields.
func (s *TagSet) Len() int { return len(s.tags) }

// An ImageAsset is the logical content of an injected front-cover picture.
type ImageAsset struct {
	Data   []byte
	MIME   string
	Width  uint32
	Height uint32
}

// OpenImageAsset reads the image at path, infers its MIME type from the file
// extension and measures its pixel dimensions.
func OpenImageAsset(path string) (*ImageAsset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Err: err}
	}
	mime, ok := core.MIMEForExtension(path)
	if !ok {
		return nil, &UnsupportedMimeTypeError{Path: path, Ext: filepath.Ext(path)}
	}
	img, err := NewImageAsset(data, mime)
	if err != nil {
		var de *ImageDecodeError
		if errors.As(err, &de) {
			de.Path = path
		}
		return nil, err
	}
	return img, nil
}

// NewImageAsset measures data and pairs it with mime.
func NewImageAsset(data []byte, mime string) (*ImageAsset, error) {
	if mime == "" {
		return nil, &UnsupportedMimeTypeError{}
	}
	info, err := image.Probe(data)
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}
	return &ImageAsset{
		Data:   data,
		MIME:   mime,
		Width:  uint32(info.Width),
		Height: uint32(info.Height),
	}, nil
}

// BuildReplacementBlocksFromFile is BuildReplacementBlocks with the image
// read from imagePath.
func BuildReplacementBlocksFromFile(tags *TagSet, imagePath string) (*Replacement, error) {
	img, err := OpenImageAsset(imagePath)
	if err != nil {
		return nil, err
	}
	return BuildReplacementBlocks(tags, img)
}

// BuildReplacementBlocks encodes the picture and Vorbis comment block bodies
// injected by RewriteStream. The output depends only on its input.
func BuildReplacementBlocks(tags *TagSet, img *ImageAsset) (*Replacement, error) {
	if tags == nil || img == nil {
		return nil, errors.New("flacmeta.BuildReplacementBlocks: nil tag set or image")
	}
	picture, err := buildPicture(img)
	if err != nil {
		return nil, err
	}
	comment, err := buildVorbisComment(tags)
	if err != nil {
		return nil, err
	}
	return &Replacement{Picture: picture, Tags: comment}, nil
}

// buildVorbisComment encodes the vendor string, the comment count and each
// KEY=VALUE comment, all lengths 32-bit little-endian.
func buildVorbisComment(tags *TagSet) ([]byte, error) {
	cmt := flacvorbis.New()
	cmt.Vendor = tags.vendor
	for _, t := range tags.tags {
		if err := cmt.Add(t.Key, t.Value); err != nil {
			return nil, &InvalidTagError{Key: t.Key, Reason: err.Error()}
		}
	}
	block := cmt.Marshal()
	if len(block.Data) > MaxBlockLength {
		return nil, &BlockTooLargeError{Type: TypeVorbisComment, Length: len(block.Data)}
	}
	return block.Data, nil
}

// buildPicture encodes a front-cover picture block, all fields 32-bit
// big-endian. Color depth and palette size are left at 0 (unknown).
func buildPicture(img *ImageAsset) ([]byte, error) {
	if img.MIME == "" {
		return nil, &UnsupportedMimeTypeError{}
	}
	if img.Width == 0 || img.Height == 0 {
		return nil, &ImageDecodeError{Err: errors.New("unknown image dimensions")}
	}
	pic := &flacpicture.MetadataBlockPicture{
		PictureType:       flacpicture.PictureTypeFrontCover,
		MIME:              img.MIME,
		Description:       "",
		Width:             img.Width,
		Height:            img.Height,
		ColorDepth:        0,
		IndexedColorCount: 0,
		ImageData:         img.Data,
	}
	block := pic.Marshal()
	if len(block.Data) > MaxBlockLength {
		return nil, &BlockTooLargeError{Type: TypePicture, Length: len(block.Data)}
	}
	return block.Data, nil
}
