package flacmeta

import (
	"errors"
	"fmt"
)

// ErrSinkFull is returned by a sink's Write when it accepted fewer bytes than
// offered and will accept more once drained. See Drainer.
var ErrSinkFull = errors.New("flacmeta: sink full")

// MalformedContainerError reports a stream that is not a FLAC container: a bad
// signature, or a source that ended without a last metadata block.
type MalformedContainerError struct {
	Offset int64
	Reason string
}

func (e *MalformedContainerError) Error() string {
	return fmt.Sprintf("malformed FLAC container at offset %d: %s", e.Offset, e.Reason)
}

// TruncatedHeaderError reports a source that ended in the middle of the
// signature or of a block header.
type TruncatedHeaderError struct {
	Offset int64
	Want   int
	Got    int
}

func (e *TruncatedHeaderError) Error() string {
	return fmt.Sprintf("truncated header at offset %d: want %d bytes, got %d", e.Offset, e.Want, e.Got)
}

// TruncatedBlockError reports a source that ended before a block body reached
// its declared length.
type TruncatedBlockError struct {
	Offset   int64
	Type     Type
	Declared int64
	Got      int64
}

func (e *TruncatedBlockError) Error() string {
	return fmt.Sprintf("truncated %s block at offset %d: declared %d bytes, got %d", e.Type, e.Offset, e.Declared, e.Got)
}

// ImageDecodeError reports cover art that could not be read or measured.
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cannot decode image: %v", e.Err)
	}
	return fmt.Sprintf("cannot decode image %s: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// UnsupportedMimeTypeError reports cover art whose MIME type cannot be
// inferred from its file extension.
type UnsupportedMimeTypeError struct {
	Path string
	Ext  string
}

func (e *UnsupportedMimeTypeError) Error() string {
	return fmt.Sprintf("no MIME type known for extension %q (%s)", e.Ext, e.Path)
}

// InvalidTagError reports a comment key that cannot be stored in a Vorbis
// comment.
type InvalidTagError struct {
	Key    string
	Reason string
}

func (e *InvalidTagError) Error() string {
	return fmt.Sprintf("invalid tag key %q: %s", e.Key, e.Reason)
}

// BlockTooLargeError reports a payload that does not fit a 24-bit length.
type BlockTooLargeError struct {
	Type   Type
	Length int
}

func (e *BlockTooLargeError) Error() string {
	return fmt.Sprintf("%s block of %d bytes exceeds the %d byte limit", e.Type, e.Length, MaxBlockLength)
}

// SourceError wraps an I/O failure reported by the input stream.
type SourceError struct {
	Offset int64
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source read failed at offset %d: %v", e.Offset, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// SinkError wraps an I/O failure reported by the output stream.
type SinkError struct {
	Offset int64
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink write failed at offset %d: %v", e.Offset, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
