// Package flacmeta rewrites the metadata section of a FLAC stream in a single
// forward pass.
//
// A FLAC stream starts with the 32-bit signature "fLaC", followed by one or
// more metadata blocks, and then the audio frames. Each metadata block starts
// with a 4-byte header: 1 bit last-block flag, 7 bits block type and a 24-bit
// big-endian body length. The body follows the header directly.
//
// RewriteStream pipes a stream through three stages, each pulling from the
// previous one: Parser decodes blocks and hands the audio frames through
// untouched, Injector drops the Vorbis comment and picture blocks and injects
// their replacements in front of the audio, and Serializer encodes the result
// onto the sink.
//
//	ref: https://www.xiph.org/flac/format.html#metadata_block
package flacmeta

import "fmt"

const (
	// headerSize is the size of a metadata block header in bytes.
	headerSize = 4

	// MaxBlockLength is the largest body a 24-bit length field can describe.
	MaxBlockLength = 1<<24 - 1
)

// signature marks the beginning of a FLAC stream.
var signature = []byte("fLaC")

// Type represents the type of a metadata block body.
type Type uint8

// Metadata block body types.
const (
	TypeStreamInfo    Type = 0
	TypePadding       Type = 1
	TypeApplication   Type = 2
	TypeSeekTable     Type = 3
	TypeVorbisComment Type = 4
	TypeCueSheet      Type = 5
	TypePicture       Type = 6
	TypeInvalid       Type = 127
)

func (t Type) String() string {
	switch t {
	case TypeStreamInfo:
		return "stream info"
	case TypePadding:
		return "padding"
	case TypeApplication:
		return "application"
	case TypeSeekTable:
		return "seek table"
	case TypeVorbisComment:
		return "vorbis comment"
	case TypeCueSheet:
		return "cue sheet"
	case TypePicture:
		return "picture"
	case TypeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("reserved (%d)", uint8(t))
	}
}

// IsReserved reports whether t is one of the type codes the format keeps for
// future use. Reserved blocks are forwarded without being interpreted.
func (t Type) IsReserved() bool {
	return t >= 7 && t < TypeInvalid
}

// A Header contains information about the type and length of a metadata block.
type Header struct {
	// Metadata block body type.
	Type Type
	// Length of body data in bytes.
	Length int64
	// IsLast specifies if the block is the last metadata block.
	IsLast bool
}

// A Block is one metadata block: its header and its opaque body.
type Block struct {
	Header
	Body []byte
}

// NewBlock returns a block of type t whose header length matches body.
func NewBlock(t Type, body []byte, last bool) Block {
	return Block{
		Header: Header{Type: t, Length: int64(len(body)), IsLast: last},
		Body:   body,
	}
}

// decodeHeader decodes the 4-byte header: 1 bit IsLast, 7 bits Type, 24 bits
// Length.
func decodeHeader(buf [headerSize]byte) Header {
	return Header{
		IsLast: buf[0]&0x80 != 0,
		Type:   Type(buf[0] & 0x7F),
		Length: int64(buf[1])<<16 | int64(buf[2])<<8 | int64(buf[3]),
	}
}

// encode writes the 4-byte representation of h into buf.
func (h Header) encode(buf *[headerSize]byte) {
	buf[0] = byte(h.Type) & 0x7F
	if h.IsLast {
		buf[0] |= 0x80
	}
	buf[1] = byte(h.Length >> 16)
	buf[2] = byte(h.Length >> 8)
	buf[3] = byte(h.Length)
}
