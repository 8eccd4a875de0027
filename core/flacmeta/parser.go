package flacmeta

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bogem/id3v2/v2"
)

// EventKind tells which field of an Event is set.
type EventKind uint8

const (
	// EventBlock carries one metadata block.
	EventBlock EventKind = iota + 1
	// EventAudio carries a chunk of the audio payload.
	EventAudio
)

// An Event is one unit handed between pipeline stages.
type Event struct {
	Kind  EventKind
	Block Block
	// Audio is only valid until the next call to Next.
	Audio []byte
}

type mode uint8

const (
	modeHeader mode = iota
	modeBlocks
	modeAudio
	modeDone
)

// cursor tracks the parser position within one stream.
type cursor struct {
	// Bytes consumed from the source so far.
	consumed int64
	// Bytes of the current block body still to be read.
	remaining int64
	mode      mode
}

// maxEmptyReads bounds consecutive (0, nil) reads before giving up, like
// bufio.Reader does.
const maxEmptyReads = 100

// id3Signature marks the beginning of an ID3v2 tag.
var id3Signature = []byte("ID3")

// A Parser decodes the metadata blocks of a FLAC stream and then hands the
// audio payload through in bounded chunks. A Parser reads its source once and
// cannot be reused.
type Parser struct {
	r      io.Reader
	cur    cursor
	buf    []byte
	err    error
	cfg    *config
	blocks int
	// Size of a skipped ID3v2 prefix, in bytes.
	id3Skipped int64
}

// NewParser returns a Parser reading from r.
func NewParser(r io.Reader, opts ...Option) *Parser {
	return newParser(r, newConfig(opts))
}

func newParser(r io.Reader, cfg *config) *Parser {
	return &Parser{r: r, cfg: cfg}
}

// Next returns the next block or audio chunk. It returns io.EOF once the
// audio payload is exhausted. Any other error is terminal.
func (p *Parser) Next() (Event, error) {
	if p.err != nil {
		return Event{}, p.err
	}
	switch p.cur.mode {
	case modeHeader:
		if err := p.readSignature(); err != nil {
			return Event{}, p.fail(err)
		}
		p.cur.mode = modeBlocks
		fallthrough
	case modeBlocks:
		block, err := p.readBlock()
		if err != nil {
			return Event{}, p.fail(err)
		}
		p.blocks++
		if block.IsLast {
			p.cur.mode = modeAudio
		}
		return Event{Kind: EventBlock, Block: block}, nil
	case modeAudio:
		return p.readAudio()
	}
	return Event{}, io.EOF
}

// Consumed returns the number of bytes read from the source so far.
func (p *Parser) Consumed() int64 { return p.cur.consumed }

// BlocksRead returns the number of metadata blocks decoded so far.
func (p *Parser) BlocksRead() int { return p.blocks }

// ID3PrefixSkipped returns the size of the skipped ID3v2 prefix, if any.
func (p *Parser) ID3PrefixSkipped() int64 { return p.id3Skipped }

func (p *Parser) fail(err error) error {
	p.cur.mode = modeDone
	p.err = err
	return err
}

func (p *Parser) readFull(buf []byte) (int, error) {
	n, err := io.ReadFull(p.r, buf)
	p.cur.consumed += int64(n)
	return n, err
}

func isEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

// readSignature verifies the "fLaC" signature, skipping an ID3v2 prefix first
// when enabled.
func (p *Parser) readSignature() error {
	var buf [4]byte
	start := p.cur.consumed
	if n, err := p.readFull(buf[:]); err != nil {
		if isEOF(err) {
			return &TruncatedHeaderError{Offset: start, Want: len(buf), Got: n}
		}
		return &SourceError{Offset: p.cur.consumed, Err: err}
	}

	if p.cfg.skipID3 && bytes.Equal(buf[:3], id3Signature) {
		if err := p.skipID3v2(buf); err != nil {
			return err
		}
		start = p.cur.consumed
		if n, err := p.readFull(buf[:]); err != nil {
			if isEOF(err) {
				return &TruncatedHeaderError{Offset: start, Want: len(buf), Got: n}
			}
			return &SourceError{Offset: p.cur.consumed, Err: err}
		}
	}

	if !bytes.Equal(buf[:], signature) {
		return &MalformedContainerError{
			Offset: start,
			Reason: fmt.Sprintf("invalid FLAC signature; expected %q, got %q", signature, buf[:]),
		}
	}
	return nil
}

// skipID3v2 consumes an ID3v2 tag whose first four bytes are already in sig.
func (p *Parser) skipID3v2(sig [4]byte) error {
	// "ID3", 2 bytes version, 1 byte flags, 4 bytes synchsafe size.
	raw := make([]byte, 10)
	copy(raw, sig[:])
	if n, err := p.readFull(raw[len(sig):]); err != nil {
		if isEOF(err) {
			return &TruncatedHeaderError{Offset: 0, Want: len(raw), Got: len(sig) + n}
		}
		return &SourceError{Offset: p.cur.consumed, Err: err}
	}

	size := int64(raw[6]&0x7F)<<21 | int64(raw[7]&0x7F)<<14 | int64(raw[8]&0x7F)<<7 | int64(raw[9]&0x7F)
	if raw[5]&0x10 != 0 {
		// Footer present.
		size += 10
	}

	// The tag is parsed straight off the source; its declared size only
	// bounds the reads.
	body := &countingReader{r: io.LimitReader(p.r, size)}
	tag, perr := id3v2.ParseReader(io.MultiReader(bytes.NewReader(raw), body), id3v2.Options{Parse: true})
	_, err := io.Copy(io.Discard, body)
	p.cur.consumed += body.n
	if err != nil {
		return &SourceError{Offset: p.cur.consumed, Err: err}
	}
	if body.n < size {
		return &MalformedContainerError{
			Offset: p.cur.consumed,
			Reason: fmt.Sprintf("truncated ID3v2 prefix: declared %d bytes, got %d", size, body.n),
		}
	}
	p.id3Skipped = int64(len(raw)) + size

	if perr != nil {
		p.cfg.logger.Warn("skipped unparsable ID3v2 prefix", "bytes", p.id3Skipped, "error", perr)
		return nil
	}
	p.cfg.logger.Info("skipped ID3v2 prefix",
		slog.Int64("bytes", p.id3Skipped),
		slog.Int("version", int(tag.Version())),
		slog.String("title", tag.Title()),
		slog.String("artist", tag.Artist()))
	return nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// readBlock reads one metadata block header and its body.
func (p *Parser) readBlock() (Block, error) {
	start := p.cur.consumed
	var hdr [headerSize]byte
	n, err := p.readFull(hdr[:])
	switch {
	case err == io.EOF:
		return Block{}, &MalformedContainerError{Offset: start, Reason: "stream ended before the last metadata block"}
	case err == io.ErrUnexpectedEOF:
		return Block{}, &TruncatedHeaderError{Offset: start, Want: headerSize, Got: n}
	case err != nil:
		return Block{}, &SourceError{Offset: p.cur.consumed, Err: err}
	}

	h := decodeHeader(hdr)
	p.cur.remaining = h.Length
	body := make([]byte, h.Length)
	n, err = p.readFull(body)
	p.cur.remaining -= int64(n)
	if err != nil {
		if isEOF(err) {
			return Block{}, &TruncatedBlockError{Offset: start, Type: h.Type, Declared: h.Length, Got: int64(n)}
		}
		return Block{}, &SourceError{Offset: p.cur.consumed, Err: err}
	}
	if h.Type.IsReserved() || h.Type == TypeInvalid {
		p.cfg.logger.Debug("forwarding uninterpreted metadata block", "type", uint8(h.Type), "length", h.Length)
	}
	return Block{Header: h, Body: body}, nil
}

// readAudio returns the next chunk of the audio payload.
func (p *Parser) readAudio() (Event, error) {
	if p.buf == nil {
		p.buf = make([]byte, p.cfg.chunkSize)
	}
	for i := 0; i < maxEmptyReads; i++ {
		n, err := p.r.Read(p.buf)
		p.cur.consumed += int64(n)
		switch {
		case n > 0:
			if errors.Is(err, io.EOF) {
				p.cur.mode = modeDone
			} else if err != nil {
				p.err = &SourceError{Offset: p.cur.consumed, Err: err}
			}
			return Event{Kind: EventAudio, Audio: p.buf[:n]}, nil
		case err == io.EOF:
			p.cur.mode = modeDone
			return Event{}, io.EOF
		case err != nil:
			return Event{}, p.fail(&SourceError{Offset: p.cur.consumed, Err: err})
		}
	}
	return Event{}, p.fail(&SourceError{Offset: p.cur.consumed, Err: io.ErrNoProgress})
}
