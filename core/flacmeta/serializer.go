package flacmeta

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// A Drainer is a sink that can report when it has room again after a Write
// returned ErrSinkFull.
type Drainer interface {
	// Drained blocks until the sink accepts more bytes or ctx is done.
	Drained(ctx context.Context) error
}

// A Serializer encodes blocks and audio chunks onto a sink. The FLAC signature
// is written right before the first block, so nothing reaches the sink until
// a block is handed over.
type Serializer struct {
	ctx            context.Context
	w              io.Writer
	wroteSignature bool
	written        int64
	hdr            [headerSize]byte
}

// NewSerializer returns a Serializer writing to w. ctx bounds waits on a
// Drainer sink.
func NewSerializer(ctx context.Context, w io.Writer) *Serializer {
	return &Serializer{ctx: ctx, w: w}
}

// Written returns the number of bytes accepted by the sink.
func (s *Serializer) Written() int64 { return s.written }

// WriteBlock writes the header and body of b.
func (s *Serializer) WriteBlock(b Block) error {
	if b.Length != int64(len(b.Body)) {
		return fmt.Errorf("flacmeta.Serializer.WriteBlock: %s block declares %d bytes but carries %d", b.Type, b.Length, len(b.Body))
	}
	if b.Length > MaxBlockLength {
		return &BlockTooLargeError{Type: b.Type, Length: len(b.Body)}
	}
	if !s.wroteSignature {
		if err := s.write(signature); err != nil {
			return err
		}
		s.wroteSignature = true
	}
	b.Header.encode(&s.hdr)
	if err := s.write(s.hdr[:]); err != nil {
		return err
	}
	return s.write(b.Body)
}

// WriteAudio forwards a chunk of the audio payload.
func (s *Serializer) WriteAudio(p []byte) error {
	if !s.wroteSignature {
		return errors.New("flacmeta.Serializer.WriteAudio: audio before any metadata block")
	}
	return s.write(p)
}

// write hands p to the sink, waiting on drain signals until every byte has
// been accepted exactly once.
func (s *Serializer) write(p []byte) error {
	for len(p) > 0 {
		n, err := s.w.Write(p)
		if n < 0 || n > len(p) {
			return &SinkError{Offset: s.written, Err: fmt.Errorf("invalid write count %d", n)}
		}
		s.written += int64(n)
		p = p[n:]
		switch {
		case err == nil:
			if len(p) > 0 {
				return &SinkError{Offset: s.written, Err: io.ErrShortWrite}
			}
		case errors.Is(err, ErrSinkFull):
			d, ok := s.w.(Drainer)
			if !ok {
				return &SinkError{Offset: s.written, Err: err}
			}
			if err := d.Drained(s.ctx); err != nil {
				return &SinkError{Offset: s.written, Err: err}
			}
		default:
			return &SinkError{Offset: s.written, Err: err}
		}
	}
	return nil
}
