package flacmeta

import (
	"context"
	"errors"
	"io"
)

// Replacement holds the bodies of the blocks injected into every rewritten
// stream.
type Replacement struct {
	Picture []byte
	Tags    []byte
}

// Completion summarizes one successful RewriteStream invocation.
type Completion struct {
	BlocksRead      int
	BlocksDropped   int
	BlocksForwarded int
	BlocksInjected  int
	AudioBytes      int64
	BytesWritten    int64
	// Bytes of a leading ID3v2 tag that was skipped, see WithID3Prefix.
	ID3PrefixBytes int64
}

// RewriteStream copies the FLAC stream src to dst, replacing its Vorbis
// comment and picture blocks with those of rep. The audio payload is
// forwarded byte for byte. On error the output written so far is not a valid
// stream; removing it is up to the caller.
func RewriteStream(ctx context.Context, src io.Reader, dst io.Writer, rep *Replacement, opts ...Option) (*Completion, error) {
	if rep == nil {
		return nil, errors.New("flacmeta.RewriteStream: nil replacement")
	}
	if n := len(rep.Picture); n > MaxBlockLength {
		return nil, &BlockTooLargeError{Type: TypePicture, Length: n}
	}
	if n := len(rep.Tags); n > MaxBlockLength {
		return nil, &BlockTooLargeError{Type: TypeVorbisComment, Length: n}
	}
	cfg := newConfig(opts)
	parser := newParser(src, cfg)
	inj := newInjector(parser, rep, cfg)
	ser := NewSerializer(ctx, dst)

	var audio int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := inj.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case EventBlock:
			err = ser.WriteBlock(ev.Block)
		case EventAudio:
			audio += int64(len(ev.Audio))
			err = ser.WriteAudio(ev.Audio)
		}
		if err != nil {
			return nil, err
		}
	}
	if !inj.Injected() {
		return nil, &MalformedContainerError{Offset: parser.Consumed(), Reason: "no last metadata block"}
	}

	c := &Completion{
		BlocksRead:      parser.BlocksRead(),
		BlocksDropped:   inj.Dropped(),
		BlocksForwarded: inj.Forwarded(),
		BlocksInjected:  2,
		AudioBytes:      audio,
		BytesWritten:    ser.Written(),
		ID3PrefixBytes:  parser.ID3PrefixSkipped(),
	}
	cfg.logger.DebugContext(ctx, "rewrote FLAC stream",
		"blocks_read", c.BlocksRead,
		"dropped", c.BlocksDropped,
		"audio_bytes", c.AudioBytes,
		"bytes_written", c.BytesWritten)
	return c, nil
}
