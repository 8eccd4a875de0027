package flacmeta

// EventSource is a pull-based stage of the rewrite pipeline.
type EventSource interface {
	Next() (Event, error)
}

// An Injector drops the Vorbis comment and picture blocks of a stream and
// injects their replacements right before the audio payload. It owns the
// last-block flag: forwarded blocks always have IsLast cleared, and the
// injected Vorbis comment block is the only one with IsLast set.
//
// Forwarded blocks are held back until the last metadata block has been
// parsed, so a stream whose metadata section is broken yields no block at
// all. Holding stops once the held blocks exceed the hold limit (see
// WithHoldLimit); from then on blocks pass through as they arrive.
type Injector struct {
	src     EventSource
	picture Block
	tags    Block
	held    []Block
	pending []Block

	holdLimit int64
	heldBytes int64
	streaming bool

	injected  bool
	dropped   int
	forwarded int
}

// NewInjector returns an Injector pulling from src and injecting the blocks
// of rep. Only WithHoldLimit applies.
func NewInjector(src EventSource, rep *Replacement, opts ...Option) *Injector {
	return newInjector(src, rep, newConfig(opts))
}

func newInjector(src EventSource, rep *Replacement, cfg *config) *Injector {
	return &Injector{
		src:       src,
		picture:   NewBlock(TypePicture, rep.Picture, false),
		tags:      NewBlock(TypeVorbisComment, rep.Tags, true),
		holdLimit: cfg.holdLimit,
	}
}

// replaced reports whether blocks of type t are dropped and injected anew.
func replaced(t Type) bool {
	return t == TypeVorbisComment || t == TypePicture
}

// Next returns the next event of the rewritten stream.
func (inj *Injector) Next() (Event, error) {
	for {
		if len(inj.pending) > 0 {
			b := inj.pending[0]
			inj.pending = inj.pending[1:]
			return Event{Kind: EventBlock, Block: b}, nil
		}

		ev, err := inj.src.Next()
		if err != nil || ev.Kind != EventBlock {
			return ev, err
		}

		b := ev.Block
		last := b.IsLast
		b.IsLast = false
		switch {
		case replaced(b.Type):
			inj.dropped++
		case inj.streaming:
			inj.forwarded++
			inj.pending = append(inj.pending, b)
		default:
			inj.forwarded++
			inj.held = append(inj.held, b)
			inj.heldBytes += headerSize + int64(len(b.Body))
		}
		switch {
		case last:
			// Injection is triggered by the terminal block whether or not it
			// survives the filter.
			inj.pending = append(append(inj.pending, inj.held...), inj.picture, inj.tags)
			inj.held = nil
			inj.injected = true
		case !inj.streaming && inj.heldBytes > inj.holdLimit:
			inj.streaming = true
			inj.pending = append(inj.pending, inj.held...)
			inj.held = nil
		}
	}
}

// Injected reports whether the replacement blocks have been queued.
func (inj *Injector) Injected() bool { return inj.injected }

// Dropped returns the number of blocks removed from the stream.
func (inj *Injector) Dropped() int { return inj.dropped }

// Forwarded returns the number of upstream blocks passed on.
func (inj *Injector) Forwarded() int { return inj.forwarded }
