package flacmeta

import "log/slog"

// DefaultChunkSize is the largest audio chunk the parser hands downstream.
const DefaultChunkSize = 32 * 1024

// DefaultHoldLimit is the number of forwarded metadata bytes the injector
// holds back while waiting for the last metadata block.
const DefaultHoldLimit = 1 << 20

type config struct {
	chunkSize int
	holdLimit int64
	skipID3   bool
	logger    *slog.Logger
}

// Option configures a Parser or a RewriteStream invocation.
type Option func(*config)

// WithChunkSize bounds the size of passthrough audio chunks.
func WithChunkSize(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.chunkSize = n
		}
	}
}

// WithHoldLimit bounds the metadata held back before the last block is seen.
// Once more than n bytes of forwarded blocks are pending, they are written
// out as they arrive and a broken metadata section past that point leaves
// partial output behind. Zero disables holding.
func WithHoldLimit(n int64) Option {
	return func(cfg *config) {
		if n >= 0 {
			cfg.holdLimit = n
		}
	}
}

// WithID3Prefix makes the parser skip an ID3v2 tag found in front of the FLAC
// signature instead of rejecting the stream. The tag is not forwarded.
func WithID3Prefix(skip bool) Option {
	return func(cfg *config) {
		cfg.skipID3 = skip
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		chunkSize: DefaultChunkSize,
		holdLimit: DefaultHoldLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
