package grab

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ankit-chaubey/flacgrab/core"
	"github.com/ankit-chaubey/flacgrab/core/flacmeta"
	"github.com/ankit-chaubey/flacgrab/core/volumio"
)

const (
	DefaultMaxParallel = 2
	DefaultRetries     = 3
	DefaultFilter      = "qobuz"

	partSuffix   = ".part"
	writeBufSize = 64 * 1024
)

// Options configures a Grabber.
type Options struct {
	// Root is the destination directory.
	Root string
	// Filter must occur in a track URL for the track to be grabbed.
	Filter      string
	Vendor      string
	MaxParallel int
	// Retries bounds the extra attempts at streaming a track.
	Retries int
	// RetryInterval is the first backoff delay.
	RetryInterval time.Duration
	ChunkSize     int
	SkipID3       bool
}

// Grabber turns player states into tagged FLAC files. Each grab runs in its
// own goroutine; at most MaxParallel run at once.
type Grabber struct {
	opts     Options
	layout   Layout
	fetcher  *Fetcher
	registry *Registry
	sem      chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// New returns a Grabber storing files under opts.Root.
func New(opts Options, fetcher *Fetcher, logger *slog.Logger) *Grabber {
	if opts.Filter == "" {
		opts.Filter = DefaultFilter
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = backoff.DefaultInitialInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Grabber{
		opts:     opts,
		layout:   Layout{Root: opts.Root},
		fetcher:  fetcher,
		registry: NewRegistry(),
		sem:      make(chan struct{}, opts.MaxParallel),
		logger:   logger,
	}
}

// InFlight lists the grab IDs currently running.
func (g *Grabber) InFlight() []string { return g.registry.List() }

// Wait blocks until every started grab has finished.
func (g *Grabber) Wait() { g.wg.Wait() }

// HandleState starts a grab for s when it describes an eligible track.
func (g *Grabber) HandleState(ctx context.Context, s volumio.State) {
	t, ok := s.Track(g.opts.Filter)
	if !ok {
		return
	}
	g.Start(ctx, t)
}

// Start launches a grab of t in the background. It reports false when the
// grab is already running or its target file exists.
func (g *Grabber) Start(ctx context.Context, t core.TrackInfo) bool {
	id := g.layout.GrabID(t)
	logger := g.logger.With("grabId", id)

	if !g.registry.TryAcquire(id) {
		logger.InfoContext(ctx, "grab already running, skip")
		return false
	}
	if _, err := os.Stat(g.layout.TrackPath(t)); err == nil {
		g.registry.Release(id)
		logger.InfoContext(ctx, "file already exists, skip")
		return false
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.registry.Release(id)

		select {
		case <-ctx.Done():
			return
		case g.sem <- struct{}{}:
		}
		defer func() { <-g.sem }()

		logger.InfoContext(ctx, "start grabbing")
		if err := g.grab(ctx, id, t); err != nil {
			logger.ErrorContext(ctx, "grab failed", "error", err)
			return
		}
		logger.InfoContext(ctx, "grab finished", "path", g.layout.TrackPath(t))
	}()
	return true
}

// Grab downloads and tags t synchronously. It skips the registry, so
// callers must not grab the same track concurrently.
func (g *Grabber) Grab(ctx context.Context, t core.TrackInfo) error {
	return g.grab(ctx, g.layout.GrabID(t), t)
}

func (g *Grabber) grab(ctx context.Context, id string, t core.TrackInfo) error {
	target := g.layout.TrackPath(t)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	if err := os.MkdirAll(g.layout.TempDir(), 0o755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	art, err := g.fetcher.FetchArt(ctx, t.AlbumArtURL)
	if err != nil {
		return err
	}
	artPath := g.layout.TempArtPath(id, art.Ext)
	if err := os.WriteFile(artPath, art.Data, 0o644); err != nil {
		return fmt.Errorf("store album art: %w", err)
	}
	defer os.Remove(artPath)

	rep, err := g.replacementFor(t, artPath)
	if err != nil {
		return err
	}

	attempt := 0
	op := func() error {
		attempt++
		err := g.streamTrack(ctx, t.TrackURL, target, rep)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.opts.RetryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.opts.Retries)), ctx)
	notify := func(err error, d time.Duration) {
		g.logger.WarnContext(ctx, "track stream failed, retrying",
			"grabId", id, "attempt", attempt, "delay", d, "error", err)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("stream track after %d attempt(s): %w", attempt, err)
	}
	return nil
}

// replacementFor builds the blocks injected into the track: TITLE, ALBUM,
// ARTIST and TRACKNUMBER, and the album art as front cover.
func (g *Grabber) replacementFor(t core.TrackInfo, artPath string) (*flacmeta.Replacement, error) {
	tags := flacmeta.NewTagSet(g.opts.Vendor)
	fields := []flacmeta.Tag{
		{Key: "TITLE", Value: t.Title},
		{Key: "ALBUM", Value: t.Album},
		{Key: "ARTIST", Value: t.Artist},
		{Key: "TRACKNUMBER", Value: strconv.Itoa(t.TrackNumber)},
	}
	for _, f := range fields {
		if err := tags.Add(f.Key, f.Value); err != nil {
			return nil, err
		}
	}
	return flacmeta.BuildReplacementBlocksFromFile(tags, artPath)
}

// streamTrack rewrites the track at url into target. Output goes to a
// ".part" file that is renamed on success and removed on failure.
func (g *Grabber) streamTrack(ctx context.Context, url, target string, rep *flacmeta.Replacement) (err error) {
	body, err := g.fetcher.OpenTrack(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	part := target + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(part)
		}
	}()

	w := bufio.NewWriterSize(f, writeBufSize)
	opts := []flacmeta.Option{
		flacmeta.WithID3Prefix(g.opts.SkipID3),
		flacmeta.WithLogger(g.logger),
	}
	if g.opts.ChunkSize > 0 {
		opts = append(opts, flacmeta.WithChunkSize(g.opts.ChunkSize))
	}
	c, err := flacmeta.RewriteStream(ctx, body, w, rep, opts...)
	if err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(part, target); err != nil {
		return err
	}
	g.logger.DebugContext(ctx, "track stored",
		"path", target,
		"audio_bytes", c.AudioBytes,
		"blocks_dropped", c.BlocksDropped)
	return nil
}

// retryable reports whether a failed track stream may succeed on a new
// attempt: the connection broke or the server had a transient failure.
func retryable(err error) bool {
	var (
		srcErr    *flacmeta.SourceError
		blockErr  *flacmeta.TruncatedBlockError
		headerErr *flacmeta.TruncatedHeaderError
		statusErr *HTTPStatusError
		netErr    net.Error
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.As(err, &srcErr), errors.As(err, &blockErr), errors.As(err, &headerErr):
		return true
	case errors.As(err, &statusErr):
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	case errors.As(err, &netErr):
		return true
	}
	return false
}
