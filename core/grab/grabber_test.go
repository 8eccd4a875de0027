package grab

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dhowden/tag"

	"github.com/ankit-chaubey/flacgrab/core"
	"github.com/ankit-chaubey/flacgrab/core/flacmeta"
	"github.com/ankit-chaubey/flacgrab/core/volumio"
)

// trackStream encodes a FLAC stream carrying an old comment, as a streaming
// service would serve it.
func trackStream(t *testing.T, audio []byte) []byte {
	t.Helper()
	si := make([]byte, 34)
	binary.BigEndian.PutUint16(si[0:2], 4096)
	binary.BigEndian.PutUint16(si[2:4], 4096)
	binary.BigEndian.PutUint64(si[10:18], uint64(44100)<<44|uint64(1)<<41|uint64(15)<<36)

	comment := []byte{3, 0, 0, 0, 'o', 'l', 'd', 0, 0, 0, 0}
	var buf bytes.Buffer
	s := flacmeta.NewSerializer(context.Background(), &buf)
	for _, b := range []flacmeta.Block{
		flacmeta.NewBlock(flacmeta.TypeStreamInfo, si, false),
		flacmeta.NewBlock(flacmeta.TypeVorbisComment, comment, true),
	} {
		if err := s.WriteBlock(b); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.WriteAudio(audio); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func coverPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 6))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// streamingService serves album art under /art and tracks under /qobuz.
// The first failures requests to a track answer with status.
type streamingService struct {
	*httptest.Server
	cover    []byte
	track    []byte
	status   int
	failures int32
	hits     atomic.Int32
}

func newStreamingService(t *testing.T) *streamingService {
	t.Helper()
	s := &streamingService{
		cover: coverPNG(t),
		track: trackStream(t, bytes.Repeat([]byte{0xFF, 0xF8, 0x01, 0x02}, 5000)),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/art"):
			w.Write(s.cover)
		case strings.HasPrefix(r.URL.Path, "/qobuz/"):
			if n := s.hits.Add(1); n <= s.failures {
				w.WriteHeader(s.status)
				return
			}
			w.Header().Set("Content-Type", "audio/flac")
			w.Write(s.track)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *streamingService) trackInfo() core.TrackInfo {
	return core.TrackInfo{
		Title:       "Song",
		Album:       "Record",
		Artist:      "The Band",
		TrackNumber: 3,
		AlbumArtURL: s.URL + "/art/cover.png",
		TrackURL:    s.URL + "/qobuz/track/1",
	}
}

func newTestGrabber(t *testing.T, root string) *Grabber {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Options{Root: root, Retries: 2, RetryInterval: time.Millisecond}, NewFetcher(5*time.Second), logger)
}

// checkGrabbed verifies the stored file and that no temporary file remains.
func checkGrabbed(t *testing.T, root string, svc *streamingService, track core.TrackInfo) {
	t.Helper()
	path := filepath.Join(root, "The_Band", "Record", fmt.Sprintf("%d_Song.flac", track.TrackNumber))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("grabbed file: %v", err)
	}

	m, err := tag.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("tag.ReadFrom: %v", err)
	}
	if m.Title() != "Song" || m.Album() != "Record" || m.Artist() != "The Band" {
		t.Errorf("tags = %q/%q/%q", m.Title(), m.Album(), m.Artist())
	}
	if n, _ := m.Track(); n != track.TrackNumber {
		t.Errorf("track number = %d, want %d", n, track.TrackNumber)
	}
	if pic := m.Picture(); pic == nil || pic.MIMEType != "image/png" || !bytes.Equal(pic.Data, svc.cover) {
		t.Error("album art not embedded")
	}

	// Audio frames follow the metadata unchanged.
	if !bytes.HasSuffix(data, svc.track[len(svc.track)-20000:]) {
		t.Error("audio payload altered")
	}

	if entries, err := os.ReadDir(filepath.Join(root, tmpDirName)); err != nil || len(entries) != 0 {
		t.Errorf("temp dir holds %d entries (%v), want none", len(entries), err)
	}
	if _, err := os.Stat(path + partSuffix); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestGrab(t *testing.T) {
	svc := newStreamingService(t)
	root := t.TempDir()
	track := svc.trackInfo()

	if err := newTestGrabber(t, root).Grab(context.Background(), track); err != nil {
		t.Fatalf("Grab: %v", err)
	}
	checkGrabbed(t, root, svc, track)
}

func TestGrabSniffsArtExtension(t *testing.T) {
	svc := newStreamingService(t)
	root := t.TempDir()
	track := svc.trackInfo()
	track.AlbumArtURL = svc.URL + "/art?id=42"

	if err := newTestGrabber(t, root).Grab(context.Background(), track); err != nil {
		t.Fatalf("Grab: %v", err)
	}
	checkGrabbed(t, root, svc, track)
}

func TestGrabRetriesServerErrors(t *testing.T) {
	svc := newStreamingService(t)
	svc.status, svc.failures = http.StatusServiceUnavailable, 2
	root := t.TempDir()

	if err := newTestGrabber(t, root).Grab(context.Background(), svc.trackInfo()); err != nil {
		t.Fatalf("Grab: %v", err)
	}
	if got := svc.hits.Load(); got != 3 {
		t.Errorf("track requested %d times, want 3", got)
	}
	checkGrabbed(t, root, svc, svc.trackInfo())
}

func TestGrabGivesUp(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantHits int32
	}{
		{"not found", http.StatusNotFound, 1},
		{"server error", http.StatusBadGateway, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStreamingService(t)
			svc.status, svc.failures = tt.status, 100
			root := t.TempDir()

			err := newTestGrabber(t, root).Grab(context.Background(), svc.trackInfo())
			var se *HTTPStatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Fatalf("err = %v, want HTTPStatusError %d", err, tt.status)
			}
			if got := svc.hits.Load(); got != tt.wantHits {
				t.Errorf("track requested %d times, want %d", got, tt.wantHits)
			}
			files, _ := filepath.Glob(filepath.Join(root, "The_Band", "Record", "*"))
			if len(files) != 0 {
				t.Errorf("files left after failure: %v", files)
			}
		})
	}
}

func TestGrabBrokenStream(t *testing.T) {
	svc := newStreamingService(t)
	svc.track = svc.track[:30]
	root := t.TempDir()

	err := newTestGrabber(t, root).Grab(context.Background(), svc.trackInfo())
	var tb *flacmeta.TruncatedBlockError
	if !errors.As(err, &tb) {
		t.Fatalf("err = %v, want TruncatedBlockError", err)
	}
	if got := svc.hits.Load(); got != 3 {
		t.Errorf("track requested %d times, want 3", got)
	}
}

func TestHandleState(t *testing.T) {
	svc := newStreamingService(t)
	root := t.TempDir()
	g := newTestGrabber(t, root)
	track := svc.trackInfo()

	state := volumio.State{
		Status:   volumio.StatusPlay,
		Title:    track.Title,
		Album:    track.Album,
		Artist:   track.Artist,
		AlbumArt: track.AlbumArtURL,
		URI:      track.TrackURL,
		Position: track.TrackNumber - 1,
	}
	paused := state
	paused.Status = "pause"

	ctx := context.Background()
	g.HandleState(ctx, paused)
	g.HandleState(ctx, state)
	g.Wait()
	checkGrabbed(t, root, svc, track)
	if got := svc.hits.Load(); got != 1 {
		t.Errorf("track requested %d times, want 1", got)
	}

	// The stored file is not grabbed again.
	if g.Start(ctx, track) {
		t.Error("Start accepted a track whose file exists")
	}
	if len(g.InFlight()) != 0 {
		t.Errorf("InFlight() = %v after Wait", g.InFlight())
	}
}

func TestStartSkipsRunningGrab(t *testing.T) {
	release := make(chan struct{})
	svc := newStreamingService(t)
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write(svc.track)
	}))
	defer blocked.Close()

	root := t.TempDir()
	g := newTestGrabber(t, root)
	track := svc.trackInfo()
	track.TrackURL = blocked.URL + "/qobuz/track/1"

	ctx := context.Background()
	if !g.Start(ctx, track) {
		t.Fatal("first Start refused")
	}
	if g.Start(ctx, track) {
		t.Error("second Start accepted while the first grab runs")
	}
	if ids := g.InFlight(); len(ids) != 1 || ids[0] != "Song_Record_The_Band" {
		t.Errorf("InFlight() = %v", ids)
	}
	close(release)
	g.Wait()
	checkGrabbed(t, root, svc, track)
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

func TestRetryable(t *testing.T) {
	var _ net.Error = timeoutError{}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"source", &flacmeta.SourceError{Err: io.ErrUnexpectedEOF}, true},
		{"truncated block", &flacmeta.TruncatedBlockError{}, true},
		{"truncated header", &flacmeta.TruncatedHeaderError{}, true},
		{"network", fmt.Errorf("dial: %w", timeoutError{}), true},
		{"503", &HTTPStatusError{StatusCode: 503}, true},
		{"429", &HTTPStatusError{StatusCode: 429}, true},
		{"404", &HTTPStatusError{StatusCode: 404}, false},
		{"malformed", &flacmeta.MalformedContainerError{}, false},
		{"sink", &flacmeta.SinkError{Err: errors.New("disk full")}, false},
		{"canceled", fmt.Errorf("read: %w", context.Canceled), false},
		{"deadline", &flacmeta.SourceError{Err: context.DeadlineExceeded}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
