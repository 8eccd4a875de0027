package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ankit-chaubey/flacgrab/core"
	"github.com/ankit-chaubey/flacgrab/core/flacmeta"
)

var errDiskFull = errors.New("disk full")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errDiskFull }

func flacStream(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	s := flacmeta.NewSerializer(context.Background(), &buf)
	if err := s.WriteBlock(flacmeta.NewBlock(flacmeta.TypeStreamInfo, make([]byte, 34), true)); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := s.WriteAudio(bytes.Repeat([]byte{0xFF, 0xF8, 0x01}, 300)); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	return buf.Bytes()
}

func coverFile(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "cover.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStreamRewriteFlushError(t *testing.T) {
	rep, err := flacmeta.BuildReplacementBlocksFromFile(flacmeta.NewTagSet(""), coverFile(t, t.TempDir()))
	if err != nil {
		t.Fatalf("BuildReplacementBlocksFromFile: %v", err)
	}
	// The whole stream fits the write buffer, so only Flush reaches the sink.
	c, err := streamRewrite(context.Background(), bytes.NewReader(flacStream(t)), failingWriter{}, rep, false)
	if !errors.Is(err, errDiskFull) {
		t.Errorf("err = %v, want %v", err, errDiskFull)
	}
	if c != nil {
		t.Error("completion returned for an unflushed stream")
	}
}

func TestRewriteStdio(t *testing.T) {
	stream := flacStream(t)
	tests := []struct {
		name    string
		input   []byte
		wantErr bool
	}{
		{"valid", stream, false},
		{"truncated", stream[:20], true},
		{"not flac", []byte("RIFF0000WAVEfmt "), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			in := filepath.Join(dir, "in.flac")
			if err := os.WriteFile(in, tt.input, 0o644); err != nil {
				t.Fatal(err)
			}
			out := filepath.Join(dir, "out.flac")
			edit := core.EditOptions{
				Set:       []core.MetaField{{Key: "TITLE", Value: "Song"}},
				CoverPath: coverFile(t, dir),
			}

			err := rewriteStdio(context.Background(), rewriteOptions{Input: in, Output: out}, edit)
			_, statErr := os.Stat(out)
			if tt.wantErr {
				if err == nil {
					t.Fatal("rewriteStdio succeeded")
				}
				if !os.IsNotExist(statErr) {
					t.Errorf("partial output left behind (stat: %v)", statErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("rewriteStdio: %v", err)
			}
			if statErr != nil {
				t.Fatalf("output missing: %v", statErr)
			}
		})
	}
}
