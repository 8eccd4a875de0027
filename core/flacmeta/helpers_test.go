package flacmeta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// streamInfoBody returns a valid STREAMINFO body: 4096-sample blocks,
// 44.1 kHz, stereo, 16 bits per sample.
func streamInfoBody(nsamples uint64) []byte {
	b := make([]byte, 34)
	binary.BigEndian.PutUint16(b[0:2], 4096)
	binary.BigEndian.PutUint16(b[2:4], 4096)
	v := uint64(44100)<<44 | uint64(2-1)<<41 | uint64(16-1)<<36 | nsamples&(1<<36-1)
	binary.BigEndian.PutUint64(b[10:18], v)
	return b
}

// vorbisBody hand-encodes a Vorbis comment body.
func vorbisBody(vendor string, comments ...string) []byte {
	var buf bytes.Buffer
	le := func(n int) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	}
	le(len(vendor))
	buf.WriteString(vendor)
	le(len(comments))
	for _, c := range comments {
		le(len(c))
		buf.WriteString(c)
	}
	return buf.Bytes()
}

// pictureBody hand-encodes a front-cover picture body.
func pictureBody(mime string, w, h uint32, data []byte) []byte {
	var buf bytes.Buffer
	be := func(n uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], n)
		buf.Write(b[:])
	}
	be(3)
	be(uint32(len(mime)))
	buf.WriteString(mime)
	be(0)
	be(w)
	be(h)
	be(0)
	be(0)
	be(uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// rawBlock encodes a header and body without checking that they agree.
func rawBlock(t Type, last bool, length int, body []byte) []byte {
	b := []byte{byte(t), byte(length >> 16), byte(length >> 8), byte(length)}
	if last {
		b[0] |= 0x80
	}
	return append(b, body...)
}

// buildStream encodes the signature, blocks and audio into one stream.
func buildStream(blocks []Block, audio []byte) []byte {
	out := append([]byte(nil), signature...)
	for _, b := range blocks {
		out = append(out, rawBlock(b.Type, b.IsLast, len(b.Body), b.Body)...)
	}
	return append(out, audio...)
}

// audioPayload returns n bytes that do not repeat with a short period.
func audioPayload(n int) []byte {
	b := make([]byte, n)
	x := uint32(2463534242)
	for i := range b {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		b[i] = byte(x)
	}
	// Frame sync code, as real audio would start with.
	if n >= 2 {
		b[0], b[1] = 0xFF, 0xF8
	}
	return b
}

// pngImage encodes a w x h PNG.
func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// writeFile stores data under a temporary directory and returns its path.
func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// testReplacement builds the replacement used across tests: a 3x2 PNG cover
// and TITLE/ARTIST tags.
func testReplacement(t *testing.T) (*Replacement, []byte) {
	t.Helper()
	cover := pngImage(t, 3, 2)
	tags := NewTagSet("")
	for _, kv := range [][2]string{{"TITLE", "New"}, {"ARTIST", "Band"}} {
		if err := tags.Add(kv[0], kv[1]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	rep, err := BuildReplacementBlocks(tags, &ImageAsset{Data: cover, MIME: "image/png", Width: 3, Height: 2})
	if err != nil {
		t.Fatalf("BuildReplacementBlocks: %v", err)
	}
	return rep, cover
}

// collect drains a Parser into its blocks and concatenated audio.
func collect(t *testing.T, p *Parser) ([]Block, []byte) {
	t.Helper()
	var (
		blocks []Block
		audio  []byte
	)
	for {
		ev, err := p.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return blocks, audio
			}
			t.Fatalf("Next: %v", err)
		}
		switch ev.Kind {
		case EventBlock:
			blocks = append(blocks, ev.Block)
		case EventAudio:
			audio = append(audio, ev.Audio...)
		}
	}
}
