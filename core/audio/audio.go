// Package audio handles metadata for audio files: a full block listing and
// retagging for FLAC, tag viewing for MP3 and OGG.
package audio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	goflac "github.com/go-flac/go-flac"
	"github.com/goccy/go-json"
	"github.com/mewkiz/flac"

	"github.com/ankit-chaubey/flacgrab/core"
	"github.com/ankit-chaubey/flacgrab/core/flacmeta"
)

// ioBufferSize sizes the buffered reader and writer used for rewrites.
const ioBufferSize = 64 * 1024

// Handler implements core.Handler for audio formats.
type Handler struct {
	format core.FormatID
	// Out receives dry-run previews.
	Out    io.Writer
	Logger *slog.Logger
}

// New returns an audio Handler for the given format.
func New(format core.FormatID) *Handler {
	return &Handler{format: format, Out: os.Stdout, Logger: slog.Default()}
}

func (h *Handler) Info() core.FormatInfo {
	return formatInfo[h.format]
}

var formatInfo = map[core.FormatID]core.FormatInfo{
	core.FmtFLAC: {
		Name:       "FLAC",
		Extensions: []string{".flac"},
		MediaType:  "audio",
		MIMETypes:  []string{"audio/flac"},
		CanView:    true,
		CanEdit:    true,
		Notes:      "Vorbis comment and picture blocks are replaced; audio frames are copied untouched.",
	},
	core.FmtMP3: {
		Name:       "MP3",
		Extensions: []string{".mp3"},
		MediaType:  "audio",
		MIMETypes:  []string{"audio/mpeg"},
		CanView:    true,
		Notes:      "ID3v1 and ID3v2 tags. View only.",
	},
	core.FmtOGG: {
		Name:       "OGG",
		Extensions: []string{".ogg", ".oga"},
		MediaType:  "audio",
		MIMETypes:  []string{"audio/ogg"},
		CanView:    true,
		Notes:      "Vorbis comments. View only.",
	},
}

// ──────────────────────────────────────────────────────────────────────────────
// View
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) View(path string) (*core.Metadata, error) {
	info, ok := formatInfo[h.format]
	if !ok {
		return nil, fmt.Errorf("unsupported audio format %q", h.format)
	}
	m := &core.Metadata{FilePath: path, Format: info.Name}

	if h.format == core.FmtFLAC {
		if err := viewStreamInfo(path, m); err != nil {
			return m, err
		}
		if err := viewBlocks(path, m); err != nil {
			return m, err
		}
	}
	return viewWithDhowden(path, m, info.CanEdit)
}

// viewStreamInfo decodes the STREAMINFO block.
func viewStreamInfo(path string, m *core.Metadata) error {
	stream, err := flac.Open(path)
	if err != nil {
		return fmt.Errorf("could not read STREAMINFO: %w", err)
	}
	defer stream.Close()

	si := stream.Info
	add := func(key, val string) {
		m.Fields = append(m.Fields, core.MetaField{Key: key, Value: val, Category: "Stream"})
	}
	add("SampleRate", fmt.Sprintf("%d Hz", si.SampleRate))
	add("Channels", fmt.Sprintf("%d", si.NChannels))
	add("BitsPerSample", fmt.Sprintf("%d", si.BitsPerSample))
	if si.NSamples != 0 && si.SampleRate != 0 {
		add("Duration", fmt.Sprintf("%.2fs", float64(si.NSamples)/float64(si.SampleRate)))
	}
	add("MD5", fmt.Sprintf("%x", si.MD5sum))
	return nil
}

// viewBlocks lists every metadata block in stream order.
func viewBlocks(path string, m *core.Metadata) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p := flacmeta.NewParser(bufio.NewReaderSize(f, ioBufferSize), flacmeta.WithID3Prefix(true))
	for i := 0; ; i++ {
		ev, err := p.Next()
		if err != nil {
			return fmt.Errorf("could not list metadata blocks: %w", err)
		}
		if ev.Kind != flacmeta.EventBlock {
			break
		}
		b := ev.Block
		val := fmt.Sprintf("%s, %d bytes", b.Type, b.Length)
		if detail := describeBlock(b); detail != "" {
			val += " (" + detail + ")"
		}
		if b.IsLast {
			val += ", last"
		}
		m.Fields = append(m.Fields, core.MetaField{
			Key:      fmt.Sprintf("Block %d", i),
			Value:    val,
			Category: "Blocks",
			Editable: b.Type == flacmeta.TypeVorbisComment || b.Type == flacmeta.TypePicture,
		})
		if b.IsLast {
			break
		}
	}

	if n := p.ID3PrefixSkipped(); n > 0 {
		m.Fields = append(m.Fields, core.MetaField{Key: "ID3v2 prefix", Value: fmt.Sprintf("%d bytes", n), Category: "Blocks"})
	}
	st, err := f.Stat()
	if err == nil {
		m.Fields = append(m.Fields, core.MetaField{
			Key:      "Audio",
			Value:    fmt.Sprintf("%d bytes at offset %d", st.Size()-p.Consumed(), p.Consumed()),
			Category: "Blocks",
		})
	}
	return nil
}

// describeBlock summarises the blocks a retag replaces.
func describeBlock(b flacmeta.Block) string {
	switch b.Type {
	case flacmeta.TypeVorbisComment:
		cmt, err := flacvorbis.ParseFromMetaDataBlock(goflac.MetaDataBlock{Type: goflac.VorbisComment, Data: b.Body})
		if err != nil {
			return "unparsable"
		}
		return fmt.Sprintf("vendor %q, %d comments", cmt.Vendor, len(cmt.Comments))
	case flacmeta.TypePicture:
		pic, err := flacpicture.ParseFromMetaDataBlock(goflac.MetaDataBlock{Type: goflac.Picture, Data: b.Body})
		if err != nil {
			return "unparsable"
		}
		return fmt.Sprintf("type %d, %s, %dx%d", pic.PictureType, pic.MIME, pic.Width, pic.Height)
	}
	return ""
}

// viewWithDhowden uses the dhowden/tag library to read audio metadata.
func viewWithDhowden(path string, m *core.Metadata, editable bool) (*core.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer f.Close()

	t, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return m, nil
		}
		return m, fmt.Errorf("could not read tags: %w", err)
	}

	cat := string(t.Format())
	if cat == "" {
		cat = "Audio Tags"
	}

	add := func(key, val string) {
		if val != "" {
			m.Fields = append(m.Fields, core.MetaField{
				Key:      key,
				Value:    val,
				Category: cat,
				Editable: editable,
			})
		}
	}

	add("Title", t.Title())
	add("Artist", t.Artist())
	add("Album", t.Album())
	add("AlbumArtist", t.AlbumArtist())
	add("Genre", t.Genre())
	if t.Year() != 0 {
		add("Year", fmt.Sprintf("%d", t.Year()))
	}
	if track, total := t.Track(); track != 0 {
		s := fmt.Sprintf("%d", track)
		if total != 0 {
			s = fmt.Sprintf("%d/%d", track, total)
		}
		add("TrackNumber", s)
	}
	if pic := t.Picture(); pic != nil {
		add("Picture", fmt.Sprintf("%s, %d bytes", pic.MIMEType, len(pic.Data)))
	}

	for k, v := range t.Raw() {
		if v == nil {
			continue
		}
		switch strings.ToLower(k) {
		case "title", "artist", "album", "albumartist", "genre", "year",
			"date", "track", "tracknumber", "metadata_block_picture", "pic", "apic":
			continue
		}
		var val string
		switch vt := v.(type) {
		case string:
			val = vt
		case []string:
			val = strings.Join(vt, "; ")
		case int:
			val = fmt.Sprintf("%d", vt)
		case *tag.Picture:
			continue
		default:
			b, _ := json.Marshal(v)
			val = string(b)
		}
		if val != "" && len(val) < 512 {
			m.Fields = append(m.Fields, core.MetaField{
				Key:      k,
				Value:    val,
				Category: cat + " (raw)",
			})
		}
	}
	return m, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Edit
// ──────────────────────────────────────────────────────────────────────────────

// Edit replaces the Vorbis comment and picture blocks of a FLAC file. The
// result is written next to the target and renamed over it, so an in-place
// edit never leaves a half-written file behind.
func (h *Handler) Edit(ctx context.Context, path string, outPath string, opts core.EditOptions) error {
	if h.format != core.FmtFLAC {
		return fmt.Errorf("%s does not support metadata editing", formatInfo[h.format].Name)
	}
	out := core.ResolveOutPath(path, outPath)

	tags := flacmeta.NewTagSet(opts.Vendor)
	for _, f := range opts.Set {
		if err := tags.Add(f.Key, f.Value); err != nil {
			return err
		}
	}
	img, err := h.coverFor(path, opts.CoverPath)
	if err != nil {
		return err
	}
	rep, err := flacmeta.BuildReplacementBlocks(tags, img)
	if err != nil {
		return err
	}

	if opts.DryRun {
		fmt.Fprintf(h.Out, "Dry-run: %s would be rewritten to %s with:\n", path, out)
		fmt.Fprintf(h.Out, "  VENDOR = %s\n", tags.Vendor())
		for _, t := range tags.Tags() {
			fmt.Fprintf(h.Out, "  %s = %s\n", t.Key, t.Value)
		}
		fmt.Fprintf(h.Out, "  PICTURE = %s %dx%d, %d bytes\n", img.MIME, img.Width, img.Height, len(img.Data))
		return nil
	}

	c, err := RewriteFile(ctx, path, out, rep, flacmeta.WithID3Prefix(opts.SkipID3), flacmeta.WithLogger(h.Logger))
	if err != nil {
		return err
	}
	h.Logger.InfoContext(ctx, "retagged FLAC file",
		"path", out,
		"blocks_dropped", c.BlocksDropped,
		"audio_bytes", c.AudioBytes)
	return nil
}

// coverFor loads the cover at coverPath, or the first picture embedded in
// path when coverPath is empty.
func (h *Handler) coverFor(path, coverPath string) (*flacmeta.ImageAsset, error) {
	if coverPath != "" {
		return flacmeta.OpenImageAsset(coverPath)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := tag.ReadFrom(f)
	if err != nil || t.Picture() == nil {
		return nil, fmt.Errorf("%s has no embedded picture to reuse; a cover image is required", path)
	}
	pic := t.Picture()
	img, err := flacmeta.NewImageAsset(pic.Data, pic.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("embedded picture of %s: %w", path, err)
	}
	return img, nil
}

// RewriteFile streams src through flacmeta.RewriteStream into a temporary
// file in the directory of dst, then renames it to dst. src and dst may be
// the same file.
func RewriteFile(ctx context.Context, src, dst string, rep *flacmeta.Replacement, opts ...flacmeta.Option) (*flacmeta.Completion, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriterSize(tmp, ioBufferSize)
	c, err := flacmeta.RewriteStream(ctx, bufio.NewReaderSize(in, ioBufferSize), w, rep, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return nil, err
	}
	committed = true
	return c, nil
}
