// Package grab downloads the tracks a player streams and stores them as
// tagged FLAC files under a destination root.
package grab

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/flytam/filenamify"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/ankit-chaubey/flacgrab/core"
)

const (
	// replacement substitutes characters a file name cannot hold.
	replacement = "!"
	// maxNameBytes caps every sanitized path component.
	maxNameBytes = 100
	tmpDirName   = "tmp"
)

// Sanitize turns a track attribute into a single safe path component:
// surrounding space and trailing dots are trimmed, inner spaces become
// underscores, and characters no file system accepts are replaced with "!".
func Sanitize(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.TrimRight(s, ". ")
	s = strings.ReplaceAll(s, " ", "_")

	s, err := filenamify.Filenamify(s, filenamify.Options{Replacement: replacement, MaxLength: maxNameBytes})
	if err != nil {
		return replacement
	}
	// The length cap counts bytes and may split the last rune.
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	if s == "" {
		return replacement
	}
	return s
}

// Layout places grabbed files under Root.
type Layout struct {
	Root string
}

// GrabID identifies a track across state notifications.
func (l Layout) GrabID(t core.TrackInfo) string {
	return Sanitize(t.Title) + "_" + Sanitize(t.Album) + "_" + Sanitize(t.Artist)
}

// TrackPath returns Root/artist/album/{n}_{title}.flac.
func (l Layout) TrackPath(t core.TrackInfo) string {
	name := fmt.Sprintf("%d_%s.flac", t.TrackNumber, Sanitize(t.Title))
	return filepath.Join(l.Root, Sanitize(t.Artist), Sanitize(t.Album), name)
}

// TempDir holds downloads in progress.
func (l Layout) TempDir() string {
	return filepath.Join(l.Root, tmpDirName)
}

// TempArtPath returns a unique file for the album art of grabID. ext carries
// the leading dot.
func (l Layout) TempArtPath(grabID, ext string) string {
	return filepath.Join(l.TempDir(), fmt.Sprintf("%s_%s_albumart%s", grabID, uuid.NewString(), ext))
}

// extensionFromURL returns the lower-cased extension of the URL path when it
// names an image format.
func extensionFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := core.MIMEForExtension(ext); !ok {
		return ""
	}
	return ext
}
