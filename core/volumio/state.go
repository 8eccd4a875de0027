// Package volumio talks to a Volumio music player: it reads the player state,
// either by polling the REST API or by receiving push notifications, and
// turns it into the track currently being streamed.
package volumio

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/ankit-chaubey/flacgrab/core"
)

// StatusPlay is the player status of a track being played.
const StatusPlay = "play"

// State is the subset of the Volumio player state flacgrab acts on.
type State struct {
	Status   string
	Title    string
	Album    string
	Artist   string
	AlbumArt string
	URI      string
	Service  string
	// Position is the zero-based queue position; -1 when absent or unparsable.
	Position int
}

// ParseState decodes a Volumio state document. The document may be the bare
// state or a push notification of the form {"item": "state", "data": {...}}.
// position is accepted both as a number and as a numeric string.
func ParseState(data []byte) (State, error) {
	if !gjson.ValidBytes(data) {
		return State{}, &InvalidStateError{Details: "not valid JSON"}
	}
	doc := gjson.ParseBytes(data)
	if item := doc.Get("item"); item.Exists() {
		if item.String() != "state" {
			return State{}, &InvalidStateError{Details: "unexpected push item " + item.String()}
		}
		doc = doc.Get("data")
	}
	if !doc.IsObject() {
		return State{}, &InvalidStateError{Details: "state is not an object"}
	}

	s := State{
		Status:   doc.Get("status").String(),
		Title:    doc.Get("title").String(),
		Album:    doc.Get("album").String(),
		Artist:   doc.Get("artist").String(),
		AlbumArt: doc.Get("albumart").String(),
		URI:      doc.Get("uri").String(),
		Service:  doc.Get("service").String(),
		Position: -1,
	}
	pos := doc.Get("position")
	switch pos.Type {
	case gjson.Number:
		s.Position = int(pos.Int())
	case gjson.String:
		if n, err := strconv.Atoi(strings.TrimSpace(pos.Str)); err == nil && n >= 0 {
			s.Position = n
		}
	}
	return s, nil
}

// Track reports the track described by s and whether it should be grabbed:
// the player is playing, every descriptive field is present, the track URL
// is an http(s) URL containing filter and the album art is an http(s) URL.
func (s State) Track(filter string) (core.TrackInfo, bool) {
	if s.Status != StatusPlay {
		return core.TrackInfo{}, false
	}
	required := []string{s.Title, s.Album, s.Artist, s.AlbumArt, s.URI}
	if !lo.EveryBy(required, func(v string) bool { return v != "" }) {
		return core.TrackInfo{}, false
	}
	if s.Position < 0 {
		return core.TrackInfo{}, false
	}
	if !strings.Contains(s.URI, filter) || !strings.HasPrefix(s.URI, "http") || !strings.HasPrefix(s.AlbumArt, "http") {
		return core.TrackInfo{}, false
	}
	return core.TrackInfo{
		Title:       s.Title,
		Album:       s.Album,
		Artist:      s.Artist,
		TrackNumber: s.Position + 1,
		AlbumArtURL: s.AlbumArt,
		TrackURL:    s.URI,
	}, true
}
