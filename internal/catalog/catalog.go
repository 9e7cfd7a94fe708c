// internal/catalog/catalog.go
// Package catalog resolves a playlist reference into a list of playable
// tracks with short audio previews. The session core only depends on the
// Provider interface; the concrete implementation talks to Spotify for
// playlist metadata and Deezer for preview URLs.
package catalog

import (
	"context"
	"errors"
)

// Track is one playable song: its title, the credited artists, and a URL to
// a short audio preview clip.
type Track struct {
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	PreviewURL string   `json:"preview_url"`
}

var (
	// ErrBadPlaylist means the playlist reference could not be parsed or
	// resolved at all.
	ErrBadPlaylist = errors.New("unusable playlist reference")

	// ErrNoTracks means the playlist resolved but yielded zero playable
	// tracks (e.g. no previews available).
	ErrNoTracks = errors.New("no playable tracks in playlist")
)

// Provider fetches up to count playable tracks for a playlist reference.
// Partial results (fewer tracks than requested) are valid; implementations
// return an error only when nothing playable could be resolved.
type Provider interface {
	Tracks(ctx context.Context, playlistRef string, count int) ([]Track, error)
}
