// internal/catalog/spotify_test.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParsePlaylistID(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "share link", ref: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "share link with query", ref: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "trailing slash", ref: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M/", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "bare id", ref: "37i9dQZF1DXcBWIGoYBM5M", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "surrounding whitespace", ref: "  37i9dQZF1DXcBWIGoYBM5M\n", want: "37i9dQZF1DXcBWIGoYBM5M"},
		{name: "empty", ref: "", wantErr: true},
		{name: "whitespace only", ref: "   ", wantErr: true},
		{name: "uri form rejected", ref: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M", wantErr: true},
		{name: "link with empty id", ref: "https://open.spotify.com/playlist/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlaylistID(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadPlaylist)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type playlistItem struct {
	name    string
	artists []string
	isrc    string
}

// spotifyStub fakes the three upstream endpoints the provider talks to.
type spotifyStub struct {
	tokenSrv  *httptest.Server
	apiSrv    *httptest.Server
	deezerSrv *httptest.Server

	tokenRequests atomic.Int64
	playlistCode  int
	items         []playlistItem
	previews      map[string]string // isrc -> preview URL, absent means no preview
}

func newSpotifyStub(t *testing.T) *spotifyStub {
	t.Helper()
	stub := &spotifyStub{playlistCode: http.StatusOK, previews: make(map[string]string)}

	stub.tokenSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.tokenRequests.Add(1)
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"access_token":"test-token","expires_in":3600}`)
	}))
	t.Cleanup(stub.tokenSrv.Close)

	stub.apiSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if stub.playlistCode != http.StatusOK {
			w.WriteHeader(stub.playlistCode)
			return
		}
		type artist struct {
			Name string `json:"name"`
		}
		type track struct {
			Name        string   `json:"name"`
			Artists     []artist `json:"artists"`
			ExternalIDs struct {
				ISRC string `json:"isrc"`
			} `json:"external_ids"`
		}
		type item struct {
			Track *track `json:"track"`
		}
		var resp struct {
			Items []item `json:"items"`
		}
		for _, it := range stub.items {
			tr := &track{Name: it.name}
			for _, a := range it.artists {
				tr.Artists = append(tr.Artists, artist{Name: a})
			}
			tr.ExternalIDs.ISRC = it.isrc
			resp.Items = append(resp.Items, item{Track: tr})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(stub.apiSrv.Close)

	stub.deezerSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isrc := strings.TrimPrefix(r.URL.Path, "/track/isrc:")
		preview, ok := stub.previews[isrc]
		if !ok {
			fmt.Fprint(w, `{"preview":""}`)
			return
		}
		fmt.Fprintf(w, `{"preview":%q}`, preview)
	}))
	t.Cleanup(stub.deezerSrv.Close)

	return stub
}

func (st *spotifyStub) provider() *SpotifyProvider {
	p := NewSpotifyProvider(testLogger(), "client-id", "client-secret")
	p.tokenURL = st.tokenSrv.URL
	p.apiBaseURL = st.apiSrv.URL
	p.deezerURL = st.deezerSrv.URL
	return p
}

func TestTracksResolvesPreviews(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.items = []playlistItem{
		{name: "Song A", artists: []string{"Artist 1", "Artist 2"}, isrc: "ISRCA"},
		{name: "Song B", artists: []string{"Artist 3"}, isrc: "ISRCB"},
	}
	stub.previews["ISRCA"] = "https://cdn.example/a.mp3"
	stub.previews["ISRCB"] = "https://cdn.example/b.mp3"

	tracks, err := stub.provider().Tracks(context.Background(), "playlist-id", 2)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	byTitle := make(map[string]Track)
	for _, tr := range tracks {
		byTitle[tr.Title] = tr
	}
	assert.Equal(t, []string{"Artist 1", "Artist 2"}, byTitle["Song A"].Artists)
	assert.Equal(t, "https://cdn.example/a.mp3", byTitle["Song A"].PreviewURL)
	assert.Equal(t, "https://cdn.example/b.mp3", byTitle["Song B"].PreviewURL)
}

func TestTracksSkipsUnplayable(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.items = []playlistItem{
		{name: "No ISRC", artists: []string{"Artist 1"}},
		{name: "No Preview", artists: []string{"Artist 2"}, isrc: "ISRCX"},
		{name: "Playable", artists: []string{"Artist 3"}, isrc: "ISRCY"},
	}
	stub.previews["ISRCY"] = "https://cdn.example/y.mp3"

	tracks, err := stub.provider().Tracks(context.Background(), "playlist-id", 3)
	require.NoError(t, err)
	require.Len(t, tracks, 1, "partial results are valid")
	assert.Equal(t, "Playable", tracks[0].Title)
}

func TestTracksCapsAtRequestedCount(t *testing.T) {
	stub := newSpotifyStub(t)
	for i := 0; i < 5; i++ {
		isrc := fmt.Sprintf("ISRC%d", i)
		stub.items = append(stub.items, playlistItem{name: fmt.Sprintf("Song %d", i), isrc: isrc})
		stub.previews[isrc] = fmt.Sprintf("https://cdn.example/%d.mp3", i)
	}

	tracks, err := stub.provider().Tracks(context.Background(), "playlist-id", 3)
	require.NoError(t, err)
	assert.Len(t, tracks, 3)
}

func TestTracksNoPlayableTracks(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.items = []playlistItem{{name: "No ISRC"}}

	_, err := stub.provider().Tracks(context.Background(), "playlist-id", 5)
	assert.ErrorIs(t, err, ErrNoTracks)
}

func TestTracksUnknownPlaylist(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.playlistCode = http.StatusNotFound

	_, err := stub.provider().Tracks(context.Background(), "playlist-id", 5)
	assert.ErrorIs(t, err, ErrBadPlaylist)
}

func TestTracksRejectsBadReferenceWithoutFetching(t *testing.T) {
	stub := newSpotifyStub(t)

	_, err := stub.provider().Tracks(context.Background(), "spotify:playlist:xyz", 5)
	assert.ErrorIs(t, err, ErrBadPlaylist)
	assert.Zero(t, stub.tokenRequests.Load())
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	stub := newSpotifyStub(t)
	stub.items = []playlistItem{{name: "Song A", isrc: "ISRCA"}}
	stub.previews["ISRCA"] = "https://cdn.example/a.mp3"
	p := stub.provider()

	for i := 0; i < 3; i++ {
		_, err := p.Tracks(context.Background(), "playlist-id", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), stub.tokenRequests.Load())
}
