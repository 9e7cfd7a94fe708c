// internal/catalog/spotify.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTokenURL   = "https://accounts.spotify.com/api/token"
	defaultAPIBaseURL = "https://api.spotify.com/v1"
	defaultDeezerURL  = "https://api.deezer.com"
)

// SpotifyProvider resolves playlists via the Spotify client-credentials flow
// and fills in preview URLs through Deezer's ISRC lookup, since Spotify no
// longer serves preview clips on this flow.
type SpotifyProvider struct {
	log          *logrus.Logger
	httpClient   *http.Client
	clientID     string
	clientSecret string

	// Overridable for tests.
	tokenURL   string
	apiBaseURL string
	deezerURL  string

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewSpotifyProvider builds a provider from client credentials.
func NewSpotifyProvider(log *logrus.Logger, clientID, clientSecret string) *SpotifyProvider {
	return &SpotifyProvider{
		log:          log,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		apiBaseURL:   defaultAPIBaseURL,
		deezerURL:    defaultDeezerURL,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached client-credentials token, refreshing it shortly
// before expiry.
func (p *SpotifyProvider) token(ctx context.Context) (string, error) {
	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request spotify token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify token endpoint returned %s", resp.Status)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode spotify token: %w", err)
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - 30*time.Second)
	return p.accessToken, nil
}

// ParsePlaylistID extracts the playlist id from a share link of the form
// "...playlist/{id}" (query string tolerated) or accepts a bare id.
func ParsePlaylistID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrBadPlaylist
	}
	if idx := strings.Index(ref, "playlist/"); idx >= 0 {
		ref = ref[idx+len("playlist/"):]
	}
	if idx := strings.IndexAny(ref, "?/"); idx >= 0 {
		ref = ref[:idx]
	}
	if ref == "" || strings.Contains(ref, ":") {
		return "", ErrBadPlaylist
	}
	return ref, nil
}

type playlistResponse struct {
	Items []struct {
		Track *struct {
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"artists"`
			ExternalIDs struct {
				ISRC string `json:"isrc"`
			} `json:"external_ids"`
		} `json:"track"`
	} `json:"items"`
}

type deezerTrack struct {
	Preview string `json:"preview"`
}

// Tracks fetches the playlist, shuffles it, and resolves previews until count
// tracks are playable or the playlist is exhausted. Tracks without an ISRC or
// without a Deezer preview are skipped.
func (p *SpotifyProvider) Tracks(ctx context.Context, playlistRef string, count int) ([]Track, error) {
	playlistID, err := ParsePlaylistID(playlistRef)
	if err != nil {
		return nil, err
	}

	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	playlistURL := fmt.Sprintf("%s/playlists/%s/tracks?limit=100", p.apiBaseURL, playlistID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build playlist request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", playlistID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, ErrBadPlaylist)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify playlist endpoint returned %s", resp.Status)
	}

	var playlist playlistResponse
	if err := json.NewDecoder(resp.Body).Decode(&playlist); err != nil {
		return nil, fmt.Errorf("decode playlist %s: %w", playlistID, err)
	}

	rand.Shuffle(len(playlist.Items), func(i, j int) {
		playlist.Items[i], playlist.Items[j] = playlist.Items[j], playlist.Items[i]
	})

	tracks := make([]Track, 0, count)
	for _, item := range playlist.Items {
		if len(tracks) >= count {
			break
		}
		t := item.Track
		if t == nil || t.ExternalIDs.ISRC == "" {
			continue
		}
		preview, err := p.previewURL(ctx, t.ExternalIDs.ISRC)
		if err != nil {
			p.log.Debugf("catalog: no preview for %q (isrc %s): %v", t.Name, t.ExternalIDs.ISRC, err)
			continue
		}
		artists := make([]string, 0, len(t.Artists))
		for _, a := range t.Artists {
			artists = append(artists, a.Name)
		}
		tracks = append(tracks, Track{Title: t.Name, Artists: artists, PreviewURL: preview})
	}

	if len(tracks) == 0 {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, ErrNoTracks)
	}
	if len(tracks) < count {
		p.log.Infof("catalog: playlist %s yielded %d/%d playable tracks", playlistID, len(tracks), count)
	}
	return tracks, nil
}

// previewURL asks Deezer for the 30-second preview clip matching an ISRC.
func (p *SpotifyProvider) previewURL(ctx context.Context, isrc string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/track/isrc:%s", p.deezerURL, isrc), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deezer returned %s", resp.Status)
	}
	var dt deezerTrack
	if err := json.NewDecoder(resp.Body).Decode(&dt); err != nil {
		return "", err
	}
	if dt.Preview == "" {
		return "", fmt.Errorf("no preview for isrc %s", isrc)
	}
	return dt.Preview, nil
}
