// internal/session/session.go
// Package session holds the in-memory state of a single lobby: who is in it,
// how the game is configured, and how far the current round sequence has
// progressed. A Session is shared by every connection handler plus the round
// scheduler; each of its three state blocks is guarded by its own mutex, and
// no lock is ever held across a broadcast or any other call out.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guessr-gg/guessr/internal/bus"
	"github.com/guessr-gg/guessr/internal/events"
)

// Status is the lobby lifecycle phase.
type Status string

const (
	StatusWaiting Status = "Waiting"
	StatusPlaying Status = "Playing"
)

// ErrGameInProgress rejects a new join while a game is running. Re-joins of
// ids the session already knows are still allowed.
var ErrGameInProgress = errors.New("cannot join a game in progress")

// Player is one member of the lobby.
type Player struct {
	ID       string
	Username string
	Ready    bool
}

// Song is the session's view of one playable track. The session tracks which
// parts of it have already been credited to a guesser.
type Song struct {
	Title      string
	Artists    []string
	PreviewURL string
}

type artistState struct {
	name  string
	found bool
}

type songState struct {
	title      string
	titleFound bool
	artists    []artistState
	previewURL string
}

// Session is the aggregate root for one lobby.
type Session struct {
	Code string
	Bus  *bus.Bus

	// OnEmpty is invoked (outside all locks) when the last player leaves.
	// The registry assigns it at creation time to trigger cleanup.
	OnEmpty func(code string)

	lobbyMu sync.Mutex
	players map[string]*Player
	status  Status

	settingsMu sync.Mutex
	settings   events.Settings

	roundMu      sync.Mutex
	scores       map[string]int
	songs        []songState
	songIndex    int // 1-based; 0 means no round has started
	roundStarted time.Time
	lastAccepted time.Time
	cancelGame   context.CancelFunc
}

// New creates an empty Waiting session with default settings and a fresh
// broadcast bus.
func New(code string) *Session {
	return &Session{
		Code:     code,
		Bus:      bus.New(),
		players:  make(map[string]*Player),
		status:   StatusWaiting,
		settings: events.DefaultSettings(),
		scores:   make(map[string]int),
	}
}

// Join registers a player. A non-empty requestedID that the session already
// knows is treated as a re-join: the score entry survives and the username is
// refreshed if provided. New ids are only admitted while the lobby is
// Waiting. The returned id is server-issued and opaque.
func (s *Session) Join(requestedID, username string) (id string, rejoin bool, err error) {
	s.lobbyMu.Lock()
	if requestedID != "" {
		if p, ok := s.players[requestedID]; ok {
			if username != "" {
				p.Username = username
			}
			s.lobbyMu.Unlock()
			return requestedID, true, nil
		}
	}
	if s.status == StatusPlaying {
		s.lobbyMu.Unlock()
		return "", false, ErrGameInProgress
	}
	id = uuid.NewString()
	s.players[id] = &Player{ID: id, Username: username}
	s.lobbyMu.Unlock()

	s.roundMu.Lock()
	if _, ok := s.scores[id]; !ok {
		s.scores[id] = 0
	}
	s.roundMu.Unlock()
	return id, false, nil
}

// SetReady flips the player's ready flag on. Unknown ids are ignored.
func (s *Session) SetReady(id string) {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	if p, ok := s.players[id]; ok {
		p.Ready = true
	}
}

// SetUnready flips the player's ready flag off. Unknown ids are ignored.
func (s *Session) SetUnready(id string) {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	if p, ok := s.players[id]; ok {
		p.Ready = false
	}
}

// AllReady reports whether the lobby is non-empty and every player is ready.
// An empty lobby is never all-ready.
func (s *Session) AllReady() bool {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	return s.allReadyLocked()
}

func (s *Session) allReadyLocked() bool {
	if len(s.players) == 0 {
		return false
	}
	for _, p := range s.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// TryBeginPlay performs the race-free Waiting -> Playing transition. It
// returns true for exactly one caller among any number racing to ready up
// last; that caller is responsible for starting the round scheduler.
func (s *Session) TryBeginPlay() bool {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	if s.status != StatusWaiting || !s.allReadyLocked() {
		return false
	}
	s.status = StatusPlaying
	return true
}

// AbortStart reverts a won start transition after the song fetch failed. The
// initiating player is un-readied so the group can retry deliberately.
func (s *Session) AbortStart(initiatorID string) {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	s.status = StatusWaiting
	if p, ok := s.players[initiatorID]; ok {
		p.Ready = false
	}
}

// Status returns the current lobby phase.
func (s *Session) Status() Status {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	return s.status
}

// PlayerCount returns the number of currently joined players.
func (s *Session) PlayerCount() int {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	return len(s.players)
}

// Username returns the display name for a joined player id.
func (s *Session) Username(id string) (string, bool) {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return "", false
	}
	return p.Username, true
}

// Players returns a snapshot of the lobby membership.
func (s *Session) Players() []events.PlayerInfo {
	s.lobbyMu.Lock()
	defer s.lobbyMu.Unlock()
	out := make([]events.PlayerInfo, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, events.PlayerInfo{ID: p.ID, Username: p.Username, Ready: p.Ready})
	}
	return out
}

// Leave removes the player from the lobby. The score entry is retained so a
// disconnected player keeps their points. If the lobby becomes empty the
// running game (if any) is cancelled and OnEmpty fires; both happen outside
// the lock. Returns whether the lobby is now empty.
func (s *Session) Leave(id string) bool {
	s.lobbyMu.Lock()
	delete(s.players, id)
	empty := len(s.players) == 0
	s.lobbyMu.Unlock()

	if empty {
		s.CancelGame()
		if s.OnEmpty != nil {
			s.OnEmpty(s.Code)
		}
	}
	return empty
}

// UpdateSettings replaces the settings wholesale, last writer wins.
func (s *Session) UpdateSettings(cfg events.Settings) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.settings = cfg
}

// Settings returns a copy of the current settings.
func (s *Session) Settings() events.Settings {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.settings
}

// RecordSongs installs the fetched song list for the upcoming game.
func (s *Session) RecordSongs(songs []Song) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	s.songs = make([]songState, 0, len(songs))
	for _, song := range songs {
		st := songState{title: song.Title, previewURL: song.PreviewURL}
		for _, a := range song.Artists {
			st.artists = append(st.artists, artistState{name: a})
		}
		s.songs = append(s.songs, st)
	}
}

// AdvanceRound moves to the next song and stamps the round start time, which
// is returned so the announcement and later snapshots agree on it. The index
// only ever increases; once the list is exhausted it keeps returning false
// without wrapping.
func (s *Session) AdvanceRound() (Song, time.Time, bool) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	s.songIndex++
	if s.songIndex > len(s.songs) {
		return Song{}, time.Time{}, false
	}
	cur := s.songs[s.songIndex-1]
	s.roundStarted = time.Now()

	song := Song{Title: cur.title, PreviewURL: cur.previewURL}
	for _, a := range cur.artists {
		song.Artists = append(song.Artists, a.name)
	}
	return song, s.roundStarted, true
}

// CurrentPreview returns the active round's preview URL and start time, if a
// round has started.
func (s *Session) CurrentPreview() (string, time.Time, bool) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	if s.songIndex == 0 || s.songIndex > len(s.songs) {
		return "", time.Time{}, false
	}
	return s.songs[s.songIndex-1].previewURL, s.roundStarted, true
}

func normalizeGuess(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// CheckGuessTitle matches text against the current song's title, if it has
// not been found yet. The first correct guesser claims the credit; the
// canonical title is returned on a match. Before any round has started every
// guess misses.
func (s *Session) CheckGuessTitle(text string) (string, bool) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	if s.songIndex == 0 || s.songIndex > len(s.songs) {
		return "", false
	}
	cur := &s.songs[s.songIndex-1]
	if cur.titleFound {
		return "", false
	}
	if normalizeGuess(cur.title) == normalizeGuess(text) {
		cur.titleFound = true
		return cur.title, true
	}
	return "", false
}

// CheckGuessArtist matches text against the current song's not-yet-found
// artists. Each artist is credited at most once per song.
func (s *Session) CheckGuessArtist(text string) (string, bool) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	if s.songIndex == 0 || s.songIndex > len(s.songs) {
		return "", false
	}
	cur := &s.songs[s.songIndex-1]
	guess := normalizeGuess(text)
	for i := range cur.artists {
		a := &cur.artists[i]
		if !a.found && normalizeGuess(a.name) == guess {
			a.found = true
			return a.name, true
		}
	}
	return "", false
}

// AcceptGuess applies the shared answer-window throttle: a guess arriving
// within lockout of the previously accepted guess is rejected for scoring
// (though it stays visible to the lobby as an attempt).
func (s *Session) AcceptGuess(now time.Time, lockout time.Duration) bool {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	if !s.lastAccepted.IsZero() && now.Sub(s.lastAccepted) < lockout {
		return false
	}
	s.lastAccepted = now
	return true
}

// Award adds points to a known player's score. Unknown ids (never joined)
// are a no-op.
func (s *Session) Award(id string, points int) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	if _, ok := s.scores[id]; ok {
		s.scores[id] += points
	}
}

// Leaderboard returns a read-only copy of the scores for broadcast payloads.
func (s *Session) Leaderboard() map[string]int {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	out := make(map[string]int, len(s.scores))
	for id, sc := range s.scores {
		out[id] = sc
	}
	return out
}

// SetGameCancel stores the cancel func of the running round scheduler so the
// last-player-leaves path can stop it immediately.
func (s *Session) SetGameCancel(cancel context.CancelFunc) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()
	s.cancelGame = cancel
}

// CancelGame stops the running round scheduler, if any. Idempotent.
func (s *Session) CancelGame() {
	s.roundMu.Lock()
	cancel := s.cancelGame
	s.cancelGame = nil
	s.roundMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset prepares the lobby for a replay without a new code: scores are
// zeroed, the song list cleared and the round index rewound, the status
// returns to Waiting and every ready flag is cleared. Membership survives.
func (s *Session) Reset() {
	s.roundMu.Lock()
	for id := range s.scores {
		s.scores[id] = 0
	}
	s.songs = nil
	s.songIndex = 0
	s.roundStarted = time.Time{}
	s.lastAccepted = time.Time{}
	s.cancelGame = nil
	s.roundMu.Unlock()

	s.lobbyMu.Lock()
	s.status = StatusWaiting
	for _, p := range s.players {
		p.Ready = false
	}
	s.lobbyMu.Unlock()
}

// Snapshot assembles the full state payload for a joining client. Each state
// block is read under its own lock; the result is a consistent-enough view
// for rendering (later events carry any concurrent change).
func (s *Session) Snapshot() events.SyncStatePayload {
	s.lobbyMu.Lock()
	players := make([]events.PlayerInfo, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, events.PlayerInfo{ID: p.ID, Username: p.Username, Ready: p.Ready})
	}
	status := s.status
	s.lobbyMu.Unlock()

	payload := events.SyncStatePayload{
		Players:     players,
		Settings:    s.Settings(),
		Leaderboard: s.Leaderboard(),
		Status:      string(status),
	}
	if url, startedAt, ok := s.CurrentPreview(); ok {
		payload.PreviewURL = url
		payload.RoundStartTime = startedAt.UnixMilli()
	}
	return payload
}
