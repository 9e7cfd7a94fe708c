// internal/events/events.go
// Package events defines the WebSocket wire protocol shared by the session
// layer and its clients. Every message is a tagged envelope: outbound events
// carry an "event" discriminant and an event-specific "data" payload; inbound
// events carry the discriminant with their fields inline.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Settings holds the per-lobby game configuration. Field names are part of
// the wire format and must stay camelCase.
type Settings struct {
	PlaylistLink       string `json:"playlistLink"`
	NumSongs           int    `json:"numSongs"`
	RoundLengthSeconds int    `json:"roundLengthSeconds"`
	AnswerDelaySeconds int    `json:"answerDelaySeconds"`
	RoundDelaySeconds  int    `json:"roundDelaySeconds"`
}

// DefaultSettings returns the settings a freshly created lobby starts with.
func DefaultSettings() Settings {
	return Settings{
		NumSongs:           10,
		RoundLengthSeconds: 30,
		AnswerDelaySeconds: 5,
		RoundDelaySeconds:  3,
	}
}

// PlayerInfo is the public view of a player used in state snapshots.
type PlayerInfo struct {
	ID       string `json:"player_id"`
	Username string `json:"username"`
	Ready    bool   `json:"ready"`
}

// Outbound (server -> client) event names.
const (
	EventSyncState           = "SyncState"
	EventPlayerJoin          = "PlayerJoin"
	EventPlayerLeave         = "PlayerLeave"
	EventPlayerReady         = "PlayerReady"
	EventPlayerUnready       = "PlayerUnready"
	EventAllReady            = "AllReady"
	EventGameStart           = "GameStart"
	EventGameEnd             = "GameEnd"
	EventGameSettingsUpdated = "GameSettingsUpdated"
	EventRoundStart          = "RoundStart"
	EventRoundEnd            = "RoundEnd"
	EventPlayerGuess         = "PlayerGuess"
	EventCorrectGuess        = "CorrectGuess"
	EventJoinError           = "JoinError"
	EventPlaylistError       = "PlaylistError"
)

// Inbound (client -> server) event names.
const (
	ActionJoin               = "Join"
	ActionReady              = "Ready"
	ActionUnready            = "Unready"
	ActionUpdateGameSettings = "UpdateGameSettings"
	ActionGuess              = "Guess"
)

// ServerEvent is the outbound envelope.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// SyncStatePayload is the full state snapshot sent to a client right after a
// successful join, so that mid-game joiners can render immediately.
type SyncStatePayload struct {
	Players        []PlayerInfo   `json:"players"`
	Settings       Settings       `json:"settings"`
	Leaderboard    map[string]int `json:"leaderboard"`
	Status         string         `json:"status"`
	PreviewURL     string         `json:"preview_url,omitempty"`
	RoundStartTime int64          `json:"round_start_time,omitempty"`
}

type playerJoinPayload struct {
	PlayerID       string `json:"player_id"`
	PlayerUsername string `json:"player_username"`
}

type playerIDPayload struct {
	PlayerID string `json:"player_id"`
}

type settingsPayload struct {
	Settings Settings `json:"settings"`
}

type roundStartPayload struct {
	PreviewURL     string `json:"preview_url"`
	RoundStartTime int64  `json:"round_start_time"`
}

type roundEndPayload struct {
	CorrectTitle   string         `json:"correct_title"`
	CorrectArtists []string       `json:"correct_artists"`
	Leaderboard    map[string]int `json:"leaderboard"`
}

type playerGuessPayload struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

type correctGuessPayload struct {
	PlayerID string `json:"player_id"`
	Msg      string `json:"msg"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func SyncState(p SyncStatePayload) ServerEvent {
	return ServerEvent{Event: EventSyncState, Data: p}
}

func PlayerJoin(playerID, username string) ServerEvent {
	return ServerEvent{Event: EventPlayerJoin, Data: playerJoinPayload{PlayerID: playerID, PlayerUsername: username}}
}

func PlayerLeave(playerID string) ServerEvent {
	return ServerEvent{Event: EventPlayerLeave, Data: playerIDPayload{PlayerID: playerID}}
}

func PlayerReady(playerID string) ServerEvent {
	return ServerEvent{Event: EventPlayerReady, Data: playerIDPayload{PlayerID: playerID}}
}

func PlayerUnready(playerID string) ServerEvent {
	return ServerEvent{Event: EventPlayerUnready, Data: playerIDPayload{PlayerID: playerID}}
}

func AllReady() ServerEvent {
	return ServerEvent{Event: EventAllReady}
}

func GameStart() ServerEvent {
	return ServerEvent{Event: EventGameStart}
}

func GameEnd() ServerEvent {
	return ServerEvent{Event: EventGameEnd}
}

func GameSettingsUpdated(s Settings) ServerEvent {
	return ServerEvent{Event: EventGameSettingsUpdated, Data: settingsPayload{Settings: s}}
}

// RoundStart announces a new round. The start time is carried as unix
// milliseconds so clients can sync their countdown displays.
func RoundStart(previewURL string, startedAt time.Time) ServerEvent {
	return ServerEvent{Event: EventRoundStart, Data: roundStartPayload{
		PreviewURL:     previewURL,
		RoundStartTime: startedAt.UnixMilli(),
	}}
}

func RoundEnd(title string, artists []string, leaderboard map[string]int) ServerEvent {
	return ServerEvent{Event: EventRoundEnd, Data: roundEndPayload{
		CorrectTitle:   title,
		CorrectArtists: artists,
		Leaderboard:    leaderboard,
	}}
}

func PlayerGuess(username, content string) ServerEvent {
	return ServerEvent{Event: EventPlayerGuess, Data: playerGuessPayload{Username: username, Content: content}}
}

func CorrectGuess(playerID, msg string) ServerEvent {
	return ServerEvent{Event: EventCorrectGuess, Data: correctGuessPayload{PlayerID: playerID, Msg: msg}}
}

func JoinError(msg string) ServerEvent {
	return ServerEvent{Event: EventJoinError, Data: errorPayload{Message: msg}}
}

func PlaylistError(msg string) ServerEvent {
	return ServerEvent{Event: EventPlaylistError, Data: errorPayload{Message: msg}}
}

// ClientEvent is the inbound envelope. Fields beyond Event are only
// meaningful for the actions that carry them.
type ClientEvent struct {
	Event     string    `json:"event"`
	LobbyCode string    `json:"lobby_code,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Settings  *Settings `json:"settings,omitempty"`
	Content   string    `json:"content,omitempty"`
}

// ParseClient decodes an inbound message. An empty discriminant is treated as
// a protocol error so that dispatch switches never match the zero value.
func ParseClient(data []byte) (ClientEvent, error) {
	var ev ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ClientEvent{}, fmt.Errorf("decode client event: %w", err)
	}
	if ev.Event == "" {
		return ClientEvent{}, fmt.Errorf("client event missing event field")
	}
	return ev, nil
}
