// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/guessr-gg/guessr/internal/events"
	"github.com/guessr-gg/guessr/internal/session"
)

// Points awarded for the two independent guess checks. A single message that
// matches both the title and an artist collects both.
const (
	TitlePoints  = 100
	ArtistPoints = 50
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// conn bundles everything the per-connection loops need once the handshake
// has succeeded.
type conn struct {
	ws       *websocket.Conn
	sess     *session.Session
	playerID string
	log      *logrus.Logger
}

// serveWS runs one accepted WebSocket connection through the full lifecycle:
// await the Join handshake, resolve and register with the session, sync
// state, then run the fan-out and command loops until either side closes.
func (s *Server) serveWS(reqCtx context.Context, ws *websocket.Conn, remoteAddr string) {
	defer ws.Close(websocket.StatusInternalError, "handler exited")

	ctx, cancel := context.WithCancel(reqCtx)
	defer cancel()

	// Step 1: the first message must be a Join event.
	join, err := readClientEvent(ctx, ws)
	if err != nil || join.Event != events.ActionJoin {
		writeEvent(ctx, ws, events.JoinError("expected join"))
		ws.Close(ExpectedJoinError, "expected join")
		return
	}

	// Step 2: resolve the session.
	code := strings.TrimSpace(join.LobbyCode)
	sess, ok := s.registry.Lookup(code)
	if !ok {
		writeEvent(ctx, ws, events.JoinError("lobby not found"))
		ws.Close(InvalidLobbyCodeError, "lobby not found")
		return
	}

	// Step 3: register. A previously-issued id makes this a re-join.
	playerID, rejoin, err := sess.Join(join.UserID, strings.TrimSpace(join.Username))
	if err != nil {
		writeEvent(ctx, ws, events.JoinError(err.Error()))
		ws.Close(JoinRejectedError, "join rejected")
		return
	}
	s.log.Infof("lobby %s: player %s (%s) connected from %s (rejoin=%v)",
		code, playerID, join.Username, remoteAddr, rejoin)

	// The leave guard must run exactly once, whichever loop exits first and
	// however it exits. Session.Leave cancels the game and signals the reaper
	// itself when the lobby empties.
	var leaveOnce sync.Once
	leave := func() {
		leaveOnce.Do(func() {
			sess.Leave(playerID)
			sess.Bus.Publish(events.PlayerLeave(playerID))
			s.log.Infof("lobby %s: player %s left", code, playerID)
		})
	}
	defer leave()

	// Subscribe before syncing so no event published after the snapshot is
	// missed; events older than the snapshot were never ours to see.
	sub, unsubscribe := sess.Bus.Subscribe()
	defer unsubscribe()

	// Step 4: one full state snapshot so mid-game joiners render correctly.
	if err := writeEvent(ctx, ws, events.SyncState(sess.Snapshot())); err != nil {
		return
	}
	sess.Bus.Publish(events.PlayerJoin(playerID, join.Username))

	c := &conn{ws: ws, sess: sess, playerID: playerID, log: s.log}

	// Fan-out loop: bus -> socket. Exits on write failure or unsubscribe;
	// cancelling the shared context stops the command loop too.
	go func() {
		defer cancel()
		c.writePump(ctx, sub)
	}()

	// Command loop: socket -> session mutations. Blocks until close/error.
	c.readPump(ctx, s)

	cancel()
}

// readClientEvent reads and decodes a single inbound event.
func readClientEvent(ctx context.Context, ws *websocket.Conn) (events.ClientEvent, error) {
	typ, data, err := ws.Read(ctx)
	if err != nil {
		return events.ClientEvent{}, err
	}
	if typ != websocket.MessageText {
		return events.ClientEvent{}, fmt.Errorf("unexpected message type %d", typ)
	}
	return events.ParseClient(data)
}

// writeEvent marshals and writes one event with a bounded write deadline.
func writeEvent(ctx context.Context, ws *websocket.Conn, ev events.ServerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Event, err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}

// writePump relays bus events to the socket and keeps the connection alive
// with periodic pings. The first failed write ends the pump.
func (c *conn) writePump(ctx context.Context, sub <-chan events.ServerEvent) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := writeEvent(ctx, c.ws, ev); err != nil {
				c.log.Debugf("lobby %s: write to %s failed: %v", c.sess.Code, c.playerID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.log.Debugf("lobby %s: ping to %s failed: %v", c.sess.Code, c.playerID, err)
				return
			}
		}
	}
}

// readPump consumes inbound events until the socket closes. Malformed
// payloads are logged and skipped; only the handshake is strict.
func (c *conn) readPump(ctx context.Context, s *Server) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.log.Infof("lobby %s: player %s closed the connection", c.sess.Code, c.playerID)
			} else if ctx.Err() == nil {
				c.log.Warnf("lobby %s: read from %s failed: %v", c.sess.Code, c.playerID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			c.log.Warnf("lobby %s: non-text message from %s ignored", c.sess.Code, c.playerID)
			continue
		}
		ev, err := events.ParseClient(data)
		if err != nil {
			c.log.Warnf("lobby %s: bad payload from %s: %v", c.sess.Code, c.playerID, err)
			continue
		}
		c.dispatch(s, ev)
	}
}

// dispatch routes one inbound event to the session.
func (c *conn) dispatch(s *Server, ev events.ClientEvent) {
	switch ev.Event {
	case events.ActionReady:
		c.handleReady(s)
	case events.ActionUnready:
		c.sess.SetUnready(c.playerID)
		c.sess.Bus.Publish(events.PlayerUnready(c.playerID))
	case events.ActionUpdateGameSettings:
		if ev.Settings == nil {
			c.log.Warnf("lobby %s: settings update from %s without settings", c.sess.Code, c.playerID)
			return
		}
		c.sess.UpdateSettings(*ev.Settings)
		c.sess.Bus.Publish(events.GameSettingsUpdated(*ev.Settings))
	case events.ActionGuess:
		c.handleGuess(ev.Content)
	case events.ActionJoin:
		c.log.Warnf("lobby %s: duplicate join from %s ignored", c.sess.Code, c.playerID)
	default:
		c.log.Warnf("lobby %s: unknown event %q from %s", c.sess.Code, ev.Event, c.playerID)
	}
}

// handleReady marks the player ready and, when that completes the lobby,
// races for the Waiting -> Playing transition. Exactly one winner spawns the
// song-fetch + round-scheduler pipeline.
func (c *conn) handleReady(s *Server) {
	c.sess.SetReady(c.playerID)
	c.sess.Bus.Publish(events.PlayerReady(c.playerID))

	if !c.sess.AllReady() {
		return
	}

	// Racing ready-ups can each observe AllReady()==true; publishing from the
	// transition winner only keeps the event to one per start.
	if c.sess.TryBeginPlay() {
		c.sess.Bus.Publish(events.AllReady())
		c.log.Infof("lobby %s: all ready, player %s triggered game start", c.sess.Code, c.playerID)
		// Detached from the connection context: the game outlives whichever
		// socket happened to win the race.
		go s.scheduler.Start(context.Background(), c.sess, c.playerID)
	}
}

// handleGuess broadcasts the attempt, applies the shared answer-window
// throttle, then runs the title and artist checks independently. A guess that
// matches both collects both awards.
func (c *conn) handleGuess(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	username, _ := c.sess.Username(c.playerID)
	c.sess.Bus.Publish(events.PlayerGuess(username, content))

	lockout := time.Duration(c.sess.Settings().AnswerDelaySeconds) * time.Second
	if !c.sess.AcceptGuess(time.Now(), lockout) {
		return
	}

	if title, ok := c.sess.CheckGuessTitle(content); ok {
		c.sess.Award(c.playerID, TitlePoints)
		c.sess.Bus.Publish(events.CorrectGuess(c.playerID,
			fmt.Sprintf("%s guessed the title: %s", username, title)))
	}
	if artist, ok := c.sess.CheckGuessArtist(content); ok {
		c.sess.Award(c.playerID, ArtistPoints)
		c.sess.Bus.Publish(events.CorrectGuess(c.playerID,
			fmt.Sprintf("%s guessed an artist: %s", username, artist)))
	}
}
