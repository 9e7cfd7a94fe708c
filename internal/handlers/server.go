// internal/handlers/server.go
// Package handlers exposes the HTTP and WebSocket surface of the session
// service: lobby creation and the per-connection game socket.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/guessr-gg/guessr/internal/game"
	"github.com/guessr-gg/guessr/internal/session"
)

// Server wires the registry and scheduler into HTTP handlers.
type Server struct {
	log       *logrus.Logger
	registry  *session.Registry
	scheduler *game.Scheduler
}

func NewServer(log *logrus.Logger, registry *session.Registry, scheduler *game.Scheduler) *Server {
	return &Server{log: log, registry: registry, scheduler: scheduler}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	router := httprouter.New()
	router.POST("/guess-the-song/create-lobby", s.createLobby)
	router.GET("/ws/guess-the-song", s.gameSocket)
	return router
}

type createLobbyResponse struct {
	LobbyCode string `json:"lobby_code"`
}

// createLobby registers a new session and returns its join code.
func (s *Server) createLobby(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess := s.registry.Create()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(createLobbyResponse{LobbyCode: sess.Code}); err != nil {
		s.log.Warnf("create-lobby: encode response: %v", err)
	}
}

// gameSocket upgrades the connection and hands it to the WS lifecycle.
func (s *Server) gameSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warnf("websocket accept from %s failed: %v", r.RemoteAddr, err)
		return
	}
	s.serveWS(r.Context(), ws, r.RemoteAddr)
}
