// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes for handshake failures, more specific than the
// standard policy-violation code.
const (
	ExpectedJoinError     = 3000 // First message was not a valid Join event.
	InvalidLobbyCodeError = 3001 // No session registered under the given code.
	JoinRejectedError     = 3002 // Session refused the join (e.g. game in progress).
)
