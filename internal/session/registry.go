// internal/session/registry.go
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Registry maps lobby codes to live sessions. Cleanup of empty sessions runs
// through two cooperating paths: an explicit signal fired when the last
// player leaves, and a periodic sweep that catches any signal lost to a race.
type Registry struct {
	log *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	empty chan string
}

// NewRegistry returns an empty registry. Call Run to start the reaper.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		log:      log,
		sessions: make(map[string]*Session),
		empty:    make(chan string, 16),
	}
}

func newCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// Create registers a fresh Waiting session under a newly generated code,
// retrying candidates until one is unused.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var code string
	for {
		code = newCode()
		if _, taken := r.sessions[code]; !taken {
			break
		}
	}
	s := New(code)
	s.OnEmpty = r.signalEmpty
	r.sessions[code] = s
	r.log.Infof("registry: created lobby %s", code)
	return s
}

// Lookup returns the session for a code. Absence is a user-visible "not
// found", not a fault.
func (r *Registry) Lookup(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Remove deletes a session unconditionally and stops its scheduler. Removing
// an unknown code is a no-op.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	s, ok := r.sessions[code]
	delete(r.sessions, code)
	r.mu.Unlock()
	if ok {
		s.CancelGame()
		r.log.Infof("registry: removed lobby %s", code)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// signalEmpty is the session OnEmpty hook. The send is non-blocking: if the
// reaper's queue is full the periodic sweep picks the session up instead.
func (r *Registry) signalEmpty(code string) {
	select {
	case r.empty <- code:
	default:
	}
}

// removeIfEmpty is the idempotent cleanup both reaper paths funnel into. The
// emptiness re-check under the registry lock covers a player joining between
// the signal and its consumption.
func (r *Registry) removeIfEmpty(code string) {
	r.mu.Lock()
	s, ok := r.sessions[code]
	if !ok || s.PlayerCount() > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, code)
	r.mu.Unlock()

	s.CancelGame()
	r.log.Infof("registry: reaped empty lobby %s", code)
}

// Sweep removes every session with no players and returns how many it
// reaped.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	codes := make([]string, 0, len(r.sessions))
	for code, s := range r.sessions {
		if s.PlayerCount() == 0 {
			codes = append(codes, code)
		}
	}
	r.mu.RUnlock()

	for _, code := range codes {
		r.removeIfEmpty(code)
	}
	return len(codes)
}

// Run consumes empty-lobby signals and sweeps on the given interval until the
// context is cancelled. Start it once from the server bootstrap.
func (r *Registry) Run(ctx context.Context, sweepInterval time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case code := <-r.empty:
			r.removeIfEmpty(code)
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Debugf("registry: sweep reaped %d lobbies", n)
			}
		}
	}
}
