// internal/game/scheduler.go
// Package game drives the autonomous round sequence of a session once the
// lobby wins the Waiting -> Playing transition: fetch songs, then
// GameStart -> (RoundStart -> RoundEnd) per song -> GameEnd -> reset.
package game

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guessr-gg/guessr/internal/catalog"
	"github.com/guessr-gg/guessr/internal/events"
	"github.com/guessr-gg/guessr/internal/session"
)

// startGracePeriod gives clients a moment to render the game screen between
// GameStart and the first round.
const startGracePeriod = 3 * time.Second

// Scheduler starts and runs game loops. One Scheduler serves the whole
// process; each started game runs in its own goroutine.
type Scheduler struct {
	log     *logrus.Logger
	catalog catalog.Provider

	// Shrunk in tests to keep scenario runs fast.
	gracePeriod time.Duration
}

func NewScheduler(log *logrus.Logger, provider catalog.Provider) *Scheduler {
	return &Scheduler{log: log, catalog: provider, gracePeriod: startGracePeriod}
}

// Start runs the song-fetch and round-loop pipeline for a session whose
// Waiting -> Playing transition the caller has just won. It blocks until the
// game ends, so callers normally invoke it in a fresh goroutine. On fetch
// failure the lobby reverts to Waiting, the initiating player is un-readied,
// and the whole lobby is told why nothing started.
func (sch *Scheduler) Start(ctx context.Context, sess *session.Session, initiatorID string) {
	cfg := sess.Settings()

	tracks, err := sch.catalog.Tracks(ctx, cfg.PlaylistLink, cfg.NumSongs)
	if err != nil {
		sch.log.Warnf("lobby %s: song fetch failed: %v", sess.Code, err)
		sess.AbortStart(initiatorID)
		sess.Bus.Publish(events.PlaylistError("could not load songs from the playlist"))
		return
	}

	songs := make([]session.Song, 0, len(tracks))
	for _, t := range tracks {
		songs = append(songs, session.Song{Title: t.Title, Artists: t.Artists, PreviewURL: t.PreviewURL})
	}
	sess.RecordSongs(songs)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.SetGameCancel(cancel)

	sch.run(runCtx, sess, cfg)
}

// run executes the round loop. An empty lobby aborts the loop immediately
// with no further events; the reaper owns the session from there. Normal
// completion (songs exhausted) announces GameEnd and resets the session so
// the same code can host another game.
func (sch *Scheduler) run(ctx context.Context, sess *session.Session, cfg events.Settings) {
	sch.log.Infof("lobby %s: game starting with %d songs", sess.Code, cfg.NumSongs)
	sess.Bus.Publish(events.GameStart())
	if !sleep(ctx, sch.gracePeriod) {
		return
	}

	roundLength := time.Duration(cfg.RoundLengthSeconds) * time.Second
	roundDelay := time.Duration(cfg.RoundDelaySeconds) * time.Second

	for {
		if ctx.Err() != nil || sess.PlayerCount() == 0 {
			sch.log.Infof("lobby %s: aborting game loop, lobby empty", sess.Code)
			return
		}

		song, startedAt, ok := sess.AdvanceRound()
		if !ok {
			break
		}
		sch.log.Debugf("lobby %s: round starting (%s)", sess.Code, song.Title)
		sess.Bus.Publish(events.RoundStart(song.PreviewURL, startedAt))
		if !sleep(ctx, roundLength) {
			return
		}

		sess.Bus.Publish(events.RoundEnd(song.Title, song.Artists, sess.Leaderboard()))
		if !sleep(ctx, roundDelay) {
			return
		}
	}

	sch.log.Infof("lobby %s: game over", sess.Code)
	sess.Bus.Publish(events.GameEnd())
	sess.Reset()
}

// sleep waits for d or until the context is cancelled; it reports whether the
// full duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
